package ledger

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaterialityThreshold is the absolute net balance under which a
// counterparty row is suppressed from the summary view. The records
// themselves always remain visible in history.
var MaterialityThreshold = decimal.NewFromFloat(0.5)

// Contribution is the signed effect of a single record on user's balance:
// positive when the event leaves user net owed, negative when it leaves
// user net owing. Notes and pending-deletion records contribute zero.
func Contribution(user string, t Transaction) decimal.Decimal {
	if !t.CountsForBalance() {
		return decimal.Zero
	}
	switch user {
	case t.Creator:
		if t.Kind == KindLoanReceived {
			return t.Amount.Neg()
		}
		return t.Amount
	case t.Counterparty:
		if t.Kind == KindLoanReceived {
			return t.Amount
		}
		return t.Amount.Neg()
	}
	return decimal.Zero
}

// NetBalance folds every active record between user and partner into a
// signed total from user's perspective: positive means partner owes user.
func NetBalance(user, partner string, transactions []Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range transactions {
		if t.Involves(user, partner) {
			balance = balance.Add(Contribution(user, t))
		}
	}
	return balance
}

// NetBalances computes user's balance with every other roster member.
// Every partner gets an entry, zero or not; the summary layer decides what
// to suppress.
func NetBalances(user string, roster []string, transactions []Transaction) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, partner := range roster {
		if partner != user {
			balances[partner] = decimal.Zero
		}
	}
	for _, t := range transactions {
		var partner string
		switch user {
		case t.Creator:
			partner = t.Counterparty
		case t.Counterparty:
			partner = t.Creator
		default:
			continue
		}
		if _, known := balances[partner]; !known {
			continue
		}
		balances[partner] = balances[partner].Add(Contribution(user, t))
	}
	return balances
}

// Total sums a balance map into the user's grand total across all partners.
func Total(balances map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}
	return total
}

// BelowThreshold reports whether a net balance is too small to show on the
// summary view.
func BelowThreshold(balance decimal.Decimal) bool {
	return balance.Abs().LessThan(MaterialityThreshold)
}

// RemainingOnDebt is the original loan amount minus every active repayment
// targeting it, clamped at zero and rounded to 2 decimal places.
func RemainingOnDebt(debtID string, transactions []Transaction) decimal.Decimal {
	return remaining(debtID, "", transactions)
}

// RemainingAsOf is RemainingOnDebt restricted to repayments at or before
// upToID in creation order. History rows use it to annotate each targeted
// repayment with the running balance as of that repayment.
func RemainingAsOf(debtID, upToID string, transactions []Transaction) decimal.Decimal {
	return remaining(debtID, upToID, transactions)
}

func remaining(debtID, upToID string, transactions []Transaction) decimal.Decimal {
	if debtID == "" {
		return decimal.Zero
	}
	original := decimal.Zero
	repaid := decimal.Zero
	for _, t := range transactions {
		if t.Status == StatusDeletionPending {
			continue
		}
		if t.ID == debtID {
			original = original.Add(t.Amount)
		}
		if t.DebtRef == debtID && t.Kind != KindNote {
			if upToID != "" && CompareIDs(t.ID, upToID) > 0 {
				continue
			}
			repaid = repaid.Add(t.Amount)
		}
	}
	rest := original.Sub(repaid)
	if rest.IsNegative() {
		rest = decimal.Zero
	}
	return rest.Round(2)
}

// OutstandingDebt is one loan the viewer still owes on, offered when
// choosing the target of a specific repayment.
type OutstandingDebt struct {
	Loan      Transaction
	Remaining decimal.Decimal
}

// OutstandingDebts lists the active untargeted loans between user and
// partner on which user is the debtor and something is still owed, newest
// first.
func OutstandingDebts(user, partner string, transactions []Transaction) []OutstandingDebt {
	var debts []OutstandingDebt
	for _, t := range transactions {
		if !t.Involves(user, partner) || !t.IsLoan() || t.DebtRef != "" {
			continue
		}
		if t.Status == StatusDeletionPending {
			continue
		}
		if !Contribution(user, t).IsNegative() {
			continue
		}
		rest := RemainingOnDebt(t.ID, transactions)
		if rest.IsPositive() {
			debts = append(debts, OutstandingDebt{Loan: t, Remaining: rest})
		}
	}
	sort.Slice(debts, func(i, j int) bool {
		return CompareIDs(debts[i].Loan.ID, debts[j].Loan.ID) > 0
	})
	return debts
}

// CompareIDs orders two record ids by creation instant. Ids are millisecond
// timestamps, annotation ids carry a suffix after the timestamp.
func CompareIDs(a, b string) int {
	na := idMillis(a)
	nb := idMillis(b)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(a, b)
}

func idMillis(id string) int64 {
	digits := id
	if i := strings.IndexByte(id, '-'); i >= 0 {
		digits = id[:i]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
