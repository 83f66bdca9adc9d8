package ledger

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	// KindLoanGiven and KindLoanReceived are mirrors of each other: which
	// side of the debt the creator is on.
	KindLoanGiven    Kind = "loan_given"
	KindLoanReceived Kind = "loan_received"
	KindRepayment    Kind = "repayment"
	// KindNote carries no balance effect, only an out-of-band annotation.
	KindNote Kind = "note"
)

type Status string

const (
	StatusActive          Status = "active"
	StatusDeletionPending Status = "deletion_pending"
)

// Transaction is one entry in the shared ledger document. Order in the
// document is insertion order. After creation only Status/RequestedBy are
// ever mutated (deletion request); approval removes the entry entirely.
type Transaction struct {
	ID             string          `json:"id"`
	Creator        string          `json:"creator"`
	Counterparty   string          `json:"counterparty"`
	Kind           Kind            `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo,omitempty"`
	CreatedDisplay string          `json:"created_display"`
	Status         Status          `json:"status"`
	RequestedBy    string          `json:"requested_by,omitempty"`
	DebtRef        string          `json:"debt_ref,omitempty"`
}

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrSameParty     = errors.New("creator and counterparty must differ")
	ErrInvalidKind   = errors.New("kind must be loan_given or loan_received")
	ErrBadDebtRef    = errors.New("debt reference must point to a loan between the same two users")
)

// Involves reports whether the record is between exactly these two users,
// in either creator/counterparty order.
func (t Transaction) Involves(user, partner string) bool {
	return (t.Creator == user && t.Counterparty == partner) ||
		(t.Creator == partner && t.Counterparty == user)
}

// IsLoan reports whether the record establishes a debt.
func (t Transaction) IsLoan() bool {
	return t.Kind == KindLoanGiven || t.Kind == KindLoanReceived
}

// CountsForBalance excludes annotations and records awaiting deletion
// consent from every derived computation.
func (t Transaction) CountsForBalance() bool {
	return t.Kind != KindNote && t.Status != StatusDeletionPending
}

// GeneralRepaymentMemo is the fixed memo for repayments that reduce the
// overall balance without targeting one loan.
const GeneralRepaymentMemo = "Abono a capital"

// NewLoan builds a loan record. The id doubles as a sortable creation-order
// key and the display date is fixed at construction so it never drifts.
func NewLoan(creator, counterparty string, kind Kind, amount decimal.Decimal, memo string, now time.Time) (Transaction, error) {
	if kind != KindLoanGiven && kind != KindLoanReceived {
		return Transaction{}, ErrInvalidKind
	}
	if creator == counterparty {
		return Transaction{}, ErrSameParty
	}
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	return Transaction{
		ID:             NewID(now),
		Creator:        creator,
		Counterparty:   counterparty,
		Kind:           kind,
		Amount:         amount,
		Memo:           memo,
		CreatedDisplay: DisplayDate(now),
		Status:         StatusActive,
	}, nil
}

// NewRepayment builds a repayment record. The stored kind is resolved from
// the payer's net balance with the counterparty at creation time: when the
// payer is owed money a repayment reduces that credit (loan_received
// equivalent), otherwise it reduces the payer's debt (loan_given
// equivalent). The resolved kind is immutable, so later recomputations stay
// consistent regardless of how the balance moves afterwards.
func NewRepayment(creator, counterparty string, amount decimal.Decimal, memo string, balance decimal.Decimal, debtRef string, now time.Time) (Transaction, error) {
	if creator == counterparty {
		return Transaction{}, ErrSameParty
	}
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	kind := KindLoanGiven
	if balance.IsPositive() {
		kind = KindLoanReceived
	}
	if memo == "" {
		memo = GeneralRepaymentMemo
	}

	return Transaction{
		ID:             NewID(now),
		Creator:        creator,
		Counterparty:   counterparty,
		Kind:           kind,
		Amount:         amount,
		Memo:           memo,
		CreatedDisplay: DisplayDate(now),
		Status:         StatusActive,
		DebtRef:        debtRef,
	}, nil
}

// NewAnnotation builds the zero-amount note recorded next to a targeted
// repayment, carrying the debt's new remaining balance in its memo.
func NewAnnotation(creator, counterparty, memo, debtRef string, now time.Time) (Transaction, error) {
	if creator == counterparty {
		return Transaction{}, ErrSameParty
	}

	return Transaction{
		ID:             NewID(now) + "-note",
		Creator:        creator,
		Counterparty:   counterparty,
		Kind:           KindNote,
		Amount:         decimal.Zero,
		Memo:           memo,
		CreatedDisplay: DisplayDate(now),
		Status:         StatusActive,
		DebtRef:        debtRef,
	}, nil
}

// ValidateDebtRef checks that a targeted repayment points at a loan between
// the same two users.
func ValidateDebtRef(debtRef, creator, counterparty string, transactions []Transaction) error {
	for _, t := range transactions {
		if t.ID != debtRef {
			continue
		}
		if t.IsLoan() && t.Involves(creator, counterparty) {
			return nil
		}
		return ErrBadDebtRef
	}
	return ErrBadDebtRef
}

// NewID derives a globally unique, monotonically increasing id from the
// creation instant, in milliseconds since the epoch.
func NewID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

var shortMonths = [...]string{
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

// DisplayDate renders the short creation-date label, e.g. "20 dic".
func DisplayDate(now time.Time) string {
	return strconv.Itoa(now.Day()) + " " + shortMonths[now.Month()-1]
}
