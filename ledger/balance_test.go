package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNetBalanceLoanScenario(t *testing.T) {
	// A lends B 100.
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
	}

	if got := NetBalance("Ivan", "Geral", list); !got.Equal(amount(100)) {
		t.Errorf("lender balance = %s, want 100", got)
	}
	if got := NetBalance("Geral", "Ivan", list); !got.Equal(amount(-100)) {
		t.Errorf("borrower balance = %s, want -100", got)
	}
}

func TestNetBalanceAntisymmetry(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 40),
		tx("300", "Ivan", "Geral", KindLoanReceived, 25),
		tx("400", "Geral", "Ivan", KindLoanReceived, 10.5),
		tx("500", "Ivan", "Geral", KindNote, 0),
		tx("600", "Ivan", "Geral", KindLoanGiven, 7, withPending("Ivan")),
	}

	a := NetBalance("Ivan", "Geral", list)
	b := NetBalance("Geral", "Ivan", list)
	if !a.Equal(b.Neg()) {
		t.Errorf("antisymmetry violated: %s vs %s", a, b)
	}
	// 100 - 40 - 25 + 10.5; the note and the pending record contribute
	// nothing.
	if !a.Equal(amount(45.5)) {
		t.Errorf("balance = %s, want 45.5", a)
	}
}

func TestNetBalanceIgnoresOtherPairs(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Michel", "Kimberly", KindLoanGiven, 999),
		tx("300", "Ivan", "Michel", KindLoanGiven, 50),
	}
	if got := NetBalance("Ivan", "Geral", list); !got.Equal(amount(100)) {
		t.Errorf("balance = %s, want 100", got)
	}
}

func TestGeneralRepaymentReducesBalance(t *testing.T) {
	// A is owed 100 by B; B repays 30 generally. B creates the repayment,
	// and since B's balance with A is -100 the resolved kind is loan_given.
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
	}
	repayment, err := NewRepayment("Geral", "Ivan", amount(30), "", NetBalance("Geral", "Ivan", list), "", testInstant)
	if err != nil {
		t.Fatalf("NewRepayment: %v", err)
	}
	list = append(list, repayment)

	if got := NetBalance("Ivan", "Geral", list); !got.Equal(amount(70)) {
		t.Errorf("balance = %s, want 70", got)
	}
	// No specific loan is affected.
	if got := RemainingOnDebt("100", list); !got.Equal(amount(100)) {
		t.Errorf("remaining = %s, want untouched 100", got)
	}
}

func TestNetBalancesRoster(t *testing.T) {
	roster := []string{"Ivan", "Geral", "Michel", "Kimberly"}
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Michel", "Ivan", KindLoanGiven, 20),
	}

	balances := NetBalances("Ivan", roster, list)
	if len(balances) != 3 {
		t.Fatalf("got %d partners, want 3", len(balances))
	}
	if !balances["Geral"].Equal(amount(100)) {
		t.Errorf("Geral = %s, want 100", balances["Geral"])
	}
	if !balances["Michel"].Equal(amount(-20)) {
		t.Errorf("Michel = %s, want -20", balances["Michel"])
	}
	if !balances["Kimberly"].IsZero() {
		t.Errorf("Kimberly = %s, want 0", balances["Kimberly"])
	}
	if !Total(balances).Equal(amount(80)) {
		t.Errorf("total = %s, want 80", Total(balances))
	}
}

func TestRemainingOnDebt(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 40, withRef("100")),
		tx("300-note", "Geral", "Ivan", KindNote, 0, withRef("100")),
	}

	if got := RemainingOnDebt("100", list); !got.Equal(amount(60)) {
		t.Errorf("remaining = %s, want 60", got)
	}

	// Monotone non-increasing as repayments land, clamped at zero.
	list = append(list, tx("400", "Geral", "Ivan", KindLoanGiven, 50, withRef("100")))
	if got := RemainingOnDebt("100", list); !got.Equal(amount(10)) {
		t.Errorf("remaining = %s, want 10", got)
	}
	list = append(list, tx("500", "Geral", "Ivan", KindLoanGiven, 50, withRef("100")))
	if got := RemainingOnDebt("100", list); !got.IsZero() {
		t.Errorf("remaining = %s, want clamp at 0", got)
	}
}

func TestRemainingOnDebtRounds(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 33.333, withRef("100")),
	}
	if got := RemainingOnDebt("100", list); !got.Equal(amount(66.67)) {
		t.Errorf("remaining = %s, want 66.67", got)
	}
}

func TestRemainingSkipsPendingDeletion(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 40, withRef("100"), withPending("Geral")),
	}
	if got := RemainingOnDebt("100", list); !got.Equal(amount(100)) {
		t.Errorf("remaining = %s, want 100 with pending repayment excluded", got)
	}
}

func TestRemainingAsOf(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 40, withRef("100")),
		tx("300", "Geral", "Ivan", KindLoanGiven, 25, withRef("100")),
	}

	if got := RemainingAsOf("100", "200", list); !got.Equal(amount(60)) {
		t.Errorf("as of first repayment = %s, want 60", got)
	}
	if got := RemainingAsOf("100", "300", list); !got.Equal(amount(35)) {
		t.Errorf("as of second repayment = %s, want 35", got)
	}
}

func TestBelowThreshold(t *testing.T) {
	tests := []struct {
		balance decimal.Decimal
		want    bool
	}{
		{amount(0.49), true},
		{amount(-0.49), true},
		{amount(0.5), false},
		{amount(-3), false},
		{decimal.Zero, true},
	}
	for _, tc := range tests {
		if got := BelowThreshold(tc.balance); got != tc.want {
			t.Errorf("BelowThreshold(%s) = %v, want %v", tc.balance, got, tc.want)
		}
	}
}

func TestOutstandingDebts(t *testing.T) {
	list := []Transaction{
		// Geral owes Ivan 100: shows up for Geral, not for Ivan.
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		// Fully repaid loan stays out.
		tx("200", "Ivan", "Geral", KindLoanGiven, 50),
		tx("300", "Geral", "Ivan", KindLoanGiven, 50, withRef("200")),
		// Newer debt of Geral.
		tx("400", "Geral", "Ivan", KindLoanReceived, 30),
		// Pending deletion stays out.
		tx("500", "Ivan", "Geral", KindLoanGiven, 10, withPending("Ivan")),
	}

	debts := OutstandingDebts("Geral", "Ivan", list)
	if len(debts) != 2 {
		t.Fatalf("got %d debts, want 2", len(debts))
	}
	if debts[0].Loan.ID != "400" || debts[1].Loan.ID != "100" {
		t.Errorf("order = %s, %s; want newest first (400, 100)", debts[0].Loan.ID, debts[1].Loan.ID)
	}
	if !debts[1].Remaining.Equal(amount(100)) {
		t.Errorf("remaining = %s, want 100", debts[1].Remaining)
	}

	if got := OutstandingDebts("Ivan", "Geral", list); len(got) != 0 {
		t.Errorf("creditor side got %d debts, want none", len(got))
	}
}

func TestBalanceIdempotent(t *testing.T) {
	list := []Transaction{
		tx("100", "Ivan", "Geral", KindLoanGiven, 100),
		tx("200", "Geral", "Ivan", KindLoanGiven, 40, withRef("100")),
	}
	first := NetBalance("Ivan", "Geral", list)
	second := NetBalance("Ivan", "Geral", list)
	if !first.Equal(second) {
		t.Errorf("recompute differs: %s vs %s", first, second)
	}
}
