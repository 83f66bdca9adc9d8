package main

import (
	"context"
	"testing"
	"time"

	"github.com/billbatista/cuentas-claras/ledger"
	"github.com/shopspring/decimal"
)

type recordingRepo struct {
	appended []ledger.Transaction
}

func (r *recordingRepo) Load(ctx context.Context) (ledger.Snapshot, error) {
	return ledger.Snapshot{}, nil
}

func (r *recordingRepo) AppendOne(ctx context.Context, t ledger.Transaction) error {
	r.appended = append(r.appended, t)
	return nil
}

func (r *recordingRepo) OverwriteAll(ctx context.Context, list []ledger.Transaction, version int64) error {
	return nil
}

func testLoan() ledger.Transaction {
	return ledger.Transaction{
		ID:             "100",
		Creator:        "Ivan",
		Counterparty:   "Geral",
		Kind:           ledger.KindLoanGiven,
		Amount:         decimal.NewFromInt(100),
		Memo:           "cena",
		CreatedDisplay: "19 dic",
		Status:         ledger.StatusActive,
	}
}

// A rejected repayment must leave the shared document untouched: the
// annotation note may only be written once the repayment itself has passed
// validation.
func TestBuildRepaymentRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name    string
		req     createTransactionRequest
		wantErr error
	}{
		{
			name: "negative amount",
			req: createTransactionRequest{
				Counterparty: "Ivan",
				Kind:         ledger.KindRepayment,
				Amount:       decimal.NewFromInt(-5),
				DebtRef:      "100",
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "zero amount",
			req: createTransactionRequest{
				Counterparty: "Ivan",
				Kind:         ledger.KindRepayment,
				Amount:       decimal.Zero,
				DebtRef:      "100",
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "bad debt reference",
			req: createTransactionRequest{
				Counterparty: "Ivan",
				Kind:         ledger.KindRepayment,
				Amount:       decimal.NewFromInt(40),
				DebtRef:      "999",
			},
			wantErr: ledger.ErrBadDebtRef,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &recordingRepo{}
			list := []ledger.Transaction{testLoan()}

			_, err := buildRepayment(context.Background(), "Geral", tc.req, list, repo, time.Now())
			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if len(repo.appended) != 0 {
				t.Fatalf("rejected repayment wrote %d records: %+v", len(repo.appended), repo.appended)
			}
		})
	}
}

func TestBuildRepaymentTargeted(t *testing.T) {
	repo := &recordingRepo{}
	list := []ledger.Transaction{testLoan()}
	req := createTransactionRequest{
		Counterparty: "Ivan",
		Kind:         ledger.KindRepayment,
		Amount:       decimal.NewFromInt(40),
		DebtRef:      "100",
	}

	record, err := buildRepayment(context.Background(), "Geral", req, list, repo, time.Now())
	if err != nil {
		t.Fatalf("buildRepayment: %v", err)
	}

	// Geral owes Ivan, so the repayment resolves to the loan_given mirror.
	if record.Kind != ledger.KindLoanGiven {
		t.Errorf("kind = %q, want loan_given", record.Kind)
	}
	if record.Memo != "Abono a: cena" {
		t.Errorf("memo = %q, want %q", record.Memo, "Abono a: cena")
	}
	if record.DebtRef != "100" {
		t.Errorf("debt ref = %q, want 100", record.DebtRef)
	}

	if len(repo.appended) != 1 {
		t.Fatalf("got %d appended records, want only the annotation", len(repo.appended))
	}
	note := repo.appended[0]
	if note.Kind != ledger.KindNote || note.DebtRef != "100" {
		t.Errorf("annotation = %+v, want a note targeting the loan", note)
	}
	if note.Memo != "Actualización cena (nuevo saldo: 60€)" {
		t.Errorf("annotation memo = %q, want new remaining of 60", note.Memo)
	}
}
