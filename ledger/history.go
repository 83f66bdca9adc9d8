package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RowAction is the consent affordance the presentation layer attaches to a
// history row.
type RowAction string

const (
	// RowActionRequestDeletion marks a normal active row: either party may
	// ask for its removal.
	RowActionRequestDeletion RowAction = "request_deletion"
	// RowActionWaiting marks a row the viewer asked to remove; nothing to
	// do but wait for the other party.
	RowActionWaiting RowAction = "waiting"
	// RowActionApprove marks a row the other party asked to remove; the
	// viewer may approve.
	RowActionApprove RowAction = "approve"
)

// DisplayRow is one line of the pair history: the record itself plus the
// derived presentation facts the screens need.
type DisplayRow struct {
	Transaction Transaction
	// InFavor is true when the event leaves the viewer net owed.
	InFavor bool
	// Nested marks a targeted repayment emitted under its loan; Remaining
	// is the running balance on that loan as of this repayment.
	Nested    bool
	Remaining decimal.Decimal
	Pending   bool
	Action    RowAction
}

// ProjectHistory renders the chronology between user and partner: standalone
// records bucketed by calendar day, newest day first, and each loan's
// targeted repayments nested right under it in chronological order with
// running remaining-balance annotations. Notes are skipped; they exist only
// as out-of-band markers in the raw list.
func ProjectHistory(user, partner string, transactions []Transaction) []DisplayRow {
	var standalone []Transaction
	targeted := make(map[string][]Transaction)
	for _, t := range transactions {
		if !t.Involves(user, partner) || t.Kind == KindNote {
			continue
		}
		if t.DebtRef != "" {
			targeted[t.DebtRef] = append(targeted[t.DebtRef], t)
		} else {
			standalone = append(standalone, t)
		}
	}
	for _, group := range targeted {
		sort.Slice(group, func(i, j int) bool {
			return CompareIDs(group[i].ID, group[j].ID) < 0
		})
	}

	buckets := groupByDay(standalone)

	var rows []DisplayRow
	emitted := make(map[string]bool)
	for _, bucket := range buckets {
		for _, t := range bucket {
			rows = append(rows, makeRow(user, t, false, decimal.Zero))
			if !t.IsLoan() {
				continue
			}
			for _, r := range targeted[t.ID] {
				rows = append(rows, makeRow(user, r, true, RemainingAsOf(t.ID, r.ID, transactions)))
			}
			emitted[t.ID] = true
		}
	}

	// Repayments whose loan was since deleted still belong to the history;
	// they trail the day buckets in chronological order.
	var orphanRefs []string
	for ref := range targeted {
		if !emitted[ref] {
			orphanRefs = append(orphanRefs, ref)
		}
	}
	sort.Slice(orphanRefs, func(i, j int) bool {
		return CompareIDs(orphanRefs[i], orphanRefs[j]) < 0
	})
	for _, ref := range orphanRefs {
		for _, r := range targeted[ref] {
			rows = append(rows, makeRow(user, r, false, decimal.Zero))
		}
	}

	return rows
}

// groupByDay buckets records by their creation-date label, rows in creation
// order inside each bucket and buckets ordered most recent first.
func groupByDay(records []Transaction) [][]Transaction {
	byDay := make(map[string][]Transaction)
	for _, t := range records {
		byDay[t.CreatedDisplay] = append(byDay[t.CreatedDisplay], t)
	}

	buckets := make([][]Transaction, 0, len(byDay))
	for _, bucket := range byDay {
		sort.Slice(bucket, func(i, j int) bool {
			return CompareIDs(bucket[i].ID, bucket[j].ID) < 0
		})
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		a := buckets[i][len(buckets[i])-1].ID
		b := buckets[j][len(buckets[j])-1].ID
		return CompareIDs(a, b) > 0
	})
	return buckets
}

func makeRow(viewer string, t Transaction, nested bool, remaining decimal.Decimal) DisplayRow {
	row := DisplayRow{
		Transaction: t,
		InFavor:     inViewerFavor(viewer, t),
		Nested:      nested,
		Remaining:   remaining,
		Action:      RowActionRequestDeletion,
	}
	if t.Status == StatusDeletionPending {
		row.Pending = true
		if t.RequestedBy == viewer {
			row.Action = RowActionWaiting
		} else {
			row.Action = RowActionApprove
		}
	}
	return row
}

// inViewerFavor applies the single-record signed rule regardless of status:
// a pending-deletion row keeps its color even though it no longer counts.
func inViewerFavor(viewer string, t Transaction) bool {
	if viewer == t.Creator {
		return t.Kind != KindLoanReceived
	}
	return t.Kind == KindLoanReceived
}
