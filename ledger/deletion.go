package ledger

import "errors"

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrNotActive    = errors.New("transaction already has a pending deletion request")
	ErrNotPending   = errors.New("transaction has no pending deletion request")
	ErrOutsidePair  = errors.New("user is not a party to this transaction")
	ErrSelfApproval = errors.New("a deletion request must be approved by the other party")
)

// RequestDeletion flips one active record to deletion_pending, recording who
// asked. The input list is not modified; the returned copy is meant to be
// written back whole. A missing id leaves the collection untouched and is
// reported so the caller can tell the user (the usual cause: the other party
// already removed it).
func RequestDeletion(transactions []Transaction, id, requester string) ([]Transaction, error) {
	idx := indexOf(transactions, id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	t := transactions[idx]
	if t.Creator != requester && t.Counterparty != requester {
		return nil, ErrOutsidePair
	}
	if t.Status != StatusActive {
		return nil, ErrNotActive
	}

	out := make([]Transaction, len(transactions))
	copy(out, transactions)
	out[idx].Status = StatusDeletionPending
	out[idx].RequestedBy = requester
	return out, nil
}

// ApproveDeletion removes one pending record for good. Only the party who
// did not request the deletion may approve; there is no reject path, a
// request either gets approved or stays pending indefinitely.
func ApproveDeletion(transactions []Transaction, id, approver string) ([]Transaction, error) {
	idx := indexOf(transactions, id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	t := transactions[idx]
	if t.Creator != approver && t.Counterparty != approver {
		return nil, ErrOutsidePair
	}
	if t.Status != StatusDeletionPending {
		return nil, ErrNotPending
	}
	if t.RequestedBy == approver {
		return nil, ErrSelfApproval
	}

	out := make([]Transaction, 0, len(transactions)-1)
	for _, rec := range transactions {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PendingAlert reports whether partner has asked to delete any record shared
// with user; the summary row carries a standing badge until user approves.
// Requests made by user show on the rows themselves, not as a badge.
func PendingAlert(user, partner string, transactions []Transaction) bool {
	for _, t := range transactions {
		if t.Involves(user, partner) &&
			t.Status == StatusDeletionPending &&
			t.RequestedBy == partner {
			return true
		}
	}
	return false
}

func indexOf(transactions []Transaction, id string) int {
	for i, t := range transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}
