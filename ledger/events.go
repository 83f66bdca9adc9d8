package ledger

// Audit event payloads recorded by the event logger alongside every ledger
// action. They duplicate the facts of the write on purpose: the shared
// document only holds current state, the events table keeps who did what.

type TransactionCreatedEvent struct {
	TransactionID string `json:"transaction_id"`
	Creator       string `json:"creator"`
	Counterparty  string `json:"counterparty"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	DebtRef       string `json:"debt_ref,omitempty"`
}

type DeletionRequestedEvent struct {
	TransactionID string `json:"transaction_id"`
	RequestedBy   string `json:"requested_by"`
}

type DeletionApprovedEvent struct {
	TransactionID string `json:"transaction_id"`
	RequestedBy   string `json:"requested_by"`
	ApprovedBy    string `json:"approved_by"`
}
