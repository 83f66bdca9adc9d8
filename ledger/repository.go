package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// The whole ledger lives in one shared document: a single row holding the
// full transaction list as jsonb. Appends use jsonb concatenation so they
// never clobber a concurrent append; whole-list overwrites (status flips and
// deletions) are guarded by a version check instead, and a stale writer gets
// ErrConflict back rather than silently dropping the other side's edit.
const (
	documentName = "grupal_v4"

	// NotifyChannel is raised inside the same transaction as every write, so
	// subscribed feeds reload the document, the writer's own echo included.
	NotifyChannel = "ledger_changes"
)

var ErrConflict = errors.New("ledger document changed since it was read")

// Snapshot is the full document as read at one instant, with the version to
// hand back on a conditional overwrite.
type Snapshot struct {
	Transactions []Transaction
	Version      int64
}

type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	AppendOne(ctx context.Context, t Transaction) error
	OverwriteAll(ctx context.Context, list []Transaction, version int64) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

// Load reads the current document. A missing document is created empty,
// the same way the first subscriber used to seed the store.
func (r *repository) Load(ctx context.Context) (Snapshot, error) {
	query := `SELECT lista, version FROM ledger_documents WHERE name = $1`

	var raw []byte
	var snapshot Snapshot
	err := r.db.QueryRowContext(ctx, query, documentName).Scan(&raw, &snapshot.Version)
	if err == sql.ErrNoRows {
		insert := `INSERT INTO ledger_documents (name, lista, version) VALUES ($1, '[]'::jsonb, 0) ON CONFLICT (name) DO NOTHING`
		if _, err := r.db.ExecContext(ctx, insert, documentName); err != nil {
			return Snapshot{}, fmt.Errorf("creating ledger document: %w", err)
		}
		return Snapshot{Transactions: []Transaction{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying ledger document: %w", err)
	}

	if err := json.Unmarshal(raw, &snapshot.Transactions); err != nil {
		return Snapshot{}, fmt.Errorf("decoding ledger document: %w", err)
	}

	return snapshot, nil
}

// AppendOne adds a record to the end of the document atomically; two clients
// appending from the same stale snapshot both land.
func (r *repository) AppendOne(ctx context.Context, t Transaction) error {
	element, err := json.Marshal([]Transaction{t})
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := `UPDATE ledger_documents SET lista = lista || $2::jsonb, version = version + 1 WHERE name = $1`
	result, err := tx.ExecContext(ctx, update, documentName, element)
	if err != nil {
		return fmt.Errorf("appending transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		insert := `INSERT INTO ledger_documents (name, lista, version) VALUES ($1, $2::jsonb, 1)`
		if _, err := tx.ExecContext(ctx, insert, documentName, element); err != nil {
			return fmt.Errorf("creating ledger document: %w", err)
		}
	}

	if err := notify(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// OverwriteAll replaces the whole list, but only if nobody wrote since the
// snapshot at the given version was read. The caller surfaces ErrConflict to
// the user, who retries the action against fresh data; there is no automatic
// retry.
func (r *repository) OverwriteAll(ctx context.Context, list []Transaction, version int64) error {
	if list == nil {
		list = []Transaction{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := `UPDATE ledger_documents SET lista = $2::jsonb, version = version + 1 WHERE name = $1 AND version = $3`
	result, err := tx.ExecContext(ctx, update, documentName, raw, version)
	if err != nil {
		return fmt.Errorf("overwriting ledger document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}

	if err := notify(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notify(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, '')`, NotifyChannel)
	if err != nil {
		return fmt.Errorf("notifying ledger change: %w", err)
	}
	return nil
}
