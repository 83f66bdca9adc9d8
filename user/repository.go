package user

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type repository struct {
	db         *sql.DB
	roster     Roster
	masterCode string
}

func NewRepository(db *sql.DB, roster Roster, masterCode string) *repository {
	return &repository{db: db, roster: roster, masterCode: masterCode}
}

func (r *repository) HasPIN(ctx context.Context, name string) (bool, error) {
	if !r.roster.Contains(name) {
		return false, ErrUnknownUser
	}

	query := `SELECT 1 FROM user_pins WHERE name = $1`
	var one int
	err := r.db.QueryRowContext(ctx, query, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying pin: %w", err)
	}
	return true, nil
}

// SetPIN creates or replaces the user's PIN. First login goes through here;
// afterwards changes require the master code via ResetPIN.
func (r *repository) SetPIN(ctx context.Context, name, pin string) error {
	if !r.roster.Contains(name) {
		return ErrUnknownUser
	}
	if err := validatePIN(pin); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}

	query := `
        INSERT INTO user_pins (name, pin_hash, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET pin_hash = EXCLUDED.pin_hash
    `
	_, err = r.db.ExecContext(ctx, query, name, string(hash), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving pin: %w", err)
	}
	return nil
}

func (r *repository) VerifyPIN(ctx context.Context, name, pin string) error {
	if !r.roster.Contains(name) {
		return ErrUnknownUser
	}

	query := `SELECT pin_hash FROM user_pins WHERE name = $1`
	var hash string
	err := r.db.QueryRowContext(ctx, query, name).Scan(&hash)
	if err == sql.ErrNoRows {
		return ErrNoPIN
	}
	if err != nil {
		return fmt.Errorf("querying pin: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return ErrInvalidPIN
	}
	return nil
}

// ResetPIN replaces a forgotten PIN when the caller knows the group's master
// code.
func (r *repository) ResetPIN(ctx context.Context, name, masterCode, newPIN string) error {
	if masterCode != r.masterCode {
		return ErrBadMasterCode
	}
	return r.SetPIN(ctx, name, newPIN)
}

func validatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrPINFormat
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return ErrPINFormat
		}
	}
	return nil
}
