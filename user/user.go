package user

import (
	"context"
	"errors"
)

// The app serves a fixed trust group: the roster is static configuration,
// not a registration flow. Identity is the bare name; the only credential is
// a 4-digit PIN created on first login.

type Roster []string

func (r Roster) Contains(name string) bool {
	for _, u := range r {
		if u == name {
			return true
		}
	}
	return false
}

// Partners lists everyone on the roster except the given user.
func (r Roster) Partners(name string) []string {
	partners := make([]string, 0, len(r))
	for _, u := range r {
		if u != name {
			partners = append(partners, u)
		}
	}
	return partners
}

var (
	ErrUnknownUser   = errors.New("user is not on the roster")
	ErrInvalidPIN    = errors.New("invalid pin")
	ErrPINFormat     = errors.New("pin must be exactly 4 digits")
	ErrNoPIN         = errors.New("user has no pin yet")
	ErrBadMasterCode = errors.New("wrong master code")
)

type Repository interface {
	HasPIN(ctx context.Context, name string) (bool, error)
	SetPIN(ctx context.Context, name, pin string) error
	VerifyPIN(ctx context.Context, name, pin string) error
	ResetPIN(ctx context.Context, name, masterCode, newPIN string) error
}
