// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the requested entity does not exist or is not owned
	// by the caller. Callers cannot tell the two cases apart.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an identity is already taken (email or
	// telegram id hit the unique index).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInsufficientBalance indicates a debit was rejected by the balance guard.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUpstream indicates an LLM vendor failure or timeout. Never retried.
	ErrUpstream = errors.New("upstream failure")

	// ErrConflict indicates an optimistic concurrency failure; callers may retry.
	ErrConflict = errors.New("concurrent update conflict")
)

// InsufficientBalanceError carries the amounts the client needs to render a
// top-up prompt. Unwraps to ErrInsufficientBalance.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(4), e.Available.StringFixed(4))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
