package library

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrOutOfStock       = errors.New("no available copies")
	ErrInvalidRole      = errors.New("invalid role for operation")
	ErrInvalidRange     = errors.New("value out of range")
	ErrAlreadyReturned  = errors.New("loan already returned")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrDuplicateLoan    = errors.New("student already holds this book")
	ErrOutstandingLoans = errors.New("book has outstanding loans")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("invalid credentials")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrOutOfStock, "OutOfStock"},
	{ErrInvalidRole, "InvalidRole"},
	{ErrInvalidRange, "InvalidRange"},
	{ErrAlreadyReturned, "AlreadyReturned"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrDuplicateLoan, "DuplicateLoan"},
	{ErrOutstandingLoans, "OutstandingLoans"},
	{ErrConflict, "Conflict"},
	{ErrUnauthenticated, "Unauthenticated"},
	{context.Canceled, "Canceled"},
	{context.DeadlineExceeded, "Canceled"},
}

// Kind names the category of err so a presentation layer can pick its wording.
// It returns "" for nil and "Internal" for errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Retryable reports whether the caller may retry the request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// storeErr marks a driver failure as transient while keeping the cause. A
// cancelled or expired ctx is the caller's doing and is passed through.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
