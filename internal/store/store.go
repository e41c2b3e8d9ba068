package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// Store is the durable record store contract. Implementations assign
// CreatedAt and Seq on Save and keep records ordered by CreatedAt.
type Store interface {
	// Save persists the record, assigning CreatedAt and Seq. The returned
	// record is the persisted form. A duplicate identifier fails with
	// ErrDuplicateID.
	Save(ctx context.Context, rec *transaction.Record) (*transaction.Record, error)
	// FindByID returns the record with the given identifier or ErrNotFound.
	FindByID(ctx context.Context, id string) (*transaction.Record, error)
	// FindCreatedSince returns records with CreatedAt strictly after t, in
	// ascending CreatedAt order.
	FindCreatedSince(ctx context.Context, t time.Time) ([]*transaction.Record, error)
	// FindAll returns every record in ascending CreatedAt order.
	FindAll(ctx context.Context) ([]*transaction.Record, error)
	Close() error
}

// Sentinel errors shared by all backends.
var (
	ErrNotFound    = errors.New("transaction not found")
	ErrDuplicateID = errors.New("transaction id already exists")
)

// transientError marks a failure as retryable by the ingest pipeline.
type transientError struct{ err error }

func (e *transientError) Error() string { return "transient store error: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable. It passes nil through.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
