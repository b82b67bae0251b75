// Package store defines the record store used by the reconciler.
package store

import (
	"context"
	"errors"

	"github.com/betbot/traderelay/internal/domain"
)

// ErrRecordNotFound is the clean miss returned by FindByOrderID.
// It is distinct from a LookupError, which means the store could not answer.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore persists one record per order id.
type RecordStore interface {
	// FindByOrderID returns ErrRecordNotFound when no record exists.
	FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error)
	// Create writes every known field of order; invalid optional fields are omitted.
	Create(ctx context.Context, order domain.Order) (recordHandle string, err error)
	// Update writes only the supplied fields, in a single atomic operation.
	Update(ctx context.Context, recordHandle string, changes domain.Changes) error
	Close() error
}

func lookupError(op string, err error) error {
	return domain.NewError(domain.KindLookupError, op, err)
}

func writeError(op string, err error) error {
	return domain.NewError(domain.KindWriteError, op, err)
}
