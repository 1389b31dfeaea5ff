// Package repository owns every read and write of event inventory. Each
// backend implements EventStore so that callers never embed their own SQL
// against the events table.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
)

// EventStore is the single source of truth for event capacity and
// availability.
//
// Purchase and Update run as one isolated unit of work per call: the row is
// locked before it is read, so concurrent callers on the same event are
// serialized and none of them can act on a stale count. A failed call leaves
// the event unchanged.
type EventStore interface {
	// Create inserts a new event with AvailableTickets equal to Capacity.
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)

	// List returns all events ordered by start time, then id.
	List(ctx context.Context) ([]model.Event, error)

	// GetByID returns model.ErrEventNotFound when id does not exist.
	GetByID(ctx context.Context, id string) (*model.Event, error)

	// GetByTitle matches titles by model.TitleKey and returns the first
	// match in List order, or model.ErrEventNotFound.
	GetByTitle(ctx context.Context, title string) (*model.Event, error)

	// Update applies patch under the capacity guard of model.EventPatch.Apply.
	Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error)

	// Purchase atomically takes quantity tickets from the event and records
	// a booking. It never sells fewer than quantity.
	Purchase(ctx context.Context, eventID string, quantity int) (*model.PurchaseResult, error)

	// ListBookings returns an event's bookings, oldest first.
	ListBookings(ctx context.Context, eventID string) ([]model.Booking, error)
}

// storageErr tags err as a storage failure so callers can tell it apart
// from business-rule failures.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}

// checkQuantity guards every backend against non-positive quantities even
// when a caller skipped validation.
func checkQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}
	return nil
}

// timestamp is the current time at the precision every backend stores, so
// a value returned by a write equals the value read back later.
func timestamp() time.Time {
	return model.StorageTime(time.Now())
}
