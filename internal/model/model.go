// Package model defines the core domain types for the campus ticketing system.
package model

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Event times must fall inside this window. Both ends are representable as
// Unix nanoseconds, which the SQLite schema stores.
var (
	EarliestEventTime = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	LatestEventTime   = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// StorageTime returns t in UTC at microsecond precision, the finest
// resolution PostgreSQL timestamps keep.
func StorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// TitleKey is the lookup form of an event title: trimmed and Unicode
// case-folded, so "CAFÉ NIGHT" and "café night" share a key.
func TitleKey(title string) string {
	return cases.Fold().String(strings.TrimSpace(title))
}

// CheckTimeWindow validates an event's start and end times.
func CheckTimeWindow(start, end time.Time) error {
	for _, t := range []time.Time{start, end} {
		if t.Before(EarliestEventTime) || !t.Before(LatestEventTime) {
			return fmt.Errorf("%w: event times must be between %s and %s",
				ErrValidation, EarliestEventTime.Format(time.DateOnly), LatestEventTime.Format(time.DateOnly))
		}
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	return nil
}

// Event is a ticketed campus occurrence with a fixed capacity and a time window.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Capacity         int       `json:"capacity"`
	AvailableTickets int       `json:"available_tickets"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Sold returns the number of tickets already sold.
func (e *Event) Sold() int {
	return e.Capacity - e.AvailableTickets
}

// SoldOut returns true when no tickets remain.
func (e *Event) SoldOut() bool {
	return e.AvailableTickets <= 0
}

// Summary returns the list-view projection of the event.
func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:               e.ID,
		Title:            e.Title,
		StartTime:        e.StartTime,
		AvailableTickets: e.AvailableTickets,
	}
}

// EventSummary is the shape returned by the event listing.
type EventSummary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	StartTime        time.Time `json:"start_time"`
	AvailableTickets int       `json:"available_tickets"`
}

// Booking records one successful purchase. It is never mutated after creation.
type Booking struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// PurchaseResult is returned by a successful purchase. Remaining is the
// post-commit availability of the event.
type PurchaseResult struct {
	EventID   string `json:"event_id"`
	Remaining int    `json:"remaining"`
	BookingID string `json:"booking_id"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Capacity    int       `json:"capacity"`
}

// EventPatch is a partial update to an event. Nil fields are left unchanged.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
}

// Apply merges the patch into e. A capacity change keeps the number of sold
// tickets fixed and recomputes AvailableTickets from it; shrinking capacity
// below what has been sold fails with ErrCapacityBelowSold and leaves e
// untouched.
func (p EventPatch) Apply(e *Event) error {
	next := *e

	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
		if next.Title == "" {
			return fmt.Errorf("%w: title is required", ErrValidation)
		}
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Venue != nil {
		next.Venue = strings.TrimSpace(*p.Venue)
	}
	if p.StartTime != nil {
		next.StartTime = StorageTime(*p.StartTime)
	}
	if p.EndTime != nil {
		next.EndTime = StorageTime(*p.EndTime)
	}
	if err := CheckTimeWindow(next.StartTime, next.EndTime); err != nil {
		return err
	}

	if p.Capacity != nil {
		sold := e.Sold()
		if *p.Capacity < 0 {
			return fmt.Errorf("%w: capacity cannot be negative", ErrValidation)
		}
		if *p.Capacity < sold {
			return fmt.Errorf("%w: %d tickets already sold, requested capacity %d",
				ErrCapacityBelowSold, sold, *p.Capacity)
		}
		next.Capacity = *p.Capacity
		next.AvailableTickets = *p.Capacity - sold
	}

	*e = next
	return nil
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Venue == nil &&
		p.StartTime == nil && p.EndTime == nil && p.Capacity == nil
}

// PurchaseRequest is the payload for buying tickets. A missing quantity
// means one ticket.
type PurchaseRequest struct {
	Quantity *int `json:"quantity,omitempty"`
}

// ParseRequest is the payload for natural-language intent parsing.
type ParseRequest struct {
	Text string `json:"text"`
}

// ConfirmBookingRequest books tickets for an event referenced by title. A
// missing Tickets means one ticket; an explicit zero is rejected.
type ConfirmBookingRequest struct {
	Event   string `json:"event"`
	Tickets *int   `json:"tickets,omitempty"`
}

// ConfirmBookingResponse is returned by a successful booking by name.
type ConfirmBookingResponse struct {
	Message string `json:"message"`
	PurchaseResult
}

// ErrorResponse is a standard JSON error envelope. Code is stable across
// releases so clients can branch on it.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
