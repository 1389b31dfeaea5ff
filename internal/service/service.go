// Package service implements the ticket inventory manager: validation and
// orchestration between HTTP handlers and the event store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/repository"
)

// MaxCapacity bounds the capacity an organizer may set.
const MaxCapacity = 100_000

// EventService is the one inventory manager every caller goes through:
// the REST handlers, the admin authoring path and natural-language booking.
type EventService struct {
	store  repository.EventStore
	logger *slog.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.EventStore, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventService{store: store, logger: logger}
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Venue = strings.TrimSpace(req.Venue)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time and end_time are required", model.ErrValidation)
	}
	req.StartTime = model.StorageTime(req.StartTime)
	req.EndTime = model.StorageTime(req.EndTime)
	if err := model.CheckTimeWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if err := validateCapacity(req.Capacity); err != nil {
		return nil, err
	}

	event, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, classify("create event", err)
	}

	s.logger.Info("event created",
		"event_id", event.ID,
		"title", event.Title,
		"capacity", event.Capacity,
	)
	return event, nil
}

// UpdateEvent applies an authoring patch. Capacity changes keep the sold
// count fixed and fail with model.ErrCapacityBelowSold if they would undercut it.
func (s *EventService) UpdateEvent(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error) {
	if id == "" {
		return nil, model.ErrEventNotFound
	}
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", model.ErrValidation)
	}
	if patch.Capacity != nil {
		if err := validateCapacity(*patch.Capacity); err != nil {
			return nil, err
		}
	}
	if patch.StartTime != nil {
		t := model.StorageTime(*patch.StartTime)
		patch.StartTime = &t
	}
	if patch.EndTime != nil {
		t := model.StorageTime(*patch.EndTime)
		patch.EndTime = &t
	}

	event, err := s.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, model.ErrCapacityBelowSold) {
			s.logger.Warn("capacity shrink rejected",
				"event_id", id,
				"requested_capacity", *patch.Capacity,
			)
		}
		return nil, classify("update event", err)
	}

	s.logger.Info("event updated",
		"event_id", event.ID,
		"capacity", event.Capacity,
		"available_tickets", event.AvailableTickets,
	)
	return event, nil
}

// ListEvents returns all events ordered by start time, then id.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, classify("list events", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, model.ErrEventNotFound
	}
	event, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, classify("get event", err)
	}
	return event, nil
}

// GetEventByName resolves a title, ignoring case and surrounding space.
func (s *EventService) GetEventByName(ctx context.Context, title string) (*model.Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.ErrEventNotFound
	}
	event, err := s.store.GetByTitle(ctx, title)
	if err != nil {
		return nil, classify("get event by name", err)
	}
	return event, nil
}

// Purchase sells quantity tickets for an event, all or nothing.
func (s *EventService) Purchase(ctx context.Context, eventID string, quantity int) (*model.PurchaseResult, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}
	if eventID == "" {
		return nil, model.ErrEventNotFound
	}

	res, err := s.store.Purchase(ctx, eventID, quantity)
	if err != nil {
		err = classify("purchase", err)
		if model.Retryable(err) {
			s.logger.Error("purchase failed",
				"event_id", eventID,
				"quantity", quantity,
				"error", err,
			)
		} else {
			s.logger.Info("purchase rejected",
				"event_id", eventID,
				"quantity", quantity,
				"reason", err.Error(),
			)
		}
		return nil, err
	}

	s.logger.Info("tickets purchased",
		"event_id", eventID,
		"quantity", quantity,
		"remaining", res.Remaining,
		"booking_id", res.BookingID,
	)
	return res, nil
}

// BookByName is the natural-language booking path: it resolves the title to
// an event and then goes through Purchase like any other caller. Callers
// default a missing quantity to one before calling.
func (s *EventService) BookByName(ctx context.Context, title string, quantity int) (*model.PurchaseResult, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}

	event, err := s.GetEventByName(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.Purchase(ctx, event.ID, quantity)
}

// ListBookings returns all bookings for an event.
func (s *EventService) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	if eventID == "" {
		return nil, model.ErrEventNotFound
	}
	bookings, err := s.store.ListBookings(ctx, eventID)
	if err != nil {
		return nil, classify("list bookings", err)
	}
	return bookings, nil
}

func validateCapacity(capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: capacity cannot be negative", model.ErrValidation)
	}
	if capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity cannot exceed %d", model.ErrValidation, MaxCapacity)
	}
	return nil
}

// classify passes business-rule errors through untouched and marks anything
// else as a storage failure, so every error leaving the service has a kind.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrEventNotFound),
		errors.Is(err, model.ErrNotEnoughTickets),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrCapacityBelowSold),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrStorage):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
	}
}
