package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps events in process memory. Each event has its own mutex,
// so purchases on one event are serialized while purchases on different
// events proceed in parallel. The index lock is held only long enough to
// find an event's slot.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*eventSlot
}

type eventSlot struct {
	mu       sync.Mutex
	event    model.Event
	bookings []model.Booking
}

var _ EventStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*eventSlot)}
}

// Create inserts a new event with every ticket available.
func (s *MemoryStore) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("insert event", err)
	}

	now := timestamp()
	event := model.Event{
		ID:               uuid.New().String(),
		Title:            req.Title,
		Description:      req.Description,
		Venue:            req.Venue,
		StartTime:        model.StorageTime(req.StartTime),
		EndTime:          model.StorageTime(req.EndTime),
		Capacity:         req.Capacity,
		AvailableTickets: req.Capacity,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	s.slots[event.ID] = &eventSlot{event: event}
	s.mu.Unlock()

	return &event, nil
}

// List returns a snapshot of every event ordered by start time, then id.
func (s *MemoryStore) List(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list events", err)
	}
	return s.sorted(), nil
}

// GetByID returns a copy of one event or model.ErrEventNotFound.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get event", err)
	}
	slot, ok := s.slot(id)
	if !ok {
		return nil, model.ErrEventNotFound
	}
	slot.mu.Lock()
	event := slot.event
	slot.mu.Unlock()
	return &event, nil
}

// GetByTitle returns the first event, in List order, whose title key
// matches title.
func (s *MemoryStore) GetByTitle(ctx context.Context, title string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get event by title", err)
	}
	key := model.TitleKey(title)
	for _, e := range s.sorted() {
		if model.TitleKey(e.Title) == key {
			return &e, nil
		}
	}
	return nil, model.ErrEventNotFound
}

// Update applies patch while holding the event's lock.
func (s *MemoryStore) Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error) {
	slot, ok := s.slot(id)
	if !ok {
		return nil, model.ErrEventNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, storageErr("update event", err)
	}

	// Apply works on a copy and only writes back on success.
	event := slot.event
	if err := patch.Apply(&event); err != nil {
		return nil, err
	}
	event.UpdatedAt = timestamp()
	slot.event = event

	return &event, nil
}

// Purchase takes quantity tickets and records a booking while holding the
// event's lock.
func (s *MemoryStore) Purchase(ctx context.Context, eventID string, quantity int) (*model.PurchaseResult, error) {
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	slot, ok := s.slot(eventID)
	if !ok {
		return nil, model.ErrEventNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	// A caller that gave up while queued on the lock gets nothing.
	if err := ctx.Err(); err != nil {
		return nil, storageErr("purchase", err)
	}

	available := slot.event.AvailableTickets
	if available < quantity {
		return nil, fmt.Errorf("%w: requested %d, %d left", model.ErrNotEnoughTickets, quantity, available)
	}

	now := timestamp()
	booking := model.Booking{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	slot.event.AvailableTickets = available - quantity
	slot.event.UpdatedAt = now
	slot.bookings = append(slot.bookings, booking)

	return &model.PurchaseResult{
		EventID:   eventID,
		Remaining: slot.event.AvailableTickets,
		BookingID: booking.ID,
	}, nil
}

// ListBookings returns a copy of an event's bookings, oldest first.
func (s *MemoryStore) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	slot, ok := s.slot(eventID)
	if !ok {
		return nil, model.ErrEventNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slices.Clone(slot.bookings), nil
}

func (s *MemoryStore) slot(id string) (*eventSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	return slot, ok
}

// sorted snapshots every event in List order.
func (s *MemoryStore) sorted() []model.Event {
	s.mu.RLock()
	slots := make([]*eventSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	events := make([]model.Event, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		events = append(events, slot.event)
		slot.mu.Unlock()
	}

	slices.SortFunc(events, func(a, b model.Event) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return events
}
