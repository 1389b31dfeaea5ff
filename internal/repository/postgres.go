package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, title, description, venue, start_time, end_time,
	capacity, available_tickets, created_at, updated_at`

// PostgresStore persists events in PostgreSQL using pgx directly (no ORM).
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ EventStore = (*PostgresStore)(nil)

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new event and returns it with a generated UUID.
func (r *PostgresStore) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	now := timestamp()
	event := &model.Event{
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

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`, title_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Title, event.Description, event.Venue,
		event.StartTime, event.EndTime, event.Capacity, event.AvailableTickets,
		event.CreatedAt, event.UpdatedAt, model.TitleKey(event.Title),
	)
	if err != nil {
		return nil, storageErr("insert event", err)
	}
	return event, nil
}

// List returns all events ordered by start time, ties broken by id.
func (r *PostgresStore) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY start_time ASC, id COLLATE "C" ASC`,
	)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("scan event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

// GetByID returns a single event or model.ErrEventNotFound.
func (r *PostgresStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, storageErr("get event", err)
	}
	return e, nil
}

// GetByTitle returns the first event whose title key matches title.
func (r *PostgresStore) GetByTitle(ctx context.Context, title string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE title_key = $1
		 ORDER BY start_time ASC, id COLLATE "C" ASC
		 LIMIT 1`,
		model.TitleKey(title),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, storageErr("get event by title", err)
	}
	return e, nil
}

// Update applies an authoring patch under a row lock. The capacity guard
// sees the sold count as of the lock, so a purchase cannot slip in between
// the check and the write.
func (r *PostgresStore) Update(ctx context.Context, id string, patch model.EventPatch) (_ *model.Event, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer rollbackOnError(ctx, tx, &err)

	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, storageErr("lock event row", err)
	}

	if err = patch.Apply(event); err != nil {
		return nil, err
	}
	event.UpdatedAt = timestamp()

	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, venue = $4, start_time = $5, end_time = $6,
		     capacity = $7, available_tickets = $8, updated_at = $9, title_key = $10
		 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Venue, event.StartTime, event.EndTime,
		event.Capacity, event.AvailableTickets, event.UpdatedAt, model.TitleKey(event.Title),
	)
	if err != nil {
		return nil, storageErr("update event", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, storageErr("commit transaction", err)
	}
	return event, nil
}

// Purchase takes quantity tickets inside a single transaction.
//
// SELECT … FOR UPDATE takes a row-level exclusive lock on the event before
// the availability check. Any other transaction that tries to lock the same
// row blocks until this one commits or rolls back, so two buyers can never
// both read the same "before" count. Purchases on other events lock other
// rows and do not wait on this one.
func (r *PostgresStore) Purchase(ctx context.Context, eventID string, quantity int) (_ *model.PurchaseResult, err error) {
	if err = checkQuantity(quantity); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer rollbackOnError(ctx, tx, &err)

	var available int
	err = tx.QueryRow(ctx,
		`SELECT available_tickets FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, storageErr("lock event row", err)
	}

	if available < quantity {
		return nil, fmt.Errorf("%w: requested %d, %d left", model.ErrNotEnoughTickets, quantity, available)
	}

	now := timestamp()
	var remaining int
	err = tx.QueryRow(ctx,
		`UPDATE events
		 SET available_tickets = available_tickets - $2, updated_at = $3
		 WHERE id = $1
		 RETURNING available_tickets`,
		eventID, quantity, now,
	).Scan(&remaining)
	if err != nil {
		return nil, storageErr("decrement available_tickets", err)
	}

	booking := model.Booking{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, event_id, quantity, created_at)
		 VALUES ($1, $2, $3, $4)`,
		booking.ID, booking.EventID, booking.Quantity, booking.CreatedAt,
	)
	if err != nil {
		return nil, storageErr("insert booking", err)
	}

	// Only now does any other transaction see the change.
	if err = tx.Commit(ctx); err != nil {
		return nil, storageErr("commit transaction", err)
	}

	return &model.PurchaseResult{
		EventID:   eventID,
		Remaining: remaining,
		BookingID: booking.ID,
	}, nil
}

// ListBookings returns all bookings for a given event.
func (r *PostgresStore) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	if _, err := r.GetByID(ctx, eventID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, quantity, created_at
		 FROM bookings
		 WHERE event_id = $1
		 ORDER BY created_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.EventID, &b.Quantity, &b.CreatedAt); err != nil {
			return nil, storageErr("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return bookings, nil
}

// rollbackOnError resolves the transaction when the caller returns an
// error. The rollback ignores cancellation of ctx: a caller that gave up
// must still leave the row unlocked and unchanged.
func rollbackOnError(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Venue, &e.StartTime, &e.EndTime,
		&e.Capacity, &e.AvailableTickets, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
