package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteStore persists events in the shared SQLite database file.
//
// SQLite has no row locks. Purchase and Update open the transaction with
// BEGIN IMMEDIATE, which takes the database write lock before the first
// read; the busy timeout queues competing writers behind it. That makes the
// read-check-decrement sequence serial across every connection and process
// sharing the file. Readers are not blocked under WAL.
type SQLiteStore struct {
	pool *database.SQLitePool
}

var _ EventStore = (*SQLiteStore)(nil)

// NewSQLiteStore returns a store backed by pool. The schema must already be
// applied with database.SQLitePool.Migrate.
func NewSQLiteStore(pool *database.SQLitePool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

// Create inserts a new event with every ticket available.
func (s *SQLiteStore) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

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

	err = sqlitex.Execute(conn,
		`INSERT INTO events (`+eventColumns+`, title_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				event.ID, event.Title, event.Description, event.Venue,
				event.StartTime.UnixNano(), event.EndTime.UnixNano(),
				event.Capacity, event.AvailableTickets,
				event.CreatedAt.UnixNano(), event.UpdatedAt.UnixNano(),
				model.TitleKey(event.Title),
			},
		})
	if err != nil {
		return nil, storageErr("insert event", err)
	}
	return event, nil
}

// List returns every event ordered by start time, then id.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	var events []model.Event
	err = sqlitex.Execute(conn,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY start_time ASC, id ASC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				events = append(events, readEvent(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

// GetByID returns one event or model.ErrEventNotFound.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	event, err := getEventSQLite(conn, id)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetByTitle returns the first event, in List order, whose title key
// matches title.
func (s *SQLiteStore) GetByTitle(ctx context.Context, title string) (*model.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	var event *model.Event
	err = sqlitex.Execute(conn,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE title_key = ?
		 ORDER BY start_time ASC, id ASC
		 LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{model.TitleKey(title)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e := readEvent(stmt)
				event = &e
				return nil
			},
		})
	if err != nil {
		return nil, storageErr("get event by title", err)
	}
	if event == nil {
		return nil, model.ErrEventNotFound
	}
	return event, nil
}

// Update applies patch inside an immediate transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch model.EventPatch) (_ *model.Event, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer endTransaction(&err)

	event, err := getEventSQLite(conn, id)
	if err != nil {
		return nil, err
	}

	if err = patch.Apply(event); err != nil {
		return nil, err
	}
	event.UpdatedAt = timestamp()

	err = sqlitex.Execute(conn,
		`UPDATE events
		 SET title = ?, description = ?, venue = ?, start_time = ?, end_time = ?,
		     capacity = ?, available_tickets = ?, updated_at = ?, title_key = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				event.Title, event.Description, event.Venue,
				event.StartTime.UnixNano(), event.EndTime.UnixNano(),
				event.Capacity, event.AvailableTickets, event.UpdatedAt.UnixNano(),
				model.TitleKey(event.Title), event.ID,
			},
		})
	if err != nil {
		return nil, storageErr("update event", err)
	}
	return event, nil
}

// Purchase takes quantity tickets and records a booking inside an
// immediate transaction.
func (s *SQLiteStore) Purchase(ctx context.Context, eventID string, quantity int) (_ *model.PurchaseResult, err error) {
	if err = checkQuantity(quantity); err != nil {
		return nil, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	// endTransaction commits when err is nil and rolls back otherwise.
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer endTransaction(&err)

	// A caller that gave up while queued on the write lock gets nothing.
	if err = ctx.Err(); err != nil {
		return nil, storageErr("purchase", err)
	}

	available := -1
	err = sqlitex.Execute(conn,
		`SELECT available_tickets FROM events WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{eventID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				available = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return nil, storageErr("read available_tickets", err)
	}
	if available < 0 {
		return nil, model.ErrEventNotFound
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: requested %d, %d left", model.ErrNotEnoughTickets, quantity, available)
	}

	now := timestamp().UnixNano()
	err = sqlitex.Execute(conn,
		`UPDATE events
		 SET available_tickets = available_tickets - ?, updated_at = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{quantity, now, eventID}})
	if err != nil {
		return nil, storageErr("decrement available_tickets", err)
	}

	bookingID := uuid.New().String()
	err = sqlitex.Execute(conn,
		`INSERT INTO bookings (id, event_id, quantity, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{bookingID, eventID, quantity, now}})
	if err != nil {
		return nil, storageErr("insert booking", err)
	}

	// The write lock has been held since BEGIN, so this is the committed value.
	return &model.PurchaseResult{
		EventID:   eventID,
		Remaining: available - quantity,
		BookingID: bookingID,
	}, nil
}

// ListBookings returns an event's bookings, oldest first.
func (s *SQLiteStore) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("take connection", err)
	}
	defer s.pool.Put(conn)

	if _, err := getEventSQLite(conn, eventID); err != nil {
		return nil, err
	}

	var bookings []model.Booking
	err = sqlitex.Execute(conn,
		`SELECT id, event_id, quantity, created_at
		 FROM bookings
		 WHERE event_id = ?
		 ORDER BY created_at ASC, rowid ASC`,
		&sqlitex.ExecOptions{
			Args: []any{eventID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				bookings = append(bookings, model.Booking{
					ID:        stmt.ColumnText(0),
					EventID:   stmt.ColumnText(1),
					Quantity:  stmt.ColumnInt(2),
					CreatedAt: fromUnixNano(stmt.ColumnInt64(3)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return bookings, nil
}

func getEventSQLite(conn *sqlite.Conn, id string) (*model.Event, error) {
	var event *model.Event
	err := sqlitex.Execute(conn,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e := readEvent(stmt)
				event = &e
				return nil
			},
		})
	if err != nil {
		return nil, storageErr("get event", err)
	}
	if event == nil {
		return nil, model.ErrEventNotFound
	}
	return event, nil
}

// readEvent decodes a row selected with eventColumns.
func readEvent(stmt *sqlite.Stmt) model.Event {
	return model.Event{
		ID:               stmt.ColumnText(0),
		Title:            stmt.ColumnText(1),
		Description:      stmt.ColumnText(2),
		Venue:            stmt.ColumnText(3),
		StartTime:        fromUnixNano(stmt.ColumnInt64(4)),
		EndTime:          fromUnixNano(stmt.ColumnInt64(5)),
		Capacity:         stmt.ColumnInt(6),
		AvailableTickets: stmt.ColumnInt(7),
		CreatedAt:        fromUnixNano(stmt.ColumnInt64(8)),
		UpdatedAt:        fromUnixNano(stmt.ColumnInt64(9)),
	}
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
