package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteConfig holds the parameters for opening the shared SQLite file.
type SQLiteConfig struct {
	// Path is the database file. Its parent directory is created if
	// missing.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4). SQLite serializes
	// writers regardless; extra connections only help concurrent readers.
	PoolSize int

	Logger *slog.Logger
}

// SQLitePool is a fixed-size pool of SQLite connections. Connections are not
// safe for concurrent use: each goroutine must Take its own and Put it back.
type SQLitePool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// OpenSQLite opens the pool and applies the standard pragmas to every
// connection. Connections are initialized lazily on first Take.
func OpenSQLite(cfg SQLiteConfig) (*SQLitePool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
	)

	return &SQLitePool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Take borrows a connection. It blocks until one is available or ctx is
// cancelled; ctx also interrupts statements running on the connection.
func (p *SQLitePool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *SQLitePool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections, waiting for borrowed ones to be returned.
func (p *SQLitePool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlite: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// Migrate applies the event and booking schema. It is idempotent.
func (p *SQLitePool) Migrate(ctx context.Context) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if err := migrateTitleKey(conn); err != nil {
		return fmt.Errorf("sqlite: title_key: %w", err)
	}
	return nil
}

// migrateTitleKey adds the title_key column to files created before it
// existed and fills it for rows that lack one.
func migrateTitleKey(conn *sqlite.Conn) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return err
	}
	defer endTransaction(&err)

	hasColumn := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM pragma_table_info('events') WHERE name = 'title_key'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(*sqlite.Stmt) error {
				hasColumn = true
				return nil
			},
		})
	if err != nil {
		return err
	}
	if !hasColumn {
		err = sqlitex.ExecuteTransient(conn,
			`ALTER TABLE events ADD COLUMN title_key TEXT NOT NULL DEFAULT ''`, nil)
		if err != nil {
			return err
		}
	}
	err = sqlitex.ExecuteTransient(conn,
		`CREATE INDEX IF NOT EXISTS events_title_key_idx ON events (title_key, start_time, id)`, nil)
	if err != nil {
		return err
	}

	stale := map[string]string{}
	err = sqlitex.Execute(conn,
		`SELECT id, title FROM events WHERE title_key = ''`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stale[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return err
	}
	for id, title := range stale {
		err = sqlitex.Execute(conn,
			`UPDATE events SET title_key = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{model.TitleKey(title), id}})
		if err != nil {
			return err
		}
	}
	return nil
}

// prepareConnection runs once per pooled connection.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		// Writers queue behind the write lock instead of failing with
		// SQLITE_BUSY while another purchase commits.
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}
