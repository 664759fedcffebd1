// Package database provides database connection utilities.
//
// The MetaStore lives in a single SQLite file so that the writer can ship
// it to followers as one blob and followers can replace it atomically. The
// connection discipline is single-writer, multi-reader: one exclusive
// write connection, a pooled set of read connections.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Meta wraps the MetaStore backing file.
type Meta struct {
	path string

	// mu guards the handle swap during a snapshot replace. Queries take
	// the read lock for the duration of a handle fetch only; the pull
	// path owns the write lock.
	mu     sync.RWMutex
	writer *sql.DB
	reader *sql.DB
}

// OpenMeta opens (creating if necessary) the MetaStore at path and applies
// pending migrations.
func OpenMeta(path string) (*Meta, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create meta dir: %w", err)
	}

	m := &Meta{path: path}
	if err := m.open(); err != nil {
		return nil, err
	}
	if err := m.migrate(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Meta) open() error {
	// The journal stays in rollback mode so the database remains a single
	// file on disk; WAL would leave -wal/-shm companions out of the
	// snapshot.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(TRUNCATE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", m.path)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return fmt.Errorf("open metastore reader: %w", err)
	}
	reader.SetMaxOpenConns(8)

	m.writer = writer
	m.reader = reader
	return nil
}

// Writer returns the exclusive write connection.
func (m *Meta) Writer() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writer
}

// Reader returns the pooled read connections.
func (m *Meta) Reader() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader
}

// Close closes both connection sets.
func (m *Meta) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Meta) closeLocked() error {
	var firstErr error
	for _, db := range []*sql.DB{m.writer, m.reader} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.writer, m.reader = nil, nil
	return firstErr
}

// Ping verifies the database file is reachable.
func (m *Meta) Ping(ctx context.Context) error {
	return m.Reader().PingContext(ctx)
}

// migrate applies all pending schema migrations.
func (m *Meta) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	mg, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+m.path)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer mg.Close()

	if err := mg.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Snapshot produces a zstd-compressed point-in-time copy of the database.
// VACUUM INTO writes a consistent copy without blocking readers.
func (m *Meta) Snapshot(ctx context.Context) ([]byte, error) {
	tmp := fmt.Sprintf("%s.snapshot-%d", m.path, time.Now().UnixNano())
	defer os.Remove(tmp)

	if _, err := m.Writer().ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return nil, fmt.Errorf("vacuum into snapshot: %w", err)
	}

	raw, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Replace atomically swaps the backing file for the decompressed snapshot.
// The new file is written next to the target and renamed into place; a
// failure at any point leaves the current database untouched.
func (m *Meta) Replace(ctx context.Context, compressed io.Reader) error {
	dec, err := zstd.NewReader(compressed)
	if err != nil {
		return fmt.Errorf("open snapshot stream: %w", err)
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(filepath.Dir(m.path), "metadata.db.pull-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, dec); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		return fmt.Errorf("close metastore for replace: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		// Reopen the old file so the node keeps serving reads.
		m.open()
		return fmt.Errorf("replace metastore: %w", err)
	}
	return m.open()
}

// Path returns the backing file path.
func (m *Meta) Path() string { return m.path }
