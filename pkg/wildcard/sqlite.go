package wildcard

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

// SQLiteSchema is the table layout SQLiteStore reads. Values of one name
// are ordered by position.
const SQLiteSchema = `CREATE TABLE IF NOT EXISTS wildcard_values (
	name     TEXT    NOT NULL,
	value    TEXT    NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS wildcard_values_name ON wildcard_values (name, position);`

// SQLiteStore serves a snapshot of the wildcard_values table. The
// database is opened read-only.
type SQLiteStore struct {
	sqlDB *sql.DB

	mu   sync.RWMutex
	data snapshot
}

// OpenSQLite opens the database at path and loads its wildcards.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("wildcard database path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?mode=ro&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}

	s := &SQLiteStore{sqlDB: sqlDB}
	if err := s.Reload(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Reload reads the table again.
func (s *SQLiteStore) Reload(ctx context.Context) error {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, value FROM wildcard_values ORDER BY name, position, rowid`)
	if err != nil {
		return errors.Wrap(err, "query wildcard values")
	}
	defer rows.Close()

	data := make(snapshot)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return errors.Wrap(err, "scan wildcard value")
		}
		data[name] = append(data[name], value)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "read wildcard values")
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	logging.Debug("Loaded %d wildcard names from database", len(data))
	return nil
}

func (s *SQLiteStore) GetAllValues(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.values(name)
}

func (s *SQLiteStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.names()
}
