package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the database URL:
// empty for in-memory, postgres:// for PostgreSQL, sqlite:// or file: for SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteStore(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", u)
	}
}

// ModeOf names the backend behind s for health output.
func ModeOf(s Store) string {
	switch s.(type) {
	case *InMemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *SQLiteStore:
		return "sqlite"
	default:
		return "custom"
	}
}
