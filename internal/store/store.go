package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-hclog"
	"github.com/lib/pq"

	// SQL drivers, dialect-selected at runtime via the dsn/dialect passed to Open.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable conversation store (C4) and the persistence backend
// for C3's user auto-provisioning. It is dialect-aware: the same query
// builders serve postgres, mysql, and sqlite by emitting `?` placeholders
// everywhere and rewriting to `$N` only for postgres.
type Store struct {
	db      *sql.DB
	dialect string
	logger  hclog.Logger
}

// New wraps an already-open *sql.DB for the given dialect
// ("postgres"|"mysql"|"sqlite") and applies schema DDL idempotently.
func New(db *sql.DB, dialect string, logger hclog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Store{db: db, dialect: dialect, logger: logger.Named("store")}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, s.q(stmt)); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// q rewrites `?` placeholders to `$1, $2, ...` for postgres; other dialects
// use `?` verbatim.
func (s *Store) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	return convertToPostgresPlaceholders(query)
}

func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// isUniqueViolation recognizes a unique-constraint error across the three
// supported drivers, used by C3 to tolerate a concurrent user create.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	if myErr, ok := err.(*mysql.MySQLError); ok {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// withRetry retries a transient operation up to two additional times with
// exponential backoff, per C4's "transient failures retry at most twice"
// contract. fn must be idempotent or wrapped in its own transaction.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= 2; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt < 2 {
			select {
			case <-time.After(time.Duration(1<<attempt) * 50 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// isTransient distinguishes retryable infrastructure failures from
// integrity violations, which must never be retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if isUniqueViolation(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadlock")
}
