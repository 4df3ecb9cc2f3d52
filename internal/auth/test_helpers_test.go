package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rxportal/rxcore/internal/infrastructure/database"
	"github.com/rxportal/rxcore/migrations"
)

// testDB creates a migrated temporary SQLite database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// testHasher returns a fast bcrypt hasher for tests.
func testHasher() *PasswordHasher {
	return NewPasswordHasher(bcrypt.MinCost)
}

// seedTestUser creates a user with password "password123" directly via the repository.
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := testHasher().Hash("password123")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test " + string(role),
		Role:         role,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

// recordingSink collects emitted events.
type recordingSink struct {
	events chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan Event, 64)}
}

func (r *recordingSink) Emit(_ context.Context, e Event) {
	r.events <- e
}

// types drains and returns the types of all events emitted so far.
func (r *recordingSink) types() []EventType {
	var out []EventType
	for {
		select {
		case e := <-r.events:
			out = append(out, e.Type)
		default:
			return out
		}
	}
}

// testService wires a Service over a fresh database.
func testService(t *testing.T) (*Service, *sql.DB, *recordingSink) {
	t.Helper()

	db := testDB(t)
	sink := newRecordingSink()
	svc := NewService(ServiceDeps{
		Users:  NewUserRepository(db),
		Tokens: NewTokenRepository(db),
		Signer: newTestTokenService(t),
		Hasher: testHasher(),
		Events: sink,
	})
	return svc, db, sink
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func expiredAt() time.Time {
	return time.Now().Add(-time.Hour)
}
