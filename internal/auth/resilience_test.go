package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// Resilience tests verify that the auth subsystem handles failure scenarios
// gracefully. These tests use the TestResilience_ prefix for easy filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// TestResilience_ConcurrentRefresh presents the same refresh token from two
// goroutines. Exactly one rotation wins; the other sees the token gone.
func TestResilience_ConcurrentRefresh(t *testing.T) {
	svc, db, _ := testService(t)
	ctx := context.Background()
	seedTestUser(t, db, "race@test.com", RoleDoctor)

	session, err := svc.Login(ctx, "race@test.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	const attempts = 2
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	start := make(chan struct{})

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, session.User.ID, session.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidRefreshToken):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("successes = %d, rejections = %d; want 1 and 1", ok, rejected)
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", session.User.ID); n != 1 {
		t.Errorf("stored tokens = %d, want 1", n)
	}
}

// TestResilience_RotationInsertFailureKeepsOldToken forces the replacement
// insert to fail and checks the consuming delete is rolled back with it.
func TestResilience_RotationInsertFailureKeepsOldToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	repo := NewTokenRepository(db)
	oldHash := HashToken("old-token")
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, expires_at FROM refresh_tokens WHERE token_hash = ?")).
		WithArgs(oldHash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}).AddRow("rt-old", "usr-1", future))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE id = ?")).
		WithArgs("rt-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	next := &RefreshToken{UserID: "usr-1", TokenHash: HashToken("new-token"), ExpiresAt: time.Now().Add(time.Hour)}
	err = repo.Rotate(context.Background(), "usr-1", oldHash, next)
	if err == nil {
		t.Fatal("Rotate() should fail when the insert fails")
	}
	if errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("store failure should not be reported as an invalid token: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestResilience_UpdatePasswordFailureRollsBack fails the password write of
// a combined update and checks the email change is rolled back with it.
func TestResilience_UpdatePasswordFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?")).
		WithArgs("changed@test.com", "Name", sqlmock.AnyArg(), "usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = ? WHERE id = ?")).
		WithArgs("new-hash", "usr-1").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	user := &User{ID: "usr-1", Email: "changed@test.com", Name: "Name", Role: RoleAdmin, PasswordHash: "old-hash"}
	if err := repo.Update(context.Background(), user, "new-hash"); err == nil {
		t.Fatal("Update() should fail when the password write fails")
	}
	if user.PasswordHash != "old-hash" {
		t.Errorf("PasswordHash = %q after failed update, want old-hash", user.PasswordHash)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
