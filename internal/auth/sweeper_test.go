package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDeleter struct {
	calls chan struct{}
	n     int64
	err   error
}

func (f *fakeDeleter) DeleteExpired(context.Context) (int64, error) {
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return f.n, f.err
}

func TestSweeper_SweepOnce(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "sweeper@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("x"), ExpiresAt: expiredAt()}) //nolint:errcheck // test setup

	if n := NewSweeper(repo, time.Hour, nil).SweepOnce(ctx); n != 1 {
		t.Errorf("SweepOnce() = %d, want 1", n)
	}
}

func TestSweeper_SweepOnce_Error(t *testing.T) {
	s := NewSweeper(&fakeDeleter{calls: make(chan struct{}, 1), err: errors.New("locked")}, time.Hour, nil)
	if n := s.SweepOnce(context.Background()); n != 0 {
		t.Errorf("SweepOnce() = %d, want 0 on error", n)
	}
}

func TestSweeper_RunTicksUntilCancelled(t *testing.T) {
	fake := &fakeDeleter{calls: make(chan struct{}, 1)}
	s := NewSweeper(fake, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-fake.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewSweeper(&fakeDeleter{}, 0, nil).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
