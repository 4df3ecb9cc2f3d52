package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenRepository_CreateAndGetByTokenHash(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "tokenuser@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	token := &RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken("signed-refresh-token"),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByTokenHash(ctx, HashToken("signed-refresh-token"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.ID != token.ID || got.UserID != user.ID {
		t.Errorf("got %+v, want id %s user %s", got, token.ID, user.ID)
	}

	if _, err := repo.GetByTokenHash(ctx, HashToken("unknown")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("GetByTokenHash(unknown) error = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestTokenRepository_DuplicateHashRejected(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "dup@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	first := &RefreshToken{UserID: user.ID, TokenHash: HashToken("same"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second := &RefreshToken{UserID: user.ID, TokenHash: HashToken("same"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, second); err == nil {
		t.Error("Create() with duplicate token hash should fail")
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "rotate@test.com", RoleDoctor)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	old := &RefreshToken{UserID: user.ID, TokenHash: HashToken("old"), ExpiresAt: time.Now().Add(time.Hour)}
	repo.Create(ctx, old) //nolint:errcheck // test setup

	next := &RefreshToken{UserID: user.ID, TokenHash: HashToken("new"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, user.ID, HashToken("old"), next); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	if _, err := repo.GetByTokenHash(ctx, HashToken("old")); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("old token still present after rotation, err = %v", err)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("new")); err != nil {
		t.Errorf("new token missing after rotation: %v", err)
	}

	// Replaying the consumed token fails.
	again := &RefreshToken{UserID: user.ID, TokenHash: HashToken("newer"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, user.ID, HashToken("old"), again); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Rotate(consumed) error = %v, want ErrInvalidRefreshToken", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID); n != 1 {
		t.Errorf("token rows = %d, want 1", n)
	}
}

func TestTokenRepository_Rotate_ExpiredIsDeleted(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "expired@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	stale := &RefreshToken{UserID: user.ID, TokenHash: HashToken("stale"), ExpiresAt: expiredAt()}
	repo.Create(ctx, stale) //nolint:errcheck // test setup

	next := &RefreshToken{UserID: user.ID, TokenHash: HashToken("next"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, user.ID, HashToken("stale"), next); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Rotate(expired) error = %v, want ErrInvalidRefreshToken", err)
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID); n != 0 {
		t.Errorf("token rows = %d, want 0 (expired row deleted, no replacement)", n)
	}
}

func TestTokenRepository_Rotate_WrongOwner(t *testing.T) {
	db := testDB(t)
	owner := seedTestUser(t, db, "owner@test.com", RolePatient)
	other := seedTestUser(t, db, "other@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tok := &RefreshToken{UserID: owner.ID, TokenHash: HashToken("owned"), ExpiresAt: time.Now().Add(time.Hour)}
	repo.Create(ctx, tok) //nolint:errcheck // test setup

	next := &RefreshToken{UserID: other.ID, TokenHash: HashToken("stolen"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, other.ID, HashToken("owned"), next); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Rotate(other user) error = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("owned")); err != nil {
		t.Errorf("owner's token should survive a foreign rotation attempt: %v", err)
	}
}

func TestTokenRepository_DeleteByUserAndHash(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "logout@test.com", RoleAdmin)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tok := &RefreshToken{UserID: user.ID, TokenHash: HashToken("bye"), ExpiresAt: time.Now().Add(time.Hour)}
	repo.Create(ctx, tok) //nolint:errcheck // test setup

	deleted, err := repo.DeleteByUserAndHash(ctx, user.ID, HashToken("bye"))
	if err != nil || !deleted {
		t.Fatalf("DeleteByUserAndHash() = %v, %v; want true, nil", deleted, err)
	}

	deleted, err = repo.DeleteByUserAndHash(ctx, user.ID, HashToken("bye"))
	if err != nil || deleted {
		t.Errorf("second DeleteByUserAndHash() = %v, %v; want false, nil", deleted, err)
	}
}

func TestTokenRepository_DeleteAllForUser(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "many@test.com", RoleDoctor)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	for _, raw := range []string{"a", "b", "c"} {
		repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken(raw), ExpiresAt: time.Now().Add(time.Hour)}) //nolint:errcheck // test setup
	}

	n, err := repo.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("DeleteAllForUser() error = %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "sweep@test.com", RolePatient)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("live"), ExpiresAt: time.Now().Add(time.Hour)}) //nolint:errcheck // test setup
	repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("dead1"), ExpiresAt: expiredAt()})              //nolint:errcheck // test setup
	repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("dead2"), ExpiresAt: expiredAt()})              //nolint:errcheck // test setup

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("live")); err != nil {
		t.Errorf("live token removed: %v", err)
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 {
		t.Errorf("len(HashToken) = %d, want 64", len(h))
	}
	if h != HashToken("abc") {
		t.Error("HashToken should be deterministic")
	}
	if h == HashToken("abd") {
		t.Error("different inputs should hash differently")
	}
}
