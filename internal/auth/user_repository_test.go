package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rxportal/rxcore/internal/infrastructure/database"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Email:        "patient@test.com",
		PasswordHash: "hash",
		Name:         "Carlos López",
		Role:         RolePatient,
		Patient:      &PatientProfile{BirthDate: "1985-08-15"},
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" || user.Patient.ID == "" {
		t.Fatalf("Create() should generate IDs, got %+v", user)
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Patient == nil || byID.Patient.BirthDate != "1985-08-15" {
		t.Errorf("Patient = %+v, want birth date 1985-08-15", byID.Patient)
	}
	if byID.Doctor != nil {
		t.Error("patient should have no doctor profile")
	}

	byEmail, err := repo.GetByEmail(ctx, "patient@test.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetByEmail() ID = %s, want %s", byEmail.ID, user.ID)
	}

	if _, err := repo.GetByEmail(ctx, "PATIENT@test.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail(upper case) error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Create_AdminHasNoProfile(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	admin := &User{Email: "a@test.com", PasswordHash: "h", Name: "A", Role: RoleAdmin, Doctor: &DoctorProfile{}}
	if err := repo.Create(context.Background(), admin); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if admin.Doctor != nil || admin.Patient != nil {
		t.Errorf("admin profiles = %+v / %+v, want none", admin.Doctor, admin.Patient)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM doctors"); n != 0 {
		t.Errorf("doctors = %d, want 0", n)
	}
}

func TestUserRepository_Create_IDCollisionIsNotEmailTaken(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	first := seedTestUser(t, db, "first@test.com", RoleAdmin)

	err := repo.Create(ctx, &User{ID: first.ID, Email: "fresh@test.com", PasswordHash: "h", Name: "F", Role: RoleAdmin})
	if err == nil {
		t.Fatal("Create() with a duplicate ID should fail")
	}
	if errors.Is(err, ErrEmailTaken) {
		t.Errorf("Create() error = %v, an ID collision must not read as a taken email", err)
	}
	if !database.IsPrimaryKeyViolation(err) {
		t.Errorf("Create() error = %v, want a primary key violation", err)
	}
	if _, err := repo.GetByEmail(ctx, "fresh@test.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail(fresh) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Create_GeneratesFullIDs(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "ids@test.com", RoleDoctor)

	// prefix plus a full 36 character uuid
	if len(user.ID) != len("usr-")+36 {
		t.Errorf("user ID = %q, want usr- and a full uuid", user.ID)
	}
	if len(user.Doctor.ID) != len("doc-")+36 {
		t.Errorf("doctor ID = %q, want doc- and a full uuid", user.Doctor.ID)
	}
}

func TestUserRepository_Create_InvalidRole(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	err := repo.Create(context.Background(), &User{Email: "x@test.com", PasswordHash: "h", Name: "X", Role: "owner"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Create(owner) error = %v, want ErrInvalidRole", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for i := range 3 {
		seedTestUser(t, db, fmt.Sprintf("doctor%d@test.com", i), RoleDoctor)
	}
	for i := range 2 {
		seedTestUser(t, db, fmt.Sprintf("patient%d@test.com", i), RolePatient)
	}
	seedTestUser(t, db, "admin@test.com", RoleAdmin)

	tests := []struct {
		name      string
		filter    UserFilter
		wantLen   int
		wantTotal int
	}{
		{"all", UserFilter{}, 6, 6},
		{"doctors", UserFilter{Role: RoleDoctor}, 3, 3},
		{"patients", UserFilter{Role: RolePatient}, 2, 2},
		{"query", UserFilter{Query: "patient1"}, 1, 1},
		{"underscore is literal", UserFilter{Query: "_"}, 0, 0},
		{"percent is literal", UserFilter{Query: "%"}, 0, 0},
		{"page size", UserFilter{Limit: 4}, 4, 6},
		{"second page", UserFilter{Limit: 4, Page: 2}, 2, 6},
		{"past the end", UserFilter{Limit: 4, Page: 3}, 0, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, total, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(users) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(users), tt.wantLen)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}

	doctors, _, _ := repo.List(ctx, UserFilter{Role: RoleDoctor}) //nolint:errcheck // checked above
	for _, d := range doctors {
		if d.Doctor == nil {
			t.Errorf("doctor %s listed without profile", d.Email)
		}
	}
}

func TestUserRepository_List_QueryWildcardsMatchLiterally(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	seedTestUser(t, db, "first_last@test.com", RolePatient)
	seedTestUser(t, db, "firstxlast@test.com", RolePatient)
	seedTestUser(t, db, "100%sure@test.com", RolePatient)

	for query, want := range map[string]int{"first_last": 1, "0%s": 1, "first": 2} {
		users, total, err := repo.List(context.Background(), UserFilter{Query: query})
		if err != nil {
			t.Fatalf("List(%q) error = %v", query, err)
		}
		if total != want || len(users) != want {
			t.Errorf("List(%q) = %d users (total %d), want %d", query, len(users), total, want)
		}
	}
}

func TestUserFilter_Normalize(t *testing.T) {
	f := UserFilter{Page: -1, Limit: 1000}
	f.Normalize()
	if f.Page != 1 || f.Limit != MaxPageLimit {
		t.Errorf("Normalize() = %+v, want page 1 limit %d", f, MaxPageLimit)
	}

	f = UserFilter{}
	f.Normalize()
	if f.Limit != DefaultPageLimit {
		t.Errorf("Limit = %d, want %d", f.Limit, DefaultPageLimit)
	}
}

func TestUserRepository_UpdateNeverChangesRole(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	user := seedTestUser(t, db, "fixed@test.com", RolePatient)
	oldHash := user.PasswordHash

	user.Role = RoleAdmin
	user.Name = "New Name"
	if err := repo.Update(ctx, user, ""); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID) //nolint:errcheck // test
	if got.Role != RolePatient {
		t.Errorf("Role = %s, want patient", got.Role)
	}
	if got.Name != "New Name" {
		t.Errorf("Name = %q, want New Name", got.Name)
	}
	if got.PasswordHash != oldHash {
		t.Error("an empty password hash should leave the stored hash alone")
	}

	if err := repo.Update(ctx, &User{ID: "usr-missing"}, ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdateWithPassword_DeletesTokens(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()
	user := seedTestUser(t, db, "pw@test.com", RoleDoctor)

	tokens.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("t1"), ExpiresAt: time.Now().Add(time.Hour)}) //nolint:errcheck // test setup

	user.Email = "pw2@test.com"
	if err := repo.Update(ctx, user, "new-hash"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID); n != 0 {
		t.Errorf("refresh tokens = %d, want 0", n)
	}
	got, _ := repo.GetByID(ctx, user.ID) //nolint:errcheck // test
	if got.PasswordHash != "new-hash" || got.Email != "pw2@test.com" {
		t.Errorf("stored = %s / %s, want new-hash / pw2@test.com", got.PasswordHash, got.Email)
	}
	if err := repo.Update(ctx, &User{ID: "usr-missing"}, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	t.Run("cascades tokens and profile", func(t *testing.T) {
		user := seedTestUser(t, db, "gone@test.com", RoleDoctor)
		tokens.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken("gone"), ExpiresAt: time.Now().Add(time.Hour)}) //nolint:errcheck // test setup

		if err := repo.Delete(ctx, user.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if n := countRows(t, db, "SELECT COUNT(*) FROM doctors WHERE user_id = ?", user.ID); n != 0 {
			t.Errorf("doctor rows = %d, want 0", n)
		}
		if n := countRows(t, db, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID); n != 0 {
			t.Errorf("token rows = %d, want 0", n)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		if err := repo.Delete(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("Delete(missing) error = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("rejects users with prescriptions", func(t *testing.T) {
		doctor := seedTestUser(t, db, "author@test.com", RoleDoctor)
		patient := seedTestUser(t, db, "holder@test.com", RolePatient)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO prescriptions (id, code, patient_id, author_id) VALUES ('rx-1', 'RX-2026-AAAAAA', ?, ?)`,
			patient.Patient.ID, doctor.Doctor.ID,
		); err != nil {
			t.Fatalf("inserting prescription: %v", err)
		}

		for _, u := range []*User{doctor, patient} {
			if err := repo.Delete(ctx, u.ID); !errors.Is(err, ErrUserHasPrescriptions) {
				t.Errorf("Delete(%s) error = %v, want ErrUserHasPrescriptions", u.Email, err)
			}
			if _, err := repo.GetByID(ctx, u.ID); err != nil {
				t.Errorf("user %s should survive a rejected delete: %v", u.Email, err)
			}
		}
	})
}

func TestUserRepository_Count(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	n, err := repo.Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}
	seedTestUser(t, db, "one@test.com", RoleAdmin)
	if n, _ := repo.Count(context.Background()); n != 1 { //nolint:errcheck // test
		t.Errorf("Count() = %d, want 1", n)
	}
}
