package auth

import (
	"context"
	"log/slog"
	"testing"
)

func TestSeedDemo(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	hasher := testHasher()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	created, err := SeedDemo(ctx, repo, hasher, logger)
	if err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}
	if created != 3 {
		t.Fatalf("created = %d, want 3", created)
	}

	doctor, err := repo.GetByEmail(ctx, "dr@test.com")
	if err != nil {
		t.Fatalf("GetByEmail(dr@test.com) error = %v", err)
	}
	if doctor.Role != RoleDoctor || doctor.Doctor == nil || doctor.Doctor.Specialty != "Cardiología" {
		t.Errorf("doctor = %+v", doctor)
	}
	if ok, _ := hasher.Verify("dr123", doctor.PasswordHash); !ok { //nolint:errcheck // test
		t.Error("demo doctor password should be dr123")
	}

	patient, err := repo.GetByEmail(ctx, "patient@test.com")
	if err != nil {
		t.Fatalf("GetByEmail(patient@test.com) error = %v", err)
	}
	if patient.Patient == nil || patient.Patient.BirthDate != "1985-08-15" {
		t.Errorf("patient profile = %+v", patient.Patient)
	}

	// Second run is a no-op.
	created, err = SeedDemo(ctx, repo, hasher, logger)
	if err != nil {
		t.Fatalf("second SeedDemo() error = %v", err)
	}
	if created != 0 {
		t.Errorf("second run created = %d, want 0", created)
	}
}

func TestSeedDemo_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "existing@test.com", RoleAdmin)

	created, err := SeedDemo(context.Background(), NewUserRepository(db), testHasher(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}

func TestCreateAdmin(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	admin, err := CreateAdmin(ctx, repo, testHasher(), "root@test.com", "Root", "s3cret-pass")
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("Role = %s, want admin", admin.Role)
	}

	if _, err := CreateAdmin(ctx, repo, testHasher(), "", "Root", "x"); err == nil {
		t.Error("CreateAdmin() without email should fail")
	}
	if _, err := CreateAdmin(ctx, repo, testHasher(), "root2@test.com", "Root", ""); err == nil {
		t.Error("CreateAdmin() without password should fail")
	}
}
