package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// demoAccount is one account created by SeedDemo.
type demoAccount struct {
	email     string
	password  string
	name      string
	role      Role
	specialty string
	birthDate string
}

// demoAccounts are the accounts a fresh demo database starts with.
var demoAccounts = []demoAccount{
	{email: "admin@test.com", password: "admin123", name: "Dr. Juan Pérez", role: RoleAdmin},
	{email: "dr@test.com", password: "dr123", name: "Dra. Laura Garzón", role: RoleDoctor, specialty: "Cardiología"},
	{email: "patient@test.com", password: "patient123", name: "Carlos López", role: RolePatient, birthDate: "1985-08-15"},
}

// SeedDemo creates the demo admin, doctor and patient accounts when no users
// exist. It returns the number of accounts created.
func SeedDemo(ctx context.Context, users UserRepository, hasher *PasswordHasher, logger *slog.Logger) (int, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping demo seed", "count", count)
		return 0, nil
	}

	created := 0
	for _, a := range demoAccounts {
		hash, err := hasher.Hash(a.password)
		if err != nil {
			return created, fmt.Errorf("hashing password for %s: %w", a.email, err)
		}

		user := &User{Email: a.email, PasswordHash: hash, Name: a.name, Role: a.role}
		switch a.role {
		case RoleDoctor:
			user.Doctor = &DoctorProfile{Specialty: a.specialty}
		case RolePatient:
			user.Patient = &PatientProfile{BirthDate: a.birthDate}
		}

		if err := users.Create(ctx, user); err != nil {
			return created, fmt.Errorf("creating demo user %s: %w", a.email, err)
		}
		created++
	}

	logger.Warn("demo accounts created",
		"emails", []string{"admin@test.com", "dr@test.com", "patient@test.com"},
		"action_required", "never enable seeding in production",
	)
	return created, nil
}

// CreateAdmin creates an admin account, typically from the command line.
func CreateAdmin(ctx context.Context, users UserRepository, hasher *PasswordHasher, email, name, password string) (*User, error) {
	if email == "" || name == "" {
		return nil, errors.New("email and name are required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	admin := &User{Email: email, PasswordHash: hash, Name: name, Role: RoleAdmin}
	if err := users.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}
