package auth

import (
	"errors"
	"time"
)

// Role represents an account tier. Roles are flat and mutually exclusive:
// no role implies another.
type Role string

const (
	// RoleAdmin manages user accounts and sees every prescription.
	RoleAdmin Role = "admin"

	// RoleDoctor authors prescriptions for patients.
	RoleDoctor Role = "doctor"

	// RolePatient views and consumes their own prescriptions.
	RolePatient Role = "patient"
)

// ValidRoles is the complete set of account roles.
var ValidRoles = []Role{RoleAdmin, RoleDoctor, RolePatient}

// IsValidRole returns true if r is one of the three account roles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// DoctorProfile is the side record owned by a doctor account.
type DoctorProfile struct {
	ID        string `json:"id"`
	Specialty string `json:"specialty,omitempty"`
}

// PatientProfile is the side record owned by a patient account.
// BirthDate is a calendar date in YYYY-MM-DD form.
type PatientProfile struct {
	ID        string `json:"id"`
	BirthDate string `json:"birthDate,omitempty"`
}

// User is a stored account. Doctor is set only for RoleDoctor and Patient
// only for RolePatient.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	Doctor       *DoctorProfile
	Patient      *PatientProfile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the outward projection of a User. It has no password field.
type PublicUser struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      Role            `json:"role"`
	Doctor    *DoctorProfile  `json:"doctor,omitempty"`
	Patient   *PatientProfile `json:"patient,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Public returns the projection of u that may leave the service.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Doctor:    u.Doctor,
		Patient:   u.Patient,
		CreatedAt: u.CreatedAt,
	}
}

// RefreshToken is one persisted refresh session. Only the SHA-256 digest of
// the signed token is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailTaken            = errors.New("email already registered")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrUnauthenticated       = errors.New("authentication required")
	ErrForbidden             = errors.New("insufficient role")
	ErrUserNotFound          = errors.New("user not found")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenInvalid          = errors.New("invalid token")
	ErrInvalidRole           = errors.New("invalid role")
	ErrRoleImmutable         = errors.New("role cannot be changed")
	ErrUserHasPrescriptions  = errors.New("user is referenced by prescriptions")
	ErrSelfDeletion          = errors.New("cannot delete own account")
	ErrMissingSigningSecrets = errors.New("jwt signing secrets are not configured")
)
