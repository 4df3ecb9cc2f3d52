package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rxportal/rxcore/internal/infrastructure/database"
)

// Pagination defaults for user listings.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// UserFilter narrows a user listing. Zero values mean no restriction.
type UserFilter struct {
	Role  Role
	Query string // substring match on name or email
	Page  int    // 1-based
	Limit int
}

// Normalize clamps Page and Limit into range.
func (f *UserFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]User, int, error)
	Update(ctx context.Context, user *User, passwordHash string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const selectUser = `SELECT u.id, u.email, u.password_hash, u.name, u.role, u.created_at, u.updated_at,
		d.id, d.specialty, p.id, p.birth_date
	FROM users u
	LEFT JOIN doctors d ON d.user_id = u.id
	LEFT JOIN patients p ON p.user_id = u.id`

// Create inserts a user and its role side record in one transaction.
// IDs are generated when empty. A duplicate email yields ErrEmailTaken and
// leaves nothing behind.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if !IsValidRole(user.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
	}
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.PasswordHash, user.Name, string(user.Role), now, now,
		); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("creating user: %w", err)
		}

		switch user.Role {
		case RoleDoctor:
			if user.Doctor == nil {
				user.Doctor = &DoctorProfile{}
			}
			if user.Doctor.ID == "" {
				user.Doctor.ID = "doc-" + uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO doctors (id, user_id, specialty) VALUES (?, ?, ?)",
				user.Doctor.ID, user.ID, nullString(user.Doctor.Specialty),
			); err != nil {
				return fmt.Errorf("creating doctor profile: %w", err)
			}
			user.Patient = nil
		case RolePatient:
			if user.Patient == nil {
				user.Patient = &PatientProfile{}
			}
			if user.Patient.ID == "" {
				user.Patient.ID = "pat-" + uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO patients (id, user_id, birth_date) VALUES (?, ?, ?)",
				user.Patient.ID, user.ID, nullString(user.Patient.BirthDate),
			); err != nil {
				return fmt.Errorf("creating patient profile: %w", err)
			}
			user.Doctor = nil
		default:
			user.Doctor, user.Patient = nil, nil
		}
		return nil
	})
	return err
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, selectUser+" WHERE u.id = ?", id))
}

// GetByEmail retrieves a user by exact, case-sensitive email.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, selectUser+" WHERE u.email = ?", email))
}

// List returns one page of users matching filter, newest first, plus the
// total number of matches.
func (r *SQLiteUserRepository) List(ctx context.Context, filter UserFilter) ([]User, int, error) {
	filter.Normalize()

	var where []string
	var args []any
	if filter.Role != "" {
		where = append(where, "u.role = ?")
		args = append(args, string(filter.Role))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `(u.name LIKE ? ESCAPE '\' OR u.email LIKE ? ESCAPE '\')`)
		like := "%" + likeEscaper.Replace(q) + "%"
		args = append(args, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users u"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := r.db.QueryContext(ctx,
		selectUser+clause+" ORDER BY u.created_at DESC, u.id DESC LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating users: %w", err)
	}

	return users, total, nil
}

// Update modifies email, name and the role side record. The role column is
// never written. A non-empty passwordHash replaces the stored hash and
// deletes every refresh token the user holds. All of it commits together or
// not at all.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	updatedAt, _ := time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?",
			user.Email, user.Name, now, user.ID,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("updating user: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrUserNotFound
		}

		if user.Doctor != nil {
			if _, err := tx.ExecContext(ctx,
				"UPDATE doctors SET specialty = ? WHERE user_id = ?",
				nullString(user.Doctor.Specialty), user.ID,
			); err != nil {
				return fmt.Errorf("updating doctor profile: %w", err)
			}
		}
		if user.Patient != nil {
			if _, err := tx.ExecContext(ctx,
				"UPDATE patients SET birth_date = ? WHERE user_id = ?",
				nullString(user.Patient.BirthDate), user.ID,
			); err != nil {
				return fmt.Errorf("updating patient profile: %w", err)
			}
		}

		if passwordHash == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, user.ID,
		); err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", user.ID); err != nil {
			return fmt.Errorf("deleting refresh tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	user.UpdatedAt = updatedAt
	if passwordHash != "" {
		user.PasswordHash = passwordHash
	}
	return nil
}

// Delete removes a user with its refresh tokens and side record.
// A user referenced by any prescription, as author or patient, is kept and
// ErrUserHasPrescriptions is returned.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("checking user: %w", err)
		}
		if exists == 0 {
			return ErrUserNotFound
		}

		var refs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM prescriptions
			 WHERE author_id IN (SELECT id FROM doctors WHERE user_id = ?)
			    OR patient_id IN (SELECT id FROM patients WHERE user_id = ?)`,
			id, id,
		).Scan(&refs); err != nil {
			return fmt.Errorf("checking prescriptions: %w", err)
		}
		if refs > 0 {
			return ErrUserHasPrescriptions
		}

		for _, stmt := range []string{
			"DELETE FROM refresh_tokens WHERE user_id = ?",
			"DELETE FROM doctors WHERE user_id = ?",
			"DELETE FROM patients WHERE user_id = ?",
			"DELETE FROM users WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("deleting user: %w", err)
			}
		}
		return nil
	})
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a selectUser row from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var role, createdAt, updatedAt string
	var doctorID, specialty, patientID, birthDate sql.NullString

	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &createdAt, &updatedAt,
		&doctorID, &specialty, &patientID, &birthDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	if doctorID.Valid {
		u.Doctor = &DoctorProfile{ID: doctorID.String, Specialty: specialty.String}
	}
	if patientID.Valid {
		u.Patient = &PatientProfile{ID: patientID.String, BirthDate: birthDate.String}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
