package prescription

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rxportal/rxcore/internal/infrastructure/database"
)

// Repository defines the interface for prescription persistence.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	Get(ctx context.Context, id string) (*Prescription, error)
	List(ctx context.Context, filter Filter) (Page, error)
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	DoctorProfileID(ctx context.Context, userID string) (string, error)
	PatientProfileID(ctx context.Context, userID string) (string, error)
	PatientExists(ctx context.Context, patientID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed prescription repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// codeAttempts bounds retries when a generated code collides.
const codeAttempts = 5

// codeAlphabet excludes characters that are easy to misread.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode returns a random code of the form RX-YYYY-XXXXXX.
func NewCode(now time.Time) string {
	b := make([]byte, 6) //nolint:mnd // six code characters
	rand.Read(b)         //nolint:errcheck // crypto/rand.Read never fails on supported platforms
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return fmt.Sprintf("RX-%d-%s", now.Year(), b)
}

// Create inserts a prescription and its items in one transaction. IDs and
// the code are generated when empty; a colliding code is regenerated.
func (r *SQLiteRepository) Create(ctx context.Context, p *Prescription) error {
	if p.ID == "" {
		p.ID = "rx-" + uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	generated := p.Code == ""
	for attempt := 1; ; attempt++ {
		if generated {
			p.Code = NewCode(p.CreatedAt)
		}
		err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
			return insertPrescription(ctx, tx, p, now)
		})
		if err == nil {
			return nil
		}
		if !generated || attempt >= codeAttempts || !database.IsUniqueViolation(err) {
			return err
		}
	}
}

func insertPrescription(ctx context.Context, tx *sql.Tx, p *Prescription, now string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prescriptions (id, code, status, notes, patient_id, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, string(p.Status), nullString(p.Notes), p.PatientID, p.AuthorID, now,
	); err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("inserting prescription: %w", err)
	}

	for i := range p.Items {
		item := &p.Items[i]
		if item.ID == "" {
			item.ID = "itm-" + uuid.NewString()
		}
		var qty sql.NullInt64
		if item.Quantity != nil {
			qty = sql.NullInt64{Int64: int64(*item.Quantity), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prescription_items (id, prescription_id, position, name, dosage, quantity, instructions)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, p.ID, i, item.Name, nullString(item.Dosage), qty, nullString(item.Instructions),
		); err != nil {
			return fmt.Errorf("inserting prescription item: %w", err)
		}
	}
	return nil
}

const selectPrescription = `SELECT p.id, p.code, p.status, p.notes, p.patient_id, p.author_id,
		p.created_at, p.consumed_at,
		pu.id, pu.name, pu.email, au.id, au.name, au.email
	FROM prescriptions p
	JOIN patients pt ON pt.id = p.patient_id
	JOIN users pu ON pu.id = pt.user_id
	JOIN doctors d ON d.id = p.author_id
	JOIN users au ON au.id = d.user_id`

// Get retrieves a prescription with items and parties.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Prescription, error) {
	p, err := scanPrescription(r.db.QueryRowContext(ctx, selectPrescription+" WHERE p.id = ?", id))
	if err != nil {
		return nil, err
	}

	list := []Prescription{*p}
	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// List returns one page of prescriptions matching filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (Page, error) {
	if err := filter.Normalize(); err != nil {
		return Page{}, err
	}

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AuthorID != "" {
		where = append(where, "p.author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.PatientID != "" {
		where = append(where, "p.patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.From != nil {
		where = append(where, "p.created_at >= ?")
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		where = append(where, "p.created_at <= ?")
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := Page{Page: filter.Page, Limit: filter.Limit}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prescriptions p"+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("counting prescriptions: %w", err)
	}

	order := " ORDER BY p.created_at DESC, p.id DESC"
	switch {
	case filter.PendingFirst:
		order = " ORDER BY CASE p.status WHEN 'pending' THEN 0 ELSE 1 END, p.created_at DESC, p.id DESC"
	case filter.Order == OrderAsc:
		order = " ORDER BY p.created_at ASC, p.id ASC"
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := r.db.QueryContext(ctx, selectPrescription+clause+order+" LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("listing prescriptions: %w", err)
	}

	page.Data = []Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // closed before returning
			return Page{}, err
		}
		page.Data = append(page.Data, *p)
	}
	err = rows.Err()
	rows.Close() //nolint:errcheck,sqlclosecheck // must be released before loading items
	if err != nil {
		return Page{}, fmt.Errorf("iterating prescriptions: %w", err)
	}

	if err := r.loadItems(ctx, page.Data); err != nil {
		return Page{}, err
	}
	return page, nil
}

// MarkConsumed moves a pending prescription to consumed. A prescription that
// is already consumed yields ErrAlreadyConsumed; a missing one ErrNotFound.
func (r *SQLiteRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM prescriptions WHERE id = ?", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading prescription status: %w", err)
		}
		if Status(status) == StatusConsumed {
			return ErrAlreadyConsumed
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE prescriptions SET status = ?, consumed_at = ? WHERE id = ? AND status = ?",
			string(StatusConsumed), at.UTC().Format(time.RFC3339), id, string(StatusPending),
		); err != nil {
			return fmt.Errorf("consuming prescription: %w", err)
		}
		return nil
	})
}

// DoctorProfileID returns the doctor profile ID owned by userID, or
// ErrNotDoctor.
func (r *SQLiteRepository) DoctorProfileID(ctx context.Context, userID string) (string, error) {
	return r.profileID(ctx, "SELECT id FROM doctors WHERE user_id = ?", userID, ErrNotDoctor)
}

// PatientProfileID returns the patient profile ID owned by userID, or
// ErrNotPatient.
func (r *SQLiteRepository) PatientProfileID(ctx context.Context, userID string) (string, error) {
	return r.profileID(ctx, "SELECT id FROM patients WHERE user_id = ?", userID, ErrNotPatient)
}

func (r *SQLiteRepository) profileID(ctx context.Context, query, userID string, missing error) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", missing
	}
	if err != nil {
		return "", fmt.Errorf("looking up profile: %w", err)
	}
	return id, nil
}

// PatientExists reports whether a patient profile with patientID exists.
func (r *SQLiteRepository) PatientExists(ctx context.Context, patientID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients WHERE id = ?", patientID).Scan(&n); err != nil {
		return false, fmt.Errorf("checking patient: %w", err)
	}
	return n > 0, nil
}

// loadItems fills Items for every prescription in list.
func (r *SQLiteRepository) loadItems(ctx context.Context, list []Prescription) error {
	if len(list) == 0 {
		return nil
	}

	index := make(map[string]int, len(list))
	placeholders := make([]string, len(list))
	args := make([]any, len(list))
	for i := range list {
		index[list[i].ID] = i
		list[i].Items = []Item{}
		placeholders[i] = "?"
		args[i] = list[i].ID
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, prescription_id, name, dosage, quantity, instructions
		 FROM prescription_items
		 WHERE prescription_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY prescription_id, position`, args...)
	if err != nil {
		return fmt.Errorf("loading prescription items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		var prescriptionID string
		var dosage, instructions sql.NullString
		var qty sql.NullInt64
		if err := rows.Scan(&item.ID, &prescriptionID, &item.Name, &dosage, &qty, &instructions); err != nil {
			return fmt.Errorf("scanning prescription item: %w", err)
		}
		item.Dosage = dosage.String
		item.Instructions = instructions.String
		if qty.Valid {
			q := int(qty.Int64)
			item.Quantity = &q
		}
		i := index[prescriptionID]
		list[i].Items = append(list[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating prescription items: %w", err)
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanPrescription(s scanner) (*Prescription, error) {
	var p Prescription
	var status, createdAt string
	var notes, consumedAt sql.NullString
	patient, author := &Party{}, &Party{}

	err := s.Scan(&p.ID, &p.Code, &status, &notes, &p.PatientID, &p.AuthorID,
		&createdAt, &consumedAt,
		&patient.UserID, &patient.Name, &patient.Email,
		&author.UserID, &author.Name, &author.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning prescription: %w", err)
	}

	p.Status = Status(status)
	p.Notes = notes.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if consumedAt.Valid {
		t, _ := time.Parse(time.RFC3339, consumedAt.String) //nolint:errcheck // format is controlled
		p.ConsumedAt = &t
	}
	patient.ProfileID = p.PatientID
	author.ProfileID = p.AuthorID
	p.Patient, p.Author = patient, author

	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
