package prescription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rxportal/rxcore/internal/auth"
)

// Service applies the ownership rules on top of a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a prescription Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create writes a prescription authored by the doctor account doctorUserID.
func (s *Service) Create(ctx context.Context, doctorUserID string, in CreateInput) (*Prescription, error) {
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}

	authorID, err := s.repo.DoctorProfileID(ctx, doctorUserID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.PatientExists(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPatientNotFound
	}

	p := &Prescription{
		PatientID: in.PatientID,
		AuthorID:  authorID,
		Notes:     strings.TrimSpace(in.Notes),
		Items:     make([]Item, 0, len(in.Items)),
	}
	for _, it := range in.Items {
		p.Items = append(p.Items, Item{
			Name:         strings.TrimSpace(it.Name),
			Dosage:       it.Dosage,
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
		})
	}

	if err := s.repo.Create(context.WithoutCancel(ctx), p); err != nil {
		return nil, fmt.Errorf("creating prescription: %w", err)
	}

	s.logger.Info("prescription created", "prescription_id", p.ID, "code", p.Code, "author_id", authorID)
	return s.repo.Get(ctx, p.ID)
}

// ListForDoctor lists prescriptions visible to a doctor. With mine set only
// the doctor's own are returned.
func (s *Service) ListForDoctor(ctx context.Context, doctorUserID string, mine bool, filter Filter) (Page, error) {
	authorID, err := s.repo.DoctorProfileID(ctx, doctorUserID)
	if err != nil {
		return Page{}, err
	}

	filter.PatientID = ""
	filter.AuthorID = ""
	filter.PendingFirst = false
	if mine {
		filter.AuthorID = authorID
	}
	return s.repo.List(ctx, filter)
}

// ListForPatient lists the patient's own prescriptions, pending first.
func (s *Service) ListForPatient(ctx context.Context, patientUserID string, filter Filter) (Page, error) {
	patientID, err := s.repo.PatientProfileID(ctx, patientUserID)
	if err != nil {
		return Page{}, err
	}

	filter.PatientID = patientID
	filter.AuthorID = ""
	filter.PendingFirst = true
	return s.repo.List(ctx, filter)
}

// ListForAdmin lists every prescription matching filter, newest first.
func (s *Service) ListForAdmin(ctx context.Context, filter Filter) (Page, error) {
	filter.PendingFirst = false
	filter.Order = OrderDesc
	return s.repo.List(ctx, filter)
}

// Get returns prescription id if the caller may see it: doctors only their
// own, patients only theirs, admins any.
func (s *Service) Get(ctx context.Context, id, userID string, role auth.Role) (*Prescription, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch role {
	case auth.RoleAdmin:
		return p, nil
	case auth.RoleDoctor:
		authorID, err := s.repo.DoctorProfileID(ctx, userID)
		if err != nil || authorID != p.AuthorID {
			return nil, ErrForbidden
		}
	case auth.RolePatient:
		patientID, err := s.repo.PatientProfileID(ctx, userID)
		if err != nil || patientID != p.PatientID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	return p, nil
}

// Consume marks the patient's own pending prescription as consumed.
func (s *Service) Consume(ctx context.Context, id, patientUserID string) (*Prescription, error) {
	patientID, err := s.repo.PatientProfileID(ctx, patientUserID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PatientID != patientID {
		return nil, ErrForbidden
	}
	if p.Status == StatusConsumed {
		return nil, ErrAlreadyConsumed
	}

	if err := s.repo.MarkConsumed(context.WithoutCancel(ctx), id, s.now()); err != nil {
		return nil, err
	}

	s.logger.Info("prescription consumed", "prescription_id", id, "patient_id", patientID)
	return s.repo.Get(ctx, id)
}
