package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/prescription"
)

type prescriptionResponse struct {
	Prescription *prescription.Prescription `json:"prescription"`
}

type prescriptionListResponse struct {
	Data []prescription.Prescription `json:"data"`
	Meta pageMeta                    `json:"meta"`
}

// writePrescriptionError maps prescription errors to HTTP responses.
func (s *Server) writePrescriptionError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, prescription.ErrInvalidInput):
		writeValidationError(w, err.Error())
	case errors.Is(err, prescription.ErrAlreadyConsumed):
		writeBadRequest(w, "prescription already consumed")
	case errors.Is(err, prescription.ErrNotFound):
		writeNotFound(w, "prescription not found")
	case errors.Is(err, prescription.ErrPatientNotFound):
		writeNotFound(w, "patient not found")
	case errors.Is(err, prescription.ErrForbidden),
		errors.Is(err, prescription.ErrNotDoctor),
		errors.Is(err, prescription.ErrNotPatient):
		writeForbidden(w, err.Error())
	default:
		s.logger.Error(op+" failed", "error", err)
		writeInternalError(w, op+" failed")
	}
}

// parseFilter reads the listing query parameters shared by every
// prescription listing.
func parseFilter(q url.Values) (prescription.Filter, error) {
	f := prescription.Filter{
		Status: prescription.Status(q.Get("status")),
		Page:   queryInt(q.Get("page")),
		Limit:  queryInt(q.Get("limit")),
		Order:  q.Get("order"),
	}

	var err error
	if f.From, err = prescription.ParseDateBound(q.Get("from"), false); err != nil {
		return f, err
	}
	if f.To, err = prescription.ParseDateBound(q.Get("to"), true); err != nil {
		return f, err
	}
	return f, nil
}

func writePage(w http.ResponseWriter, page prescription.Page) {
	data := page.Data
	if data == nil {
		data = []prescription.Prescription{}
	}
	writeJSON(w, http.StatusOK, prescriptionListResponse{
		Data: data,
		Meta: newPageMeta(page.Total, page.Page, page.Limit),
	})
}

// handleCreatePrescription writes a prescription authored by the calling doctor.
func (s *Server) handleCreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req prescription.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user := userFromContext(r.Context())
	p, err := s.prescriptions.Create(r.Context(), user.ID, req)
	if err != nil {
		s.writePrescriptionError(w, err, "create prescription")
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityPrescription, p.ID, user.ID, map[string]any{
		"code":       p.Code,
		"patient_id": p.PatientID,
		"items":      len(p.Items),
	})
	writeJSON(w, http.StatusCreated, prescriptionResponse{Prescription: p})
}

// handleListDoctorPrescriptions lists prescriptions for a doctor; mine=true
// narrows to their own.
func (s *Server) handleListDoctorPrescriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}

	user := userFromContext(r.Context())
	page, err := s.prescriptions.ListForDoctor(r.Context(), user.ID, q.Get("mine") == "true", filter)
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}
	writePage(w, page)
}

// handleGetPrescription returns one prescription to its author.
func (s *Server) handleGetPrescription(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	p, err := s.prescriptions.Get(r.Context(), chi.URLParam(r, "id"), user.ID, user.Role)
	if err != nil {
		s.writePrescriptionError(w, err, "get prescription")
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: p})
}

// handleListMyPrescriptions lists the calling patient's prescriptions,
// pending first.
func (s *Server) handleListMyPrescriptions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}

	user := userFromContext(r.Context())
	page, err := s.prescriptions.ListForPatient(r.Context(), user.ID, filter)
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}
	writePage(w, page)
}

// handleConsumePrescription marks the patient's own prescription consumed.
func (s *Server) handleConsumePrescription(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	p, err := s.prescriptions.Consume(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		s.writePrescriptionError(w, err, "consume prescription")
		return
	}

	s.auditLog(audit.ActionConsume, audit.EntityPrescription, p.ID, user.ID, map[string]any{"code": p.Code})
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: p})
}

// handleListAdminPrescriptions lists every prescription, optionally narrowed
// by doctor and patient profile IDs.
func (s *Server) handleListAdminPrescriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}
	filter.AuthorID = q.Get("doctorId")
	filter.PatientID = q.Get("patientId")

	page, err := s.prescriptions.ListForAdmin(r.Context(), filter)
	if err != nil {
		s.writePrescriptionError(w, err, "list prescriptions")
		return
	}
	writePage(w, page)
}
