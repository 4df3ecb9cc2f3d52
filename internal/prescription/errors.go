package prescription

import "errors"

var (
	// ErrNotFound is returned when a prescription ID does not exist.
	ErrNotFound = errors.New("prescription not found")

	// ErrPatientNotFound is returned when the target patient profile does not exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrNotDoctor is returned when a doctor-only operation is called by an
	// account without a doctor profile.
	ErrNotDoctor = errors.New("account has no doctor profile")

	// ErrNotPatient is returned when a patient-only operation is called by an
	// account without a patient profile.
	ErrNotPatient = errors.New("account has no patient profile")

	// ErrForbidden is returned when the caller is neither the author nor the patient.
	ErrForbidden = errors.New("not allowed to access this prescription")

	// ErrAlreadyConsumed is returned when consuming a consumed prescription.
	ErrAlreadyConsumed = errors.New("prescription already consumed")

	// ErrInvalidInput is returned when create input or a list filter fails validation.
	ErrInvalidInput = errors.New("invalid prescription input")
)
