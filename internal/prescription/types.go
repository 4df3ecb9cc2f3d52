package prescription

import "time"

// Status is the lifecycle state of a prescription.
type Status string

// Prescription statuses.
const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
)

// IsValid returns true for a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusConsumed
}

// Party is the user behind a doctor or patient profile.
type Party struct {
	ProfileID string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// Item is one medication line of a prescription.
type Item struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Quantity     *int   `json:"quantity,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription is a stored prescription with its items.
type Prescription struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Status     Status     `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	PatientID  string     `json:"patientId"`
	AuthorID   string     `json:"authorId"`
	CreatedAt  time.Time  `json:"createdAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	Items      []Item     `json:"items"`
	Patient    *Party     `json:"patient,omitempty"`
	Author     *Party     `json:"author,omitempty"`
}

// ItemInput is one requested item in CreateInput.
type ItemInput struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Quantity     *int   `json:"quantity,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// CreateInput is the request to create a prescription. PatientID is a
// patient profile ID.
type CreateInput struct {
	PatientID string      `json:"patientId"`
	Notes     string      `json:"notes,omitempty"`
	Items     []ItemInput `json:"items"`
}

// Sort orders for listings.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Filter narrows a listing. Zero values mean no restriction.
type Filter struct {
	Status    Status
	AuthorID  string // doctor profile ID
	PatientID string // patient profile ID
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
	Order     string // OrderAsc or OrderDesc on createdAt

	// PendingFirst sorts pending before consumed, then newest first.
	PendingFirst bool
}

// Page is one page of a listing.
type Page struct {
	Data  []Prescription
	Total int
	Page  int
	Limit int
}

// TotalPages returns the number of pages for Total at Limit.
func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
