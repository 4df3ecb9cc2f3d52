package prescription

import (
	"fmt"
	"strings"
	"time"
)

// Validation limits.
const (
	maxItems        = 50
	maxNameLength   = 200
	maxNotesLength  = 2000
	maxTextLength   = 500
	defaultLimit    = 10
	maxLimit        = 100
	dateOnlyPattern = "2006-01-02"
)

// ValidateCreate checks a create request.
func ValidateCreate(in CreateInput) error {
	if strings.TrimSpace(in.PatientID) == "" {
		return fmt.Errorf("%w: patientId is required", ErrInvalidInput)
	}
	if len(in.Notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, maxNotesLength)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if len(in.Items) > maxItems {
		return fmt.Errorf("%w: at most %d items are allowed", ErrInvalidInput, maxItems)
	}

	for i, item := range in.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: items[%d].name is required", ErrInvalidInput, i)
		}
		if len(item.Name) > maxNameLength {
			return fmt.Errorf("%w: items[%d].name exceeds %d characters", ErrInvalidInput, i, maxNameLength)
		}
		if item.Quantity != nil && *item.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrInvalidInput, i)
		}
		if len(item.Dosage) > maxTextLength || len(item.Instructions) > maxTextLength {
			return fmt.Errorf("%w: items[%d] text exceeds %d characters", ErrInvalidInput, i, maxTextLength)
		}
	}
	return nil
}

// Normalize applies paging defaults and validates Status and Order.
func (f *Filter) Normalize() error {
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	switch strings.ToLower(f.Order) {
	case "":
		f.Order = OrderDesc
	case OrderAsc, OrderDesc:
		f.Order = strings.ToLower(f.Order)
	default:
		return fmt.Errorf("%w: order must be asc or desc", ErrInvalidInput)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	return nil
}

// ParseDateBound parses a from/to query value. RFC 3339 timestamps are used
// as given. A bare YYYY-MM-DD date means the start of that day, or its last
// second when endOfDay is set. An empty value yields nil.
func ParseDateBound(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnlyPattern, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a date", ErrInvalidInput, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}
