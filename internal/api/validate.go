package api

import (
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rxportal/rxcore/internal/auth"
)

// Request field limits.
const (
	minPasswordLength = 6
	maxNameLength     = 200
	dateLayout        = "2006-01-02"
)

// validEmail reports whether s is a bare address (no display name).
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// accountFields are the fields shared by registration and admin user creation.
type accountFields struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	Specialty string    `json:"specialty,omitempty"`
	BirthDate string    `json:"birthDate,omitempty"`
}

// validate returns a client-facing message for the first invalid field, or "".
func (f *accountFields) validate() string {
	f.Email = strings.TrimSpace(f.Email)
	f.Name = strings.TrimSpace(f.Name)

	switch {
	case !validEmail(f.Email):
		return "email must be a valid address"
	case len(f.Password) < minPasswordLength:
		return "password must be at least 6 characters"
	case f.Name == "":
		return "name is required"
	case len(f.Name) > maxNameLength:
		return "name is too long"
	case !auth.IsValidRole(f.Role):
		return "role must be admin, doctor or patient"
	case f.BirthDate != "" && !validDate(f.BirthDate):
		return "birthDate must be a YYYY-MM-DD date"
	}
	return ""
}

func (f *accountFields) input() auth.RegisterInput {
	return auth.RegisterInput{
		Email:     f.Email,
		Password:  f.Password,
		Name:      f.Name,
		Role:      f.Role,
		Specialty: strings.TrimSpace(f.Specialty),
		BirthDate: f.BirthDate,
	}
}

// queryInt parses a positive integer query parameter. Absent or malformed
// values yield 0 so the caller's defaults apply.
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// pageMeta is the pagination block of list responses.
type pageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func newPageMeta(total, page, limit int) pageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return pageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}
