// Package prescription manages prescriptions written by doctors for patients.
//
// A prescription belongs to exactly one author (a doctor profile) and one
// patient (a patient profile). It starts pending and can be consumed once,
// by its patient. Codes have the form RX-YYYY-XXXXXX and are unique.
//
// Access rules:
//   - doctors create prescriptions and may only open their own
//   - patients list and consume their own
//   - admins list everything with filters
package prescription
