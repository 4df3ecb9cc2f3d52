package api

import (
	"net/http"
	"testing"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/prescription"
)

type rxParties struct {
	doctor, doctor2, patient, other, admin []*http.Cookie
	patientUser, otherUser                 auth.PublicUser
	doctorUser                             auth.PublicUser
}

func newRxParties(t *testing.T, env *testEnv) rxParties {
	t.Helper()
	var p rxParties
	p.doctorUser, p.doctor = env.register(t, "dr@test.com", auth.RoleDoctor)
	_, p.doctor2 = env.register(t, "dr2@test.com", auth.RoleDoctor)
	p.patientUser, p.patient = env.register(t, "p@test.com", auth.RolePatient)
	p.otherUser, p.other = env.register(t, "other@test.com", auth.RolePatient)
	_, p.admin = env.register(t, "admin@test.com", auth.RoleAdmin)
	return p
}

func createRx(t *testing.T, env *testEnv, doctor []*http.Cookie, patientID string) *prescription.Prescription {
	t.Helper()
	w := env.do(http.MethodPost, "/api/prescriptions", map[string]any{
		"patientId": patientID,
		"notes":     "after meals",
		"items": []map[string]any{
			{"name": "Amoxicilina", "dosage": "500mg", "quantity": 21, "instructions": "every 8h"},
			{"name": "Paracetamol"},
		},
	}, doctor...)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp prescriptionResponse
	decode(t, w, &resp)
	return resp.Prescription
}

func TestPrescriptions_Create(t *testing.T) {
	env := newTestEnv(t)
	p := newRxParties(t, env)

	rx := createRx(t, env, p.doctor, p.patientUser.Patient.ID)
	if rx.Status != prescription.StatusPending || len(rx.Items) != 2 {
		t.Errorf("created = %+v", rx)
	}
	if rx.AuthorID != p.doctorUser.Doctor.ID {
		t.Errorf("authorId = %s, want %s", rx.AuthorID, p.doctorUser.Doctor.ID)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no items", map[string]any{"patientId": p.patientUser.Patient.ID, "items": []any{}}, http.StatusBadRequest},
		{"no patient", map[string]any{"items": []map[string]any{{"name": "X"}}}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"patientId": p.patientUser.Patient.ID, "items": []map[string]any{{"name": "X", "quantity": 0}}}, http.StatusBadRequest},
		{"unknown patient", map[string]any{"patientId": "pat-missing", "items": []map[string]any{{"name": "X"}}}, http.StatusNotFound},
		{"invalid JSON", `{"patientId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(http.MethodPost, "/api/prescriptions", tt.body, p.doctor...); w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPrescriptions_GetIsAuthorOnly(t *testing.T) {
	env := newTestEnv(t)
	p := newRxParties(t, env)
	rx := createRx(t, env, p.doctor, p.patientUser.Patient.ID)

	if w := env.do(http.MethodGet, "/api/prescriptions/"+rx.ID, nil, p.doctor...); w.Code != http.StatusOK {
		t.Errorf("author status = %d, want 200", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/prescriptions/"+rx.ID, nil, p.doctor2...); w.Code != http.StatusForbidden {
		t.Errorf("other doctor status = %d, want 403", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/prescriptions/rx-missing", nil, p.doctor...); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
}

func TestPrescriptions_Consume(t *testing.T) {
	env := newTestEnv(t)
	p := newRxParties(t, env)
	rx := createRx(t, env, p.doctor, p.patientUser.Patient.ID)
	path := "/api/prescriptions/" + rx.ID + "/consume"

	if w := env.do(http.MethodPatch, path, nil, p.other...); w.Code != http.StatusForbidden {
		t.Errorf("other patient status = %d, want 403", w.Code)
	}

	w := env.do(http.MethodPatch, path, nil, p.patient...)
	if w.Code != http.StatusOK {
		t.Fatalf("consume status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp prescriptionResponse
	decode(t, w, &resp)
	if resp.Prescription.Status != prescription.StatusConsumed || resp.Prescription.ConsumedAt == nil {
		t.Errorf("consumed = %+v", resp.Prescription)
	}

	if w := env.do(http.MethodPatch, path, nil, p.patient...); w.Code != http.StatusBadRequest {
		t.Errorf("second consume status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodPatch, "/api/prescriptions/rx-missing/consume", nil, p.patient...); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}

	env.stopAudit()
	res, err := env.audit.List(t.Context(), audit.Filter{EntityType: audit.EntityPrescription})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("prescription audit rows = %d, want create + consume", res.Total)
	}
}

func TestPrescriptions_Listings(t *testing.T) {
	env := newTestEnv(t)
	p := newRxParties(t, env)

	first := createRx(t, env, p.doctor, p.patientUser.Patient.ID)
	createRx(t, env, p.doctor, p.patientUser.Patient.ID)
	createRx(t, env, p.doctor2, p.otherUser.Patient.ID)
	env.do(http.MethodPatch, "/api/prescriptions/"+first.ID+"/consume", nil, p.patient...)

	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		want    int
	}{
		{"doctor all", "/api/prescriptions", p.doctor, 3},
		{"doctor mine", "/api/prescriptions?mine=true", p.doctor, 2},
		{"doctor mine pending", "/api/prescriptions?mine=true&status=pending", p.doctor, 1},
		{"doctor paged", "/api/prescriptions?limit=1&order=asc", p.doctor, 1},
		{"patient own", "/api/me/prescriptions", p.patient, 2},
		{"other patient own", "/api/me/prescriptions", p.other, 1},
		{"admin all", "/api/admin/prescriptions", p.admin, 3},
		{"admin by patient", "/api/admin/prescriptions?patientId=" + p.otherUser.Patient.ID, p.admin, 1},
		{"admin by doctor", "/api/admin/prescriptions?doctorId=" + p.doctorUser.Doctor.ID, p.admin, 2},
		{"admin consumed", "/api/admin/prescriptions?status=consumed", p.admin, 1},
		{"admin future window", "/api/admin/prescriptions?from=2999-01-01", p.admin, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path, nil, tt.cookies...)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
			}
			var resp prescriptionListResponse
			decode(t, w, &resp)
			if len(resp.Data) != tt.want {
				t.Errorf("len = %d, want %d", len(resp.Data), tt.want)
			}
		})
	}

	t.Run("patient sees pending first", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/me/prescriptions", nil, p.patient...)
		var resp prescriptionListResponse
		decode(t, w, &resp)
		if len(resp.Data) != 2 || resp.Data[0].Status != prescription.StatusPending {
			t.Errorf("order = %+v, want pending first", resp.Data)
		}
	})

	t.Run("paging meta", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/prescriptions?limit=2", nil, p.doctor...)
		var resp prescriptionListResponse
		decode(t, w, &resp)
		if resp.Meta != (pageMeta{Total: 3, Page: 1, Limit: 2, TotalPages: 2}) {
			t.Errorf("meta = %+v", resp.Meta)
		}
	})

	for _, bad := range []string{"?status=lost", "?from=yesterday", "?order=sideways"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			if w := env.do(http.MethodGet, "/api/admin/prescriptions"+bad, nil, p.admin...); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}
