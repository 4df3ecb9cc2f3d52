package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/config"
	"github.com/rxportal/rxcore/internal/infrastructure/database"
	"github.com/rxportal/rxcore/internal/infrastructure/logging"
	"github.com/rxportal/rxcore/internal/prescription"
	"github.com/rxportal/rxcore/migrations"
)

// testEnv is a fully wired server over a temporary database.
type testEnv struct {
	srv     *Server
	router  http.Handler
	db      *database.DB
	auth    *auth.Service
	users   *auth.SQLiteUserRepository
	audit   *audit.SQLiteRepository
	writer  *audit.Writer
	stopLog context.CancelFunc
}

type envOption func(*Deps)

func withRateLimit(requests, windowSeconds int) envOption {
	return func(d *Deps) {
		d.Security.RateLimit = config.RateLimitConfig{Enabled: true, Requests: requests, Window: windowSeconds}
	}
}

func withProduction() envOption {
	return func(d *Deps) { d.Production = true }
}

func withTelemetry() envOption {
	return func(d *Deps) {
		d.Telemetry = NewTelemetry()
		d.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	signer, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "test-access-secret-at-least-32-characters",
		RefreshSecret: "test-refresh-secret-at-least-32-characters",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "rxcore-test",
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	log := logging.Discard()
	users := auth.NewUserRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	writer := audit.NewWriter(auditRepo, log.Logger)

	authSvc := auth.NewService(auth.ServiceDeps{
		Users:  users,
		Tokens: auth.NewTokenRepository(db.DB),
		Signer: signer,
		Hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		Logger: log.Logger,
	})

	deps := Deps{
		Config: config.APIConfig{
			Host:   "127.0.0.1",
			Prefix: "/api",
			CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		Logger:        log,
		Auth:          authSvc,
		Prescriptions: prescription.NewService(prescription.NewSQLiteRepository(db.DB), log.Logger),
		AuditRepo:     auditRepo,
		AuditWriter:   writer,
		Database:      db,
		Version:       "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go writer.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-writer.Done()
	})

	return &testEnv{
		srv:     srv,
		router:  srv.buildRouter(),
		db:      db,
		auth:    authSvc,
		users:   users,
		audit:   auditRepo,
		writer:  writer,
		stopLog: cancel,
	}
}

// do sends a request with an optional JSON body and cookies.
func (e *testEnv) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register creates an account through the API and returns its session cookies.
func (e *testEnv) register(t *testing.T, email string, role auth.Role) (auth.PublicUser, []*http.Cookie) {
	t.Helper()

	body := map[string]string{
		"email":    email,
		"password": "secret123",
		"name":     "Test " + string(role),
		"role":     string(role),
	}
	if role == auth.RolePatient {
		body["birthDate"] = "1990-01-01"
	}

	w := e.do(http.MethodPost, "/api/auth/register", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s status = %d, body: %s", email, w.Code, w.Body.String())
	}
	var resp userResponse
	decode(t, w, &resp)
	return resp.User, w.Result().Cookies()
}

// stopAudit flushes queued audit rows to the database.
func (e *testEnv) stopAudit() {
	e.stopLog()
	<-e.writer.Done()
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
