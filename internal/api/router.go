package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rxportal/rxcore/internal/auth"
)

// policy declares how a route is guarded.
type policy struct {
	public      bool         // no authentication
	refresh     bool         // refresh cookie instead of access cookie
	unthrottled bool         // skips the request throttle
	roles       auth.RoleSet // empty: any authenticated user
}

var (
	monitoring  = policy{public: true, unthrottled: true}
	public      = policy{public: true}
	refreshOnly = policy{refresh: true}
	signedIn    = policy{}
	adminOnly   = policy{roles: auth.Roles(auth.RoleAdmin)}
	doctorOnly  = policy{roles: auth.Roles(auth.RoleDoctor)}
	patientOnly = policy{roles: auth.Roles(auth.RolePatient)}
)

// route is one entry of the route table.
type route struct {
	method  string
	pattern string
	policy  policy
	handler http.HandlerFunc
}

// routes is the route table, relative to the API prefix.
func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/health", monitoring, s.handleHealth},

		{http.MethodPost, "/auth/register", public, s.handleRegister},
		{http.MethodPost, "/auth/login", public, s.handleLogin},
		{http.MethodPost, "/auth/refresh", refreshOnly, s.handleRefresh},
		{http.MethodGet, "/auth/profile", signedIn, s.handleProfile},
		{http.MethodPost, "/auth/logout", signedIn, s.handleLogout},

		{http.MethodPost, "/users", adminOnly, s.handleCreateUser},
		{http.MethodGet, "/users", adminOnly, s.handleListUsers},
		{http.MethodGet, "/users/{id}", adminOnly, s.handleGetUser},
		{http.MethodPatch, "/users/{id}", adminOnly, s.handleUpdateUser},
		{http.MethodDelete, "/users/{id}", adminOnly, s.handleDeleteUser},
		{http.MethodGet, "/doctors", adminOnly, s.handleListByRole(auth.RoleDoctor)},
		{http.MethodGet, "/patients", adminOnly, s.handleListByRole(auth.RolePatient)},

		{http.MethodPost, "/prescriptions", doctorOnly, s.handleCreatePrescription},
		{http.MethodGet, "/prescriptions", doctorOnly, s.handleListDoctorPrescriptions},
		{http.MethodGet, "/prescriptions/{id}", doctorOnly, s.handleGetPrescription},
		{http.MethodPatch, "/prescriptions/{id}/consume", patientOnly, s.handleConsumePrescription},
		{http.MethodGet, "/me/prescriptions", patientOnly, s.handleListMyPrescriptions},
		{http.MethodGet, "/admin/prescriptions", adminOnly, s.handleListAdminPrescriptions},

		{http.MethodGet, "/audit-logs", adminOnly, s.handleListAuditLogs},
	}
}

// guards returns the ordered middleware for p: throttle, then
// authenticate or refreshGuard, then authorize. Unthrottled policies skip
// the first step.
func (s *Server) guards(p policy, throttle func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler
	if throttle != nil && !p.unthrottled {
		chain = append(chain, throttle)
	}
	switch {
	case p.public:
	case p.refresh:
		chain = append(chain, s.refreshGuard)
	default:
		chain = append(chain, s.authenticate, s.authorize(p.roles))
	}
	return chain
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)
	if s.telemetry != nil {
		r.Use(s.telemetry.middleware)
		if s.metricsCfg.Enabled {
			path := s.metricsCfg.Path
			if path == "" {
				path = "/metrics"
			}
			r.Method(http.MethodGet, path, s.telemetry.Handler())
		}
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	prefix := s.cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	throttle := s.throttle()
	r.Route(prefix, func(r chi.Router) {
		for _, rt := range s.routes() {
			r.With(s.guards(rt.policy, throttle)...).Method(rt.method, rt.pattern, rt.handler)
		}
	})

	if s.tracing {
		return otelhttp.NewHandler(r, "rxcore-api")
	}
	return r
}
