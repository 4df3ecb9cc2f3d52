// Package api provides the HTTP REST API for rxcore.
//
// It exposes authentication, user administration, prescriptions and the
// audit log under the configured prefix (default /api). Sessions travel as
// two HttpOnly cookies, access_token and refresh_token.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/config"
	"github.com/rxportal/rxcore/internal/infrastructure/logging"
	"github.com/rxportal/rxcore/internal/prescription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing service reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Security      config.SecurityConfig
	Metrics       config.MetricsConfig
	Production    bool
	Tracing       bool
	Logger        *logging.Logger
	Auth          *auth.Service
	Prescriptions *prescription.Service
	AuditRepo     audit.Repository
	AuditWriter   *audit.Writer // optional: admin changes are not audited without it
	Telemetry     *Telemetry    // optional: /metrics is not served without it

	// Health sources. Leave nil for disabled integrations.
	Database HealthChecker
	MQTT     HealthChecker
	InfluxDB HealthChecker

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg           config.APIConfig
	secCfg        config.SecurityConfig
	metricsCfg    config.MetricsConfig
	production    bool
	tracing       bool
	logger        *logging.Logger
	auth          *auth.Service
	prescriptions *prescription.Service
	auditRepo     audit.Repository
	auditWriter   *audit.Writer
	telemetry     *Telemetry
	health        map[string]HealthChecker
	version       string
	startTime     time.Time
	server        *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Prescriptions == nil {
		return nil, fmt.Errorf("prescription service is required")
	}

	s := &Server{
		cfg:           deps.Config,
		secCfg:        deps.Security,
		metricsCfg:    deps.Metrics,
		production:    deps.Production,
		tracing:       deps.Tracing,
		logger:        deps.Logger,
		auth:          deps.Auth,
		prescriptions: deps.Prescriptions,
		auditRepo:     deps.AuditRepo,
		auditWriter:   deps.AuditWriter,
		telemetry:     deps.Telemetry,
		health:        map[string]HealthChecker{},
		version:       deps.Version,
		startTime:     time.Now(),
	}
	for name, hc := range map[string]HealthChecker{
		"database": deps.Database,
		"mqtt":     deps.MQTT,
		"influxdb": deps.InfluxDB,
	} {
		if hc != nil {
			s.health[name] = hc
		}
	}

	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// auditLog records an admin change. It never blocks the request.
func (s *Server) auditLog(action, entityType, entityID, userID string, details map[string]any) {
	if s.auditWriter == nil {
		return
	}
	s.auditWriter.Record(&audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     audit.SourceAPI,
		Details:    details,
	})
}
