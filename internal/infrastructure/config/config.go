package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// envPrefix is prepended to every environment override name.
const envPrefix = "RXCORE_"

// Config is the root configuration structure for rxcore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Environment string         `yaml:"environment" env:"ENVIRONMENT,overwrite"`
	Database    DatabaseConfig `yaml:"database"`
	API         APIConfig      `yaml:"api"`
	Logging     LoggingConfig  `yaml:"logging"`
	Security    SecurityConfig `yaml:"security"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig `yaml:"influxdb"`
	Tracing     TracingConfig  `yaml:"tracing"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Seed        SeedConfig     `yaml:"seed"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"DATABASE_PATH,overwrite"`
	WALMode     bool   `yaml:"wal_mode" env:"DATABASE_WAL_MODE,overwrite"`
	BusyTimeout int    `yaml:"busy_timeout" env:"DATABASE_BUSY_TIMEOUT,overwrite"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"API_HOST,overwrite"`
	Port     int              `yaml:"port" env:"API_PORT,overwrite"`
	Prefix   string           `yaml:"prefix" env:"API_PREFIX,overwrite"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"API_TLS_ENABLED,overwrite"`
	CertFile string `yaml:"cert_file" env:"API_TLS_CERT_FILE,overwrite"`
	KeyFile  string `yaml:"key_file" env:"API_TLS_KEY_FILE,overwrite"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,overwrite"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL,overwrite"`
	Format string `yaml:"format" env:"LOG_FORMAT,overwrite"`
	Output string `yaml:"output" env:"LOG_OUTPUT,overwrite"`
}

// SecurityConfig contains authentication and request-protection settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
	Cookies   CookieConfig    `yaml:"cookies"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// SweepInterval is how often expired refresh tokens are purged. Zero disables the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"TOKEN_SWEEP_INTERVAL,overwrite"`
}

// JWTConfig contains JWT signing settings. Access and refresh tokens use separate secrets.
type JWTConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET,overwrite"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET,overwrite"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"JWT_ACCESS_TTL,overwrite"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"JWT_REFRESH_TTL,overwrite"`
	Issuer          string        `yaml:"issuer"`
}

// PasswordConfig contains password hashing settings.
type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST,overwrite"`
}

// CookieConfig contains session cookie attributes.
//
// When Environment is production, cookies are always Secure with SameSite=None.
type CookieConfig struct {
	Domain   string `yaml:"domain" env:"COOKIE_DOMAIN,overwrite"`
	Secure   bool   `yaml:"secure" env:"COOKIE_SECURE,overwrite"`
	SameSite string `yaml:"same_site" env:"COOKIE_SAME_SITE,overwrite"`
}

// RateLimitConfig contains global request throttling settings.
type RateLimitConfig struct {
	Enabled  bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED,overwrite"`
	Requests int  `yaml:"requests" env:"RATE_LIMIT_REQUESTS,overwrite"`
	Window   int  `yaml:"window" env:"RATE_LIMIT_WINDOW,overwrite"` // seconds
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"MQTT_ENABLED,overwrite"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"MQTT_HOST,overwrite"`
	Port     int    `yaml:"port" env:"MQTT_PORT,overwrite"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"MQTT_USERNAME,overwrite"`
	Password string `yaml:"password" env:"MQTT_PASSWORD,overwrite"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"INFLUXDB_ENABLED,overwrite"`
	URL           string `yaml:"url" env:"INFLUXDB_URL,overwrite"`
	Token         string `yaml:"token" env:"INFLUXDB_TOKEN,overwrite"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TracingConfig contains OpenTelemetry trace export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED,overwrite"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT,overwrite"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED,overwrite"`
	Path    string `yaml:"path"`
}

// SeedConfig controls demo data seeding on startup.
type SeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// deploymentEnv holds unprefixed variables shared with the web client's deployment.
type deploymentEnv struct {
	RunSeed   string `env:"RUN_SEED"`
	AppOrigin string `env:"APP_ORIGIN"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern RXCORE_SECTION_KEY, for example
// RXCORE_DATABASE_PATH or RXCORE_JWT_ACCESS_SECRET. RUN_SEED and APP_ORIGIN
// are also honoured without the prefix.
//
// A missing file is not an error; defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(context.Background(), cfg, envconfig.OsLookuper()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Database: DatabaseConfig{
			Path:        "./data/rxcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host:   "0.0.0.0",
			Port:   4000,
			Prefix: "/api",
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15 * time.Minute,
				RefreshTokenTTL: 7 * 24 * time.Hour,
				Issuer:          "rxcore",
			},
			Password: PasswordConfig{
				BcryptCost: bcrypt.DefaultCost,
			},
			Cookies: CookieConfig{
				SameSite: "strict",
			},
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 10,
				Window:   60,
			},
			SweepInterval: time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rxcore",
			},
			QoS:         1,
			TopicPrefix: "rxcore",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "rxcore",
			Bucket:        "auth",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Tracing: TracingConfig{
			ServiceName: "rxcore",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(ctx context.Context, cfg *Config, lookuper envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
	}); err != nil {
		return err
	}

	var dep deploymentEnv
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &dep,
		Lookuper: lookuper,
	}); err != nil {
		return err
	}

	if dep.RunSeed == "true" {
		cfg.Seed.Enabled = true
	}
	if dep.AppOrigin != "" {
		cfg.API.CORS.AllowedOrigins = []string{dep.AppOrigin}
	}

	return nil
}

// Validate checks the configuration for errors and security issues.
//
// All problems are collected and returned together.
func (c *Config) Validate() error {
	var errs []string

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, "environment must be development or production")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Prefix != "" && !strings.HasPrefix(c.API.Prefix, "/") {
		errs = append(errs, "api.prefix must start with /")
	}

	errs = append(errs, c.Security.validate(c.IsProduction())...)

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, "tracing.endpoint is required when tracing is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// minJWTSecretLength is the shortest secret accepted for HS256 signing.
const minJWTSecretLength = 32

func (s SecurityConfig) validate(production bool) []string {
	var errs []string

	switch {
	case s.JWT.AccessSecret == "":
		errs = append(errs, "security.jwt.access_secret is required (set RXCORE_JWT_ACCESS_SECRET)")
	case len(s.JWT.AccessSecret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.access_secret must be at least 32 characters")
	}
	switch {
	case s.JWT.RefreshSecret == "":
		errs = append(errs, "security.jwt.refresh_secret is required (set RXCORE_JWT_REFRESH_SECRET)")
	case len(s.JWT.RefreshSecret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.refresh_secret must be at least 32 characters")
	}
	if s.JWT.AccessSecret != "" && s.JWT.AccessSecret == s.JWT.RefreshSecret {
		errs = append(errs, "security.jwt access and refresh secrets must differ")
	}

	if s.JWT.AccessTokenTTL <= 0 || s.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt token TTLs must be positive")
	} else if s.JWT.AccessTokenTTL >= s.JWT.RefreshTokenTTL {
		errs = append(errs, "security.jwt.access_token_ttl must be shorter than refresh_token_ttl")
	}

	if s.Password.BcryptCost < bcrypt.MinCost || s.Password.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Sprintf("security.password.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch strings.ToLower(s.Cookies.SameSite) {
	case "strict", "lax":
	case "none":
		if !s.Cookies.Secure && !production {
			errs = append(errs, "security.cookies.same_site none requires secure cookies")
		}
	default:
		errs = append(errs, "security.cookies.same_site must be strict, lax, or none")
	}

	if s.RateLimit.Enabled && (s.RateLimit.Requests <= 0 || s.RateLimit.Window <= 0) {
		errs = append(errs, "security.rate_limit requests and window must be positive")
	}

	if s.SweepInterval < 0 {
		errs = append(errs, "security.sweep_interval must not be negative")
	}

	return errs
}

// IsProduction reports whether the service runs with production cookie and logging rules.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
