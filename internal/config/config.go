// Package config loads reviewd settings from environment variables, applies
// defaults, and validates the result. A .env file, when present, is loaded
// by the CLI before Load runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists origins allowed on REST and the WebSocket upgrade. Empty
// means any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls the response hardening headers.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures trace export for jobs and requests.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Throttle store backends.
const (
	ThrottleStoreMemory = "memory"
	ThrottleStoreBadger = "badger"
)

// ThrottleConfig configures the ingress rate limiter.
type ThrottleConfig struct {
	Name          string        // THROTTLE_NAME
	Limit         int           // THROTTLE_LIMIT, commands per window
	TTL           time.Duration // THROTTLE_TTL, window length
	BlockDuration time.Duration // THROTTLE_BLOCK
	Store         string        // THROTTLE_STORE: memory|badger
	BadgerPath    string        // THROTTLE_BADGER_PATH; empty keeps Badger in memory
}

// ProviderConfig selects the analysis backend.
type ProviderConfig struct {
	ProfilesPath string // PROVIDER_CONFIG, optional YAML profiles file
	Model        string // OPENAI_MODEL, used when no profiles file is set
	BaseURL      string // OPENAI_BASE_URL
}

// WSConfig tunes the WebSocket channel.
type WSConfig struct {
	PingInterval  time.Duration // WS_PING_INTERVAL
	MaxFrameBytes int64         // WS_MAX_FRAME_BYTES
}

// Config is the full reviewd configuration.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
	GinMode           string // debug|release|test

	// Logging and docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Orchestration
	DBPath        string // SQLite path
	MaxConcurrent int    // JOBS_MAX_CONCURRENT
	MaxBacklog    int    // STREAM_MAX_BACKLOG, per subscriber
	HistoryLimit  int    // HISTORY_MAX_LIMIT

	Throttle ThrottleConfig
	Provider ProviderConfig
	WS       WSConfig

	// Hardening
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath:        getenv("DB_PATH", "reviews.db"),
		MaxConcurrent: getint("JOBS_MAX_CONCURRENT", 4),
		MaxBacklog:    getint("STREAM_MAX_BACKLOG", 1024),
		HistoryLimit:  getint("HISTORY_MAX_LIMIT", 500),

		Throttle: ThrottleConfig{
			Name:          getenv("THROTTLE_NAME", "default"),
			Limit:         getint("THROTTLE_LIMIT", 10),
			TTL:           getdur("THROTTLE_TTL", 60*time.Second),
			BlockDuration: getdur("THROTTLE_BLOCK", 30*time.Second),
			Store:         strings.ToLower(getenv("THROTTLE_STORE", ThrottleStoreMemory)),
			BadgerPath:    getenv("THROTTLE_BADGER_PATH", ""),
		},
		Provider: ProviderConfig{
			ProfilesPath: getenv("PROVIDER_CONFIG", ""),
			Model:        getenv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:      getenv("OPENAI_BASE_URL", ""),
		},
		WS: WSConfig{
			PingInterval:  getdur("WS_PING_INTERVAL", 30*time.Second),
			MaxFrameBytes: int64(getint("WS_MAX_FRAME_BYTES", 64<<10)),
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "review-orchestrator"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxConcurrent < 1 {
		return errors.New("JOBS_MAX_CONCURRENT must be >= 1")
	}
	if cfg.MaxBacklog < 1 {
		return errors.New("STREAM_MAX_BACKLOG must be >= 1")
	}
	if cfg.HistoryLimit < 1 {
		return errors.New("HISTORY_MAX_LIMIT must be >= 1")
	}
	if cfg.Throttle.Limit < 1 {
		return errors.New("THROTTLE_LIMIT must be >= 1")
	}
	if cfg.Throttle.TTL <= 0 || cfg.Throttle.BlockDuration <= 0 {
		return errors.New("THROTTLE_TTL and THROTTLE_BLOCK must be positive durations")
	}
	switch cfg.Throttle.Store {
	case ThrottleStoreMemory, ThrottleStoreBadger:
	default:
		return fmt.Errorf("THROTTLE_STORE must be %q or %q", ThrottleStoreMemory, ThrottleStoreBadger)
	}
	if cfg.Provider.ProfilesPath == "" && strings.TrimSpace(cfg.Provider.Model) == "" {
		return errors.New("OPENAI_MODEL must be set when PROVIDER_CONFIG is empty")
	}
	if cfg.WS.PingInterval <= 0 || cfg.WS.MaxFrameBytes <= 0 {
		return errors.New("WS_PING_INTERVAL and WS_MAX_FRAME_BYTES must be positive")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
