package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_PATH", "THROTTLE_STORE", "PROVIDER_CONFIG", "OPENAI_MODEL"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Fatalf("expected LOG_LEVEL error, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.DBPath != "reviews.db" {
		t.Fatalf("base defaults unexpected: %+v", cfg)
	}
	if cfg.MaxConcurrent != 4 || cfg.MaxBacklog != 1024 || cfg.HistoryLimit != 500 {
		t.Fatalf("orchestration defaults unexpected: %+v", cfg)
	}
	want := ThrottleConfig{Name: "default", Limit: 10, TTL: time.Minute, BlockDuration: 30 * time.Second, Store: ThrottleStoreMemory}
	if cfg.Throttle != want {
		t.Fatalf("throttle defaults: got %+v want %+v", cfg.Throttle, want)
	}
	if cfg.Provider.Model != "gpt-4o-mini" || cfg.Provider.ProfilesPath != "" {
		t.Fatalf("provider defaults unexpected: %+v", cfg.Provider)
	}
	if cfg.OTEL.ServiceName != "review-orchestrator" {
		t.Fatalf("service name default: %q", cfg.OTEL.ServiceName)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("JOBS_MAX_CONCURRENT", "8")
	t.Setenv("STREAM_MAX_BACKLOG", "nope") // falls back to default
	t.Setenv("THROTTLE_NAME", "ws")
	t.Setenv("THROTTLE_LIMIT", "3")
	t.Setenv("THROTTLE_TTL", "10s")
	t.Setenv("THROTTLE_BLOCK", "1m")
	t.Setenv("THROTTLE_STORE", "BADGER")
	t.Setenv("THROTTLE_BADGER_PATH", "/tmp/throttle")
	t.Setenv("PROVIDER_CONFIG", "profiles.yaml")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.ShutdownTimeout != 5*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.MaxConcurrent != 8 || cfg.MaxBacklog != 1024 {
		t.Fatalf("orchestration unexpected: %+v", cfg)
	}
	want := ThrottleConfig{Name: "ws", Limit: 3, TTL: 10 * time.Second, BlockDuration: time.Minute, Store: ThrottleStoreBadger, BadgerPath: "/tmp/throttle"}
	if cfg.Throttle != want {
		t.Fatalf("throttle: got %+v want %+v", cfg.Throttle, want)
	}
	if cfg.Provider.ProfilesPath != "profiles.yaml" || cfg.Provider.BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("provider unexpected: %+v", cfg.Provider)
	}
	if cfg.WS.PingInterval != 5*time.Second || cfg.WS.MaxFrameBytes != 64<<10 {
		t.Fatalf("ws unexpected: %+v", cfg.WS)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("security/otel unexpected: %+v %+v", cfg.Security, cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty port", "PORT", "   ", "PORT must not be empty"},
		{"timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"db path", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"concurrency", "JOBS_MAX_CONCURRENT", "0", "JOBS_MAX_CONCURRENT"},
		{"backlog", "STREAM_MAX_BACKLOG", "-1", "STREAM_MAX_BACKLOG"},
		{"history limit", "HISTORY_MAX_LIMIT", "0", "HISTORY_MAX_LIMIT"},
		{"throttle limit", "THROTTLE_LIMIT", "0", "THROTTLE_LIMIT"},
		{"throttle ttl", "THROTTLE_TTL", "-1s", "THROTTLE_TTL"},
		{"throttle block", "THROTTLE_BLOCK", "0s", "THROTTLE_BLOCK"},
		{"throttle store", "THROTTLE_STORE", "redis", "THROTTLE_STORE"},
		{"model", "OPENAI_MODEL", "  ", "OPENAI_MODEL"},
		{"ws ping", "WS_PING_INTERVAL", "0s", "WS_PING_INTERVAL"},
		{"hsts", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s error, got: %v", tc.want, err)
			}
		})
	}
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	t.Setenv("F_BAD", "nope")
	if getfloat("F_VALID", 0) != 3.14 || getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat unexpected")
	}
	t.Setenv("I_VALID", "42")
	t.Setenv("I_BAD", "x")
	if getint("I_VALID", 0) != 42 || getint("I_BAD", 7) != 7 {
		t.Fatalf("getint unexpected")
	}
	t.Setenv("D_VALID", "150ms")
	t.Setenv("D_BAD", "zzz")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond || getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur unexpected")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "TRUE", " yes ", "Y", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "FALSE", " no ", "N", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	cases := map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "/api//": "/api"}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
