package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all rollcall configuration.
type Config struct {
	Session  SessionConfig
	Provider ProviderConfig
	Scan     ScanConfig
	Sink     SinkConfig
	Log      LogConfig
	HTTPAddr string // empty disables the HTTP API

	// SettingsDSN, when set, points at a Postgres database whose
	// app_settings table overrides session settings at startup.
	SettingsDSN string

	loadErrs []error // malformed env values seen by Load
}

// SessionConfig holds the presence tracking parameters for one session.
type SessionConfig struct {
	EventID          string
	Name             string
	AbsenceThreshold time.Duration
	PollInterval     time.Duration
	PreferStableID   bool
	LeaveOnShutdown  bool
}

// ProviderConfig selects and parameterizes the roster provider.
type ProviderConfig struct {
	Name     string
	Endpoint string
	Token    string
	Extra    map[string]string
}

// ScanConfig holds collector tunables.
type ScanConfig struct {
	StepSize    int
	SettleDelay time.Duration
	MaxCycle    time.Duration
	MaxSteps    int
}

// SinkConfig holds event destination settings.
type SinkConfig struct {
	Names          []string
	BufferSize     int
	Pretty         bool
	FilePath       string
	FileMaxSize    int64
	WebhookURL     string
	WebhookToken   string
	PostgresDSN    string
	RedisURL       string
	RedisMaxLen    int64
	KafkaBrokers   []string
	KafkaTopic     string
	MemoryCapacity int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// KnownProviders and KnownSinks are the names Validate accepts.
var (
	KnownProviders = []string{"agent", "cdp"}
	KnownSinks     = []string{"stdout", "file", "webhook", "postgres", "redis", "kafka"}
)

// Load reads configuration from environment variables with sensible defaults.
// A malformed numeric or boolean value keeps its default and is reported by
// Validate.
func Load() Config {
	env := &envReader{}
	cfg := Config{
		Session: SessionConfig{
			EventID:          getenv("ROLLCALL_EVENT_ID", "default_event"),
			Name:             os.Getenv("ROLLCALL_SESSION_NAME"),
			AbsenceThreshold: env.millis("ROLLCALL_ABSENCE_THRESHOLD_MS", 15*time.Second),
			PollInterval:     env.millis("ROLLCALL_POLL_INTERVAL_MS", 5*time.Second),
			PreferStableID:   env.boolean("ROLLCALL_PREFER_STABLE_ID", true),
			LeaveOnShutdown:  env.boolean("ROLLCALL_LEAVE_ON_SHUTDOWN", false),
		},
		Provider: ProviderConfig{
			Name:     getenv("ROLLCALL_PROVIDER", "cdp"),
			Endpoint: getenv("ROLLCALL_PROVIDER_ENDPOINT", "http://127.0.0.1:9222"),
			Token:    os.Getenv("ROLLCALL_PROVIDER_TOKEN"),
			Extra:    loadProviderExtra(),
		},
		Scan: ScanConfig{
			StepSize:    env.integer("ROLLCALL_SCAN_STEP_SIZE", 300),
			SettleDelay: env.millis("ROLLCALL_SETTLE_DELAY_MS", 50*time.Millisecond),
			MaxCycle:    env.millis("ROLLCALL_MAX_CYCLE_MS", 4*time.Second),
			MaxSteps:    env.integer("ROLLCALL_MAX_SCAN_STEPS", 500),
		},
		Sink: SinkConfig{
			Names:          getenvList("ROLLCALL_SINKS", []string{"stdout"}),
			BufferSize:     env.integer("ROLLCALL_SINK_BUFFER", 1024),
			Pretty:         env.boolean("ROLLCALL_OUTPUT_PRETTY", false),
			FilePath:       getenv("ROLLCALL_FILE_PATH", "rollcall-events.jsonl"),
			FileMaxSize:    int64(env.integer("ROLLCALL_FILE_MAX_BYTES", 0)),
			WebhookURL:     os.Getenv("ROLLCALL_WEBHOOK_URL"),
			WebhookToken:   os.Getenv("ROLLCALL_WEBHOOK_TOKEN"),
			PostgresDSN:    os.Getenv("ROLLCALL_POSTGRES_DSN"),
			RedisURL:       getenv("ROLLCALL_REDIS_URL", "redis://127.0.0.1:6379/0"),
			RedisMaxLen:    int64(env.integer("ROLLCALL_REDIS_MAXLEN", 0)),
			KafkaBrokers:   getenvList("ROLLCALL_KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			KafkaTopic:     getenv("ROLLCALL_KAFKA_TOPIC", "rollcall.events"),
			MemoryCapacity: env.integer("ROLLCALL_MEMORY_EVENTS", 1000),
		},
		Log: LogConfig{
			Level:  getenv("ROLLCALL_LOG_LEVEL", "info"),
			Format: getenv("ROLLCALL_LOG_FORMAT", "text"),
		},
		HTTPAddr:    getenvOptional("ROLLCALL_HTTP_ADDR", ":8080"),
		SettingsDSN: os.Getenv("ROLLCALL_SETTINGS_DSN"),
	}
	cfg.loadErrs = env.errs
	return cfg
}

// Validate checks the configuration for errors. It returns all violations
// joined, not just the first. A threshold below twice the poll interval is
// legal but logged as a warning, since one missed cycle then causes a leave.
func (c Config) Validate() error {
	errs := slices.Clone(c.loadErrs)

	if strings.TrimSpace(c.Session.EventID) == "" {
		errs = append(errs, errors.New("event id must not be empty"))
	}
	if c.Session.AbsenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("absence threshold must be > 0, got %v", c.Session.AbsenceThreshold))
	}
	if c.Session.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be > 0, got %v", c.Session.PollInterval))
	}
	if c.Scan.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("scan step size must be > 0, got %d", c.Scan.StepSize))
	}
	if c.Scan.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must be >= 0, got %v", c.Scan.SettleDelay))
	}
	if c.Scan.MaxCycle <= 0 {
		errs = append(errs, fmt.Errorf("max cycle duration must be > 0, got %v", c.Scan.MaxCycle))
	}
	if !slices.Contains(KnownProviders, c.Provider.Name) {
		errs = append(errs, fmt.Errorf("unknown provider %q (want one of %s)", c.Provider.Name, strings.Join(KnownProviders, ", ")))
	}
	for _, name := range c.Sink.Names {
		if !slices.Contains(KnownSinks, name) {
			errs = append(errs, fmt.Errorf("unknown sink %q (want any of %s)", name, strings.Join(KnownSinks, ", ")))
		}
	}
	if slices.Contains(c.Sink.Names, "webhook") && c.Sink.WebhookURL == "" {
		errs = append(errs, errors.New("webhook sink requires ROLLCALL_WEBHOOK_URL"))
	}
	if slices.Contains(c.Sink.Names, "postgres") && c.Sink.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres sink requires ROLLCALL_POSTGRES_DSN"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) == 0 && c.Session.AbsenceThreshold < 2*c.Session.PollInterval {
		slog.Warn("absence threshold is below twice the poll interval; a single missed cycle will cause a leave",
			"threshold", c.Session.AbsenceThreshold, "poll_interval", c.Session.PollInterval)
	}

	return errors.Join(errs...)
}

// HasSink reports whether name is among the configured sinks.
func (c Config) HasSink(name string) bool {
	return slices.Contains(c.Sink.Names, name)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvOptional is getenv where an explicitly empty value is kept.
func getenvOptional(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// envReader parses typed env values and collects the malformed ones.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, v, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s: %q is not %s", key, v, want))
}

func (r *envReader) integer(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "an integer")
		return fallback
	}
	return n
}

func (r *envReader) millis(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, v, "a whole number of milliseconds")
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *envReader) boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "a boolean")
		return fallback
	}
	return b
}

// getenvList splits a comma-separated value, dropping blanks.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// loadProviderExtra reads provider-specific env vars into an Extra map.
func loadProviderExtra() map[string]string {
	vars := []struct {
		envVar   string
		extraKey string
	}{
		{"ROLLCALL_CDP_URL_MATCH", "url_match"},
		{"ROLLCALL_CDP_URL", "url"},
		{"ROLLCALL_CDP_HOST_SELECTOR", "host_selector"},
		{"ROLLCALL_CDP_LIST_SELECTOR", "list_selector"},
		{"ROLLCALL_CDP_ITEM_SELECTOR", "item_selector"},
		{"ROLLCALL_CDP_SCROLL_SELECTOR", "scroll_selector"},
		{"ROLLCALL_CDP_KEY_ATTR", "key_attr"},
		{"ROLLCALL_CDP_LABEL_SELECTOR", "label_selector"},
		{"ROLLCALL_CDP_LABEL_ATTR", "label_attr"},
		{"ROLLCALL_CDP_STATUS_SELECTOR", "status_selector"},
		{"ROLLCALL_CDP_STATUS_ATTR", "status_attr"},
		{"ROLLCALL_CDP_STABLE_ID_SELECTOR", "stable_id_selector"},
		{"ROLLCALL_PROVIDER_TIMEOUT", "timeout"},
		{"ROLLCALL_PROVIDER_HTTP2", "http2"},
	}

	var m map[string]string
	for _, v := range vars {
		if val := os.Getenv(v.envVar); val != "" {
			if m == nil {
				m = make(map[string]string)
			}
			m[v.extraKey] = val
		}
	}
	return m
}
