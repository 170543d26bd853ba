package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ROLLCALL_EVENT_ID", "ROLLCALL_SESSION_NAME", "ROLLCALL_ABSENCE_THRESHOLD_MS",
		"ROLLCALL_POLL_INTERVAL_MS", "ROLLCALL_PREFER_STABLE_ID", "ROLLCALL_LEAVE_ON_SHUTDOWN",
		"ROLLCALL_PROVIDER", "ROLLCALL_PROVIDER_ENDPOINT", "ROLLCALL_PROVIDER_TOKEN",
		"ROLLCALL_SCAN_STEP_SIZE", "ROLLCALL_SETTLE_DELAY_MS", "ROLLCALL_MAX_CYCLE_MS",
		"ROLLCALL_SINKS", "ROLLCALL_CDP_URL_MATCH", "ROLLCALL_CDP_LIST_SELECTOR",
		"ROLLCALL_LOG_FORMAT", "ROLLCALL_SETTINGS_DSN",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() Config {
	return Config{
		Session: SessionConfig{
			EventID:          "ev-1",
			AbsenceThreshold: 15 * time.Second,
			PollInterval:     5 * time.Second,
		},
		Provider: ProviderConfig{Name: "agent"},
		Scan:     ScanConfig{StepSize: 300, SettleDelay: 0, MaxCycle: 4 * time.Second},
		Sink:     SinkConfig{Names: []string{"stdout"}},
		Log:      LogConfig{Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Session.EventID != "default_event" {
		t.Errorf("EventID = %q", cfg.Session.EventID)
	}
	if cfg.Session.AbsenceThreshold != 15*time.Second {
		t.Errorf("AbsenceThreshold = %v", cfg.Session.AbsenceThreshold)
	}
	if cfg.Session.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.Session.PollInterval)
	}
	if !cfg.Session.PreferStableID {
		t.Error("PreferStableID should default to true")
	}
	if cfg.Session.LeaveOnShutdown {
		t.Error("LeaveOnShutdown should default to false")
	}
	if cfg.Provider.Name != "cdp" {
		t.Errorf("Provider = %q", cfg.Provider.Name)
	}
	if cfg.Provider.Extra != nil {
		t.Errorf("expected nil Extra, got %v", cfg.Provider.Extra)
	}
	if cfg.Scan.StepSize != 300 || cfg.Scan.SettleDelay != 50*time.Millisecond {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if len(cfg.Sink.Names) != 1 || cfg.Sink.Names[0] != "stdout" {
		t.Errorf("Sinks = %v", cfg.Sink.Names)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLLCALL_EVENT_ID", "webinar-42")
	t.Setenv("ROLLCALL_ABSENCE_THRESHOLD_MS", "5000")
	t.Setenv("ROLLCALL_POLL_INTERVAL_MS", "2500")
	t.Setenv("ROLLCALL_PREFER_STABLE_ID", "false")
	t.Setenv("ROLLCALL_PROVIDER", "agent")
	t.Setenv("ROLLCALL_SINKS", " stdout, ,redis ")
	t.Setenv("ROLLCALL_CDP_URL_MATCH", "/watch/")
	t.Setenv("ROLLCALL_CDP_LIST_SELECTOR", "ul.roster")

	cfg := Load()

	if cfg.Session.EventID != "webinar-42" {
		t.Errorf("EventID = %q", cfg.Session.EventID)
	}
	if cfg.Session.AbsenceThreshold != 5*time.Second || cfg.Session.PollInterval != 2500*time.Millisecond {
		t.Errorf("durations = %v / %v", cfg.Session.AbsenceThreshold, cfg.Session.PollInterval)
	}
	if cfg.Session.PreferStableID {
		t.Error("PreferStableID should be false")
	}
	if got := strings.Join(cfg.Sink.Names, ","); got != "stdout,redis" {
		t.Errorf("Sinks = %q", got)
	}
	if cfg.Provider.Extra["url_match"] != "/watch/" || cfg.Provider.Extra["list_selector"] != "ul.roster" {
		t.Errorf("Extra = %v", cfg.Provider.Extra)
	}
}

func TestLoad_MalformedValuesReported(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLLCALL_ABSENCE_THRESHOLD_MS", "5s")
	t.Setenv("ROLLCALL_POLL_INTERVAL_MS", "soon")
	t.Setenv("ROLLCALL_SCAN_STEP_SIZE", "big")
	t.Setenv("ROLLCALL_PREFER_STABLE_ID", "maybe")

	cfg := Load()
	if cfg.Session.AbsenceThreshold != 15*time.Second || cfg.Session.PollInterval != 5*time.Second {
		t.Errorf("durations = %v / %v", cfg.Session.AbsenceThreshold, cfg.Session.PollInterval)
	}
	if cfg.Scan.StepSize != 300 {
		t.Errorf("StepSize = %d", cfg.Scan.StepSize)
	}
	if !cfg.Session.PreferStableID {
		t.Error("PreferStableID should keep its default")
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected malformed values to fail validation")
	}
	for _, key := range []string{
		"ROLLCALL_ABSENCE_THRESHOLD_MS", "ROLLCALL_POLL_INTERVAL_MS",
		"ROLLCALL_SCAN_STEP_SIZE", "ROLLCALL_PREFER_STABLE_ID",
	} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
	if !strings.Contains(err.Error(), `"5s"`) {
		t.Errorf("error should quote the bad value: %v", err)
	}
}

func TestLoad_WellFormedValuesValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLLCALL_ABSENCE_THRESHOLD_MS", " 20000 ")
	t.Setenv("ROLLCALL_PROVIDER", "agent")

	cfg := Load()
	if cfg.Session.AbsenceThreshold != 20*time.Second {
		t.Errorf("AbsenceThreshold = %v", cfg.Session.AbsenceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_EmptyHTTPAddrDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLLCALL_HTTP_ADDR", "")
	if got := Load().HTTPAddr; got != "" {
		t.Errorf("HTTPAddr = %q, want empty", got)
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty event", func(c *Config) { c.Session.EventID = "  " }, "event id"},
		{"zero threshold", func(c *Config) { c.Session.AbsenceThreshold = 0 }, "absence threshold"},
		{"negative poll", func(c *Config) { c.Session.PollInterval = -time.Second }, "poll interval"},
		{"zero step", func(c *Config) { c.Scan.StepSize = 0 }, "step size"},
		{"negative settle", func(c *Config) { c.Scan.SettleDelay = -1 }, "settle delay"},
		{"zero max cycle", func(c *Config) { c.Scan.MaxCycle = 0 }, "max cycle"},
		{"bad provider", func(c *Config) { c.Provider.Name = "zoom" }, `unknown provider "zoom"`},
		{"bad sink", func(c *Config) { c.Sink.Names = []string{"stdout", "s3"} }, `unknown sink "s3"`},
		{"webhook without url", func(c *Config) { c.Sink.Names = []string{"webhook"} }, "ROLLCALL_WEBHOOK_URL"},
		{"postgres without dsn", func(c *Config) { c.Sink.Names = []string{"postgres"} }, "ROLLCALL_POSTGRES_DSN"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Session.EventID = ""
	cfg.Session.PollInterval = 0
	cfg.Scan.StepSize = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(strings.Split(err.Error(), "\n")); n != 3 {
		t.Errorf("got %d violations, want 3: %v", n, err)
	}
}

func TestValidate_LowThresholdIsLegal(t *testing.T) {
	cfg := validConfig()
	cfg.Session.AbsenceThreshold = cfg.Session.PollInterval
	if err := cfg.Validate(); err != nil {
		t.Fatalf("threshold below 2x poll must only warn: %v", err)
	}
}

func TestHasSink(t *testing.T) {
	cfg := validConfig()
	if !cfg.HasSink("stdout") || cfg.HasSink("redis") {
		t.Errorf("HasSink wrong for %v", cfg.Sink.Names)
	}
}

func TestApplySettings(t *testing.T) {
	cfg := validConfig()
	err := cfg.ApplySettings(map[string]string{
		"EVENT_ID":             "from-db",
		"SESSION_NAME":         "Quarterly Review",
		"ABSENCE_THRESHOLD_MS": "20000",
		"POLL_INTERVAL_MS":     "4000",
		"SCAN_STEP_SIZE":       "250",
		"SETTLE_DELAY_MS":      "30",
		"CDP_URL":              "https://example.com/watch",
		"UNRELATED":            "ignored",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.EventID != "from-db" || cfg.Session.Name != "Quarterly Review" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Session.AbsenceThreshold != 20*time.Second || cfg.Session.PollInterval != 4*time.Second {
		t.Errorf("durations = %v / %v", cfg.Session.AbsenceThreshold, cfg.Session.PollInterval)
	}
	if cfg.Scan.StepSize != 250 || cfg.Scan.SettleDelay != 30*time.Millisecond {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.Provider.Extra["url"] != "https://example.com/watch" {
		t.Errorf("Extra = %v", cfg.Provider.Extra)
	}
}

func TestApplySettings_LegacyKeys(t *testing.T) {
	cfg := validConfig()
	err := cfg.ApplySettings(map[string]string{
		"EVENT_ID":     "wg-1",
		"WEBINAR_NAME": "Spring Launch",
		"ADMIN_URL":    "https://app.example.com/admin/webinar/1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.EventID != "wg-1" || cfg.Session.Name != "Spring Launch" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Provider.Extra["url"] != "https://app.example.com/admin/webinar/1" {
		t.Errorf("Extra = %v", cfg.Provider.Extra)
	}

	cfg = validConfig()
	err = cfg.ApplySettings(map[string]string{
		"WEBINAR_NAME": "old",
		"SESSION_NAME": "new",
		"ADMIN_URL":    "https://old.example.com",
		"CDP_URL":      "https://new.example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.Name != "new" || cfg.Provider.Extra["url"] != "https://new.example.com" {
		t.Errorf("newer keys should win: %q %v", cfg.Session.Name, cfg.Provider.Extra)
	}
}

func TestApplySettings_Malformed(t *testing.T) {
	cfg := validConfig()
	err := cfg.ApplySettings(map[string]string{
		"POLL_INTERVAL_MS": "fast",
		"SCAN_STEP_SIZE":   "1.5",
		"EVENT_ID":         "   ",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "POLL_INTERVAL_MS") || !strings.Contains(err.Error(), "SCAN_STEP_SIZE") {
		t.Errorf("err = %v", err)
	}
	if cfg.Session.PollInterval != 5*time.Second || cfg.Scan.StepSize != 300 || cfg.Session.EventID != "ev-1" {
		t.Errorf("malformed settings must not change fields: %+v %+v", cfg.Session, cfg.Scan)
	}
}
