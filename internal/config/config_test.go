package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_HappyPath_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BRIDGE_URL", "http://localhost:4000")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.EventsChannel != "wa:events" {
		t.Fatalf("unexpected EventsChannel default: %q", cfg.Redis.EventsChannel)
	}
	if cfg.Redis.ReportTTL != 86400*time.Second {
		t.Fatalf("unexpected ReportTTL default: %v", cfg.Redis.ReportTTL)
	}
	if cfg.Bridge.URL != "http://localhost:4000" {
		t.Fatalf("unexpected Bridge.URL: %q", cfg.Bridge.URL)
	}
	if cfg.Dispatch.Concurrency != 8 {
		t.Fatalf("unexpected Concurrency default: %d", cfg.Dispatch.Concurrency)
	}
	if cfg.Dispatch.CountryPrefix != "57" {
		t.Fatalf("unexpected CountryPrefix default: %q", cfg.Dispatch.CountryPrefix)
	}
	if cfg.Dispatch.AddressSuffix != "@c.us" {
		t.Fatalf("unexpected AddressSuffix default: %q", cfg.Dispatch.AddressSuffix)
	}
	if cfg.Database.PostgresURL != "" {
		t.Fatalf("expected empty PostgresURL, got %q", cfg.Database.PostgresURL)
	}
	if cfg.Sweep.Enabled {
		t.Fatal("expected sweep disabled when QR_MAX_AGE_SECONDS not set")
	}
	if cfg.Mail.Enabled {
		t.Fatal("expected mail disabled when GOOGLE_EMAIL not set")
	}
}

func TestLoadAll_SweepEnabled(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BRIDGE_URL", "http://localhost:4000")
	t.Setenv("QR_MAX_AGE_SECONDS", "300")
	t.Setenv("QR_SWEEP_INTERVAL_SECONDS", "30")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Sweep.Enabled {
		t.Fatal("expected sweep enabled")
	}
	if cfg.Sweep.QRMaxAge != 300*time.Second {
		t.Fatalf("unexpected QRMaxAge: %v", cfg.Sweep.QRMaxAge)
	}
	if cfg.Sweep.Interval != 30*time.Second {
		t.Fatalf("unexpected Interval: %v", cfg.Sweep.Interval)
	}
}

func TestLoadAll_MailEnabled(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BRIDGE_URL", "http://localhost:4000")
	t.Setenv("GOOGLE_EMAIL", "noreply@example.com")
	t.Setenv("GOOGLE_APP_KEY", "app-key")
	t.Setenv("MJML_APPLICATION_ID", "mjml-id")
	t.Setenv("MJML_SECRET_KEY", "mjml-secret")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Mail.Enabled {
		t.Fatal("expected mail enabled")
	}
	if cfg.Mail.SMTPHost != "smtp.gmail.com" || cfg.Mail.SMTPPort != 587 {
		t.Fatalf("unexpected SMTP defaults: %s:%d", cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)
	}
	if cfg.Mail.MJMLURL != "https://api.mjml.io/v1/render" {
		t.Fatalf("unexpected MJMLURL default: %q", cfg.Mail.MJMLURL)
	}
}

func TestLoadAll_MailMissingSecrets(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BRIDGE_URL", "http://localhost:4000")
	t.Setenv("GOOGLE_EMAIL", "noreply@example.com")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, key := range []string{"GOOGLE_APP_KEY", "MJML_APPLICATION_ID", "MJML_SECRET_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error mentioning %s, got: %v", key, err)
		}
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	t.Run("missing REDIS_ADDR", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("BRIDGE_URL", "http://localhost:4000")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "REDIS_ADDR") {
			t.Fatalf("expected error mentioning REDIS_ADDR, got: %v", err)
		}
	})

	t.Run("missing BRIDGE_URL", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("REDIS_ADDR", "localhost:6379")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "BRIDGE_URL") {
			t.Fatalf("expected error mentioning BRIDGE_URL, got: %v", err)
		}
	})
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REPORT_TTL_SECONDS", "REPORT_TTL_SECONDS", "nope"},
		{"invalid DISPATCH_CONCURRENCY", "DISPATCH_CONCURRENCY", "x"},
		{"invalid QR_MAX_AGE_SECONDS", "QR_MAX_AGE_SECONDS", "abc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("REDIS_ADDR", "localhost:6379")
			t.Setenv("BRIDGE_URL", "http://localhost:4000")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"concurrency zero", "DISPATCH_CONCURRENCY", "0", "DISPATCH_CONCURRENCY"},
		{"concurrency negative", "DISPATCH_CONCURRENCY", "-1", "DISPATCH_CONCURRENCY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("REDIS_ADDR", "localhost:6379")
			t.Setenv("BRIDGE_URL", "http://localhost:4000")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := joinErrors([]error{nil, nil}); err != nil {
		t.Fatalf("expected nil for all-nil slice, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, nil, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected joined error to contain both, got %v", err)
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"POSTGRES_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"EVENTS_CHANNEL",
		"REPORT_TTL_SECONDS",
		"BRIDGE_URL",
		"DISPATCH_CONCURRENCY",
		"COUNTRY_PREFIX",
		"ADDRESS_SUFFIX",
		"QR_MAX_AGE_SECONDS",
		"QR_SWEEP_INTERVAL_SECONDS",
		"GOOGLE_EMAIL",
		"GOOGLE_APP_KEY",
		"MJML_API_URL",
		"MJML_APPLICATION_ID",
		"MJML_SECRET_KEY",
		"SMTP_HOST",
		"SMTP_PORT",
		"MAIL_SUBJECT",
		"FOO",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
