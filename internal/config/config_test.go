package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV is required", "JWT_SECRET is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresDatabaseAndSSLMode(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "pm", JWTAudience: "protocolo"},
		Notify: NotifyConfig{Channels: []string{"inapp"}},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_HOST") {
		t.Fatalf("expected DB_HOST error, got %v", err)
	}

	c.DB = DBConfig{Host: "db", User: "postgres", Name: "protocolo"}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "local"},
		DB:     DBConfig{Host: "localhost", User: "postgres", Name: "protocolo"},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Notify: NotifyConfig{Channels: []string{"inapp"}},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" || c.DB.Port != 5432 || c.App.Port != 8080 {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.Audit.Retention != 0 || c.Notify.Timeout != defaultTimeout {
		t.Fatalf("unexpected audit/notify defaults: %+v %+v", c.Audit, c.Notify)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", c.Auth.AccessTokenTTL)
	}
	if c.HasRedis() {
		t.Fatalf("redis must be optional")
	}
}

func TestValidate_PoolSettings(t *testing.T) {
	base := func() Config {
		return Config{
			App:    AppConfig{Env: "local"},
			DB:     DBConfig{Host: "localhost", User: "postgres", Name: "protocolo"},
			Auth:   AuthConfig{JWTSecret: "secret"},
			Notify: NotifyConfig{Channels: []string{"inapp"}},
		}
	}

	c := base()
	c.DB.MaxOpenConns, c.DB.MaxIdleConns, c.DB.PingTimeout = 20, 20, 3*time.Second
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid pool, got %v", err)
	}

	c = base()
	c.DB.MaxOpenConns, c.DB.MaxIdleConns = 4, 8
	c.DB.ConnMaxLifetime = -time.Minute
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected pool errors")
	}
	for _, want := range []string{"DB_MAX_IDLE_CONNS (8) must not exceed DB_MAX_OPEN_CONNS (4)", "DB_CONN_MAX_LIFETIME"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}

	// Pool settings only matter with a database.
	c = base()
	c.DB = DBConfig{MaxOpenConns: -1}
	if err := c.Validate(); err != nil {
		t.Fatalf("in-memory profile must ignore pool settings, got %v", err)
	}
}

func TestValidate_ChannelRequirements(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "dev"},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Notify: NotifyConfig{Channels: []string{"email", "webhook", "nats", "sms"}},
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"SMTP_HOST", "SMTP_FROM", "NOTIFY_WEBHOOK_URL", "NATS_URL", `unknown channel "sms"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoad_ReadsEnvFileWithoutOverridingEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := strings.Join([]string{
		"APP_ENV=dev",
		"APP_PORT=9090",
		"JWT_SECRET=from-file",
		"NOTIFY_CHANNELS=inapp, webhook",
		"NOTIFY_WEBHOOK_URL=https://hooks.example/x",
		"AUDIT_RETENTION=720h",
		"DB_HOST=localhost",
		"DB_USER=postgres",
		"DB_NAME=protocolo",
		"DB_MAX_OPEN_CONNS=12",
		"DB_CONN_MAX_LIFETIME=10m",
		"DB_PING_TIMEOUT=1s",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("APP_ENV_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")
	// Keep variables the file sets isolated from the test process.
	for _, k := range []string{
		"APP_ENV", "APP_PORT", "NOTIFY_CHANNELS", "NOTIFY_WEBHOOK_URL", "AUDIT_RETENTION",
		"DB_HOST", "DB_USER", "DB_NAME", "DB_SSLMODE", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
		"DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_PING_TIMEOUT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9090 || c.App.Env != "dev" {
		t.Fatalf("file values not loaded: %+v", c.App)
	}
	if c.Auth.JWTSecret != "from-env" {
		t.Fatalf("env must win over file, got %q", c.Auth.JWTSecret)
	}
	if !c.HasChannel("webhook") || c.HasChannel("email") {
		t.Fatalf("unexpected channels %v", c.Notify.Channels)
	}
	if c.Audit.Retention != 720*time.Hour {
		t.Fatalf("unexpected retention %s", c.Audit.Retention)
	}
	if c.DB.MaxOpenConns != 12 || c.DB.ConnMaxLifetime != 10*time.Minute || c.DB.PingTimeout != time.Second {
		t.Fatalf("pool settings not loaded: %+v", c.DB)
	}
}

func TestLoad_MissingExplicitEnvFileFails(t *testing.T) {
	t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing APP_ENV_FILE")
	}
}
