package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API and the operator CLI.
// All values come from env, optionally seeded from a dotenv file.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Policy PolicyConfig
	Audit  AuditConfig
	Notify NotifyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Pool sizing. Zero leaves the database/sql pool defaults of pkg/utils.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RedisConfig is optional. Without a host, alert de-duplication stays in process.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type PolicyConfig struct {
	// File is a TOML policy path. Empty means the built-in policy.
	File string
}

type AuditConfig struct {
	Retention time.Duration
}

type NotifyConfig struct {
	Channels   []string
	Timeout    time.Duration
	SMTP       SMTPConfig
	WebhookURL string
	NATSURL    string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

const (
	defaultEnvFile   = ".env"
	defaultTimeout   = 10 * time.Second
)

var knownChannels = []string{"inapp", "email", "webhook", "nats"}

// Load reads the dotenv file (APP_ENV_FILE, or .env when present), then env.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = optionalInt(parseErrs, "DB_MAX_OPEN_CONNS")
	c.DB.MaxIdleConns, parseErrs = optionalInt(parseErrs, "DB_MAX_IDLE_CONNS")
	c.DB.ConnMaxLifetime, parseErrs = optionalDuration(parseErrs, "DB_CONN_MAX_LIFETIME")
	c.DB.ConnMaxIdleTime, parseErrs = optionalDuration(parseErrs, "DB_CONN_MAX_IDLE_TIME")
	c.DB.PingTimeout, parseErrs = optionalDuration(parseErrs, "DB_PING_TIMEOUT")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")

	c.Policy.File = strings.TrimSpace(os.Getenv("POLICY_FILE"))
	c.Audit.Retention, parseErrs = optionalDuration(parseErrs, "AUDIT_RETENTION")

	c.Notify.Channels = splitList(os.Getenv("NOTIFY_CHANNELS"))
	c.Notify.Timeout, parseErrs = optionalDuration(parseErrs, "NOTIFY_TIMEOUT")
	c.Notify.SMTP.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	c.Notify.SMTP.Port, parseErrs = optionalInt(parseErrs, "SMTP_PORT")
	c.Notify.SMTP.User = strings.TrimSpace(os.Getenv("SMTP_USER"))
	c.Notify.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.Notify.SMTP.From = strings.TrimSpace(os.Getenv("SMTP_FROM"))
	c.Notify.WebhookURL = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))
	c.Notify.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("APP_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("APP_ENV_FILE %q: %w", path, err)
}

// Validate checks c and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	// Without DB_HOST the process runs on in-memory stores; production must persist.
	if c.DB.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_HOST is required in production"))
		}
	} else {
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.Port < 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
		errs = append(errs, c.DB.validatePool()...)
	}

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Zero keeps the audit default of two calendar years.
	if c.Audit.Retention < 0 {
		errs = append(errs, fmt.Errorf("AUDIT_RETENTION must not be negative, got %s", c.Audit.Retention))
	}

	if len(c.Notify.Channels) == 0 {
		c.Notify.Channels = []string{"inapp", "email"}
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = defaultTimeout
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case "inapp":
		case "email":
			if c.Notify.SMTP.Host == "" {
				errs = append(errs, errors.New("SMTP_HOST is required when NOTIFY_CHANNELS includes email"))
			}
			if c.Notify.SMTP.From == "" {
				errs = append(errs, errors.New("SMTP_FROM is required when NOTIFY_CHANNELS includes email"))
			}
		case "webhook":
			if c.Notify.WebhookURL == "" {
				errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required when NOTIFY_CHANNELS includes webhook"))
			}
		case "nats":
			if c.Notify.NATSURL == "" {
				errs = append(errs, errors.New("NATS_URL is required when NOTIFY_CHANNELS includes nats"))
			}
		default:
			errs = append(errs, fmt.Errorf("NOTIFY_CHANNELS: unknown channel %q (known: %s)", ch, strings.Join(knownChannels, ", ")))
		}
	}

	return joinErrors(errs)
}

func (d DBConfig) validatePool() []error {
	var errs []error
	if d.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must not be negative, got %d", d.MaxOpenConns))
	}
	if d.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must not be negative, got %d", d.MaxIdleConns))
	}
	if d.MaxOpenConns > 0 && d.MaxIdleConns > d.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) must not exceed DB_MAX_OPEN_CONNS (%d)", d.MaxIdleConns, d.MaxOpenConns))
	}
	for _, v := range []struct {
		key string
		d   time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime},
		{"DB_PING_TIMEOUT", d.PingTimeout},
	} {
		if v.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", v.key, v.d))
		}
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HasDB() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

// HasChannel reports whether name is an enabled notification channel.
func (c Config) HasChannel(name string) bool {
	for _, ch := range c.Notify.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
