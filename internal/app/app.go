package app

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/auth"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/config"
	"protocolo-municipal/internal/identity"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/policy"
	"protocolo-municipal/internal/records"
	"protocolo-municipal/internal/sla"
	"protocolo-municipal/internal/workflow"
	"protocolo-municipal/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

//go:embed schema.sql
var schema string

// App is the composition root shared by the API and the operator CLI.
// Both binaries get the same services and the same hook subscriptions.
type App struct {
	Config config.Config
	Log    *slog.Logger

	DB    *sql.DB
	Redis *redis.Client
	NATS  *nats.Conn

	Policy   policy.Policy
	Calendar *calendar.Calendar
	Auth     *auth.Manager
	Users    identity.Directory
	Identity *identity.Provider
	Records  records.Store
	Audit    *audit.Service
	Inbox    *notify.Inbox
	Prefs    *notify.PreferenceStore
	Notifier *notify.Dispatcher
	SLA      *sla.Engine
	Workflow *workflow.Service

	closers []func() error
}

// New opens the configured backends and wires the core services.
// Without DB_HOST every store is in memory.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log}

	pol := policy.Default()
	if cfg.Policy.File != "" {
		p, err := policy.Load(cfg.Policy.File)
		if err != nil {
			return nil, err
		}
		pol = p
	}
	a.Policy = pol
	a.Calendar = pol.Calendar(nil)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth init: %w", err)
	}
	a.Auth = authManager

	if err := a.openBackends(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openBackends(ctx context.Context) error {
	cfg := a.Config
	if cfg.HasDB() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), postgresPool(cfg.DB))
		if err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
	} else {
		a.Log.Warn("DB_HOST not set, using in-memory stores")
	}

	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	if cfg.HasChannel("nats") {
		nc, err := nats.Connect(cfg.Notify.NATSURL,
			nats.Name("protocolo-municipal"),
			nats.Timeout(cfg.Notify.Timeout),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		a.NATS = nc
		a.closers = append(a.closers, func() error {
			return nc.Drain()
		})
	}
	return nil
}

func postgresPool(db config.DBConfig) utils.PoolConfig {
	return utils.PoolConfig{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
		PingTimeout:     db.PingTimeout,
	}
}

func (a *App) wire() error {
	var (
		auditRepo    audit.Repository
		inboxRepo    notify.InboxRepository
		prefsRepo    notify.PreferenceRepository
		workflowRepo workflow.Repository
	)
	if a.DB != nil {
		a.Records = records.NewPostgresStore(a.DB)
		a.Users = identity.NewPostgresDirectory(a.DB)
		auditRepo = audit.NewPostgresRepo(a.DB)
		inboxRepo = notify.NewPostgresInbox(a.DB)
		prefsRepo = notify.NewPostgresPreferences(a.DB)
		workflowRepo = workflow.NewPostgresRepo(a.DB)
	} else {
		a.Records = records.NewMemoryStore()
		a.Users = identity.NewMemoryDirectory()
		auditRepo = audit.NewMemoryRepo()
		inboxRepo = notify.NewMemoryInbox()
		prefsRepo = notify.NewMemoryPreferences()
		workflowRepo = workflow.NewMemoryRepo()
	}

	a.Identity = identity.NewProvider(a.Users)
	a.Audit = audit.NewService(auditRepo, a.Identity, a.Log)
	a.Audit.SetRetention(a.Config.Audit.Retention)

	a.Inbox = notify.NewInbox(inboxRepo, a.Identity)
	channels, err := a.channels()
	if err != nil {
		return err
	}
	a.Prefs = notify.NewPreferenceStore(prefsRepo, a.Identity, a.Log)
	a.Notifier = notify.NewDispatcher(a.Log, a.Config.Notify.Timeout, channels...).WithPreferences(a.Prefs)

	var dedup sla.Deduper
	if a.Redis != nil {
		dedup = sla.NewRedisDeduper(a.Redis)
	}
	a.SLA = sla.NewEngine(sla.Deps{
		Store:    a.Records,
		Calendar: a.Calendar,
		Prazos:   a.Policy,
		Notifier: a.Notifier,
		Audit:    a.Audit,
		Dedup:    dedup,
		Log:      a.Log,
	})

	a.Workflow = workflow.NewService(workflow.Deps{
		Repo:     workflowRepo,
		Store:    a.Records,
		Identity: a.Identity,
		Notifier: a.Notifier,
		Audit:    a.Audit,
		Rules:    a.Policy,
		Log:      a.Log,
	})

	// Order matters: the audit trail sees the saved record before the
	// deadline and workflow side effects touch it.
	a.Audit.Subscribe(a.Records)
	a.SLA.Subscribe(a.Records)
	a.Notifier.Subscribe(a.Records)
	a.Workflow.Subscribe(a.Records)
	return nil
}

func (a *App) channels() ([]notify.Channel, error) {
	var out []notify.Channel
	for _, name := range a.Config.Notify.Channels {
		switch name {
		case "inapp":
			out = append(out, a.Inbox)
		case "email":
			smtp := a.Config.Notify.SMTP
			ch, err := notify.NewEmail(notify.SMTPConfig{
				Host:     smtp.Host,
				Port:     smtp.Port,
				User:     smtp.User,
				Password: smtp.Password,
				From:     smtp.From,
			})
			if err != nil {
				return nil, fmt.Errorf("email channel: %w", err)
			}
			out = append(out, ch)
		case "webhook":
			out = append(out, notify.NewWebhook(a.Config.Notify.WebhookURL, a.Config.Notify.Timeout))
		case "nats":
			if a.NATS == nil {
				return nil, errors.New("nats channel enabled without a connection")
			}
			out = append(out, notify.NewNATS(a.NATS))
		}
	}
	return out, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return errors.New("migrate: no database configured (DB_HOST)")
	}
	if _, err := a.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ready reports whether the backing stores answer.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		if err := utils.HealthCheck(ctx, a.DB, a.Config.DB.PingTimeout); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
