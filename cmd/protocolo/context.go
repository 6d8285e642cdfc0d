package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/config"
	"protocolo-municipal/pkg/logger"
)

type appFactory func(ctx context.Context) (*app.App, error)

type commandContext struct {
	envFileFlag string
	jsonFlag    bool

	factory appFactory

	appOnce sync.Once
	app     *app.App
	appErr  error
}

// newCommandContext builds the shared command state. A nil factory loads
// the env configuration and opens the configured backends.
func newCommandContext(factory appFactory) *commandContext {
	c := &commandContext{factory: factory}
	if c.factory == nil {
		c.factory = c.loadApp
	}
	return c
}

func (c *commandContext) loadApp(ctx context.Context) (*app.App, error) {
	if path := strings.TrimSpace(c.envFileFlag); path != "" {
		if err := os.Setenv("APP_ENV_FILE", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWriter(cfg.App.Env, os.Stderr)
	return app.New(ctx, cfg, log)
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		c.app, c.appErr = c.factory(ctx)
	})
	return c.app, c.appErr
}

func (c *commandContext) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := c.ensureApp(ctx)
	if err != nil {
		return err
	}
	return fn(a)
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func (c *commandContext) JSONMode() bool { return c.jsonFlag }
