package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/pkg/utils"
)

var errJobBusy = errors.New("another run of this job holds the lock")

const jobLockPrefix = "protocolo:job:"

// withJobLock runs fn while holding a single-slot Redis cap named after the job.
// Without Redis the job runs unguarded and the external scheduler must not overlap runs.
func withJobLock(ctx context.Context, a *app.App, job string, ttl time.Duration, fn func() error) error {
	if a.Redis == nil {
		return fn()
	}
	key := jobLockPrefix + job
	ok, err := utils.AcquireConcurrencyCap(ctx, a.Redis, key, 1, ttl)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", job, err)
	}
	if !ok {
		return errJobBusy
	}
	defer func() {
		if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), a.Redis, key); err != nil {
			a.Log.Warn("job lock release failed", "job", job, "err", err)
		}
	}()
	return fn()
}

// parseDateFlag accepts an empty value as "unbounded".
func parseDateFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
