package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"protocolo-municipal/internal/records"

	"github.com/google/uuid"
)

// Channel delivers a notification over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Dispatcher fans a notification out to every configured channel.
//
// A failing channel never stops the others. Dispatch returns the joined
// channel errors so callers can log them; state transitions that triggered
// the notification must not be rolled back because of it.
type Dispatcher struct {
	channels []Channel
	prefs    *PreferenceStore
	log      *slog.Logger
	clock    func() time.Time
	timeout  time.Duration
}

func NewDispatcher(log *slog.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{channels: channels, log: log, clock: time.Now, timeout: timeout}
}

// WithPreferences makes every channel deliver only to recipients that opted
// in to it.
func (d *Dispatcher) WithPreferences(p *PreferenceStore) *Dispatcher {
	d.prefs = p
	return d
}

func (d *Dispatcher) Channels() []string {
	out := make([]string, len(d.channels))
	for i, c := range d.channels {
		out[i] = c.Name()
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Type == "" {
		return errors.New("notify: type is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.clock().UTC()
	}
	if n.Priority == "" {
		n.Priority = records.PriorityMedia
	}
	if n.Title == "" {
		n.Title = n.Type.Label()
	}
	n.Recipients = uniqueRecipients(n.Recipients)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var prefs map[string]Preferences
	if d.prefs != nil && len(n.Recipients) > 0 {
		prefs = make(map[string]Preferences, len(n.Recipients))
		for _, r := range n.Recipients {
			prefs[strings.ToLower(r)] = d.prefs.forRecipient(ctx, r)
		}
	}

	var errs []error
	for _, c := range d.channels {
		out := n
		if prefs != nil {
			out.Recipients = recipientsFor(c.Name(), n.Recipients, prefs)
			if len(out.Recipients) == 0 {
				d.log.Debug("notification skipped by preferences", "channel", c.Name(), "type", n.Type, "record_id", n.RecordID)
				continue
			}
		}
		if err := c.Send(ctx, out); err != nil {
			d.log.Warn("notification channel failed",
				"channel", c.Name(),
				"type", n.Type,
				"record_id", n.RecordID,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		d.log.Debug("notification sent", "channel", c.Name(), "type", n.Type, "record_id", n.RecordID, "recipients", len(out.Recipients))
	}
	return errors.Join(errs...)
}

func uniqueRecipients(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
