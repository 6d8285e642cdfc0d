package notify

import (
	"context"
	"sync"
)

// Recorder keeps every dispatched notification in memory. Useful for tests
// and for the dry-run mode of the CLI.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Err
}

// Dispatch lets a Recorder stand in for a Dispatcher.
func (r *Recorder) Dispatch(ctx context.Context, n Notification) error {
	return r.Send(ctx, n)
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
