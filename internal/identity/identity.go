package identity

import (
	"context"
	"errors"
	"strings"

	"protocolo-municipal/internal/auth"
)

// SystemName is used for actions without an authenticated user (scheduled jobs).
const SystemName = "Sistema"

var ErrNotFound = errors.New("identity: user not found")

type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// Directory resolves users by id or email.
type Directory interface {
	ByID(ctx context.Context, id int64) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
}

// Provider answers "who is acting" for the core services.
// The acting user travels in the request context (see auth.WithIdentity);
// the directory fills in what the token does not carry.
type Provider struct {
	dir Directory
}

func NewProvider(dir Directory) *Provider {
	return &Provider{dir: dir}
}

// CurrentUserID returns 0 when no user is attached to ctx.
func (p *Provider) CurrentUserID(ctx context.Context) int64 {
	id, err := auth.UserID(ctx)
	if err != nil {
		return 0
	}
	return id
}

func (p *Provider) CurrentUserDisplayName(ctx context.Context) string {
	if n := strings.TrimSpace(auth.Name(ctx)); n != "" {
		return n
	}
	id := p.CurrentUserID(ctx)
	if id == 0 {
		return SystemName
	}
	if p.dir != nil {
		if u, err := p.dir.ByID(ctx, id); err == nil && u.Name != "" {
			return u.Name
		}
	}
	return SystemName
}

// UserEmail returns "" when the user is unknown or has no address.
func (p *Provider) UserEmail(ctx context.Context, id int64) string {
	if id <= 0 {
		return ""
	}
	if cur, err := auth.UserID(ctx); err == nil && cur == id {
		if e := auth.Email(ctx); e != "" {
			return e
		}
	}
	if p.dir == nil {
		return ""
	}
	u, err := p.dir.ByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.Email
}

// UserIDByEmail resolves a notification recipient to a user id (0 if unknown).
func (p *Provider) UserIDByEmail(ctx context.Context, email string) int64 {
	if p.dir == nil || strings.TrimSpace(email) == "" {
		return 0
	}
	u, err := p.dir.ByEmail(ctx, email)
	if err != nil {
		return 0
	}
	return u.ID
}

// UserName returns the display name of id, or "" when unknown.
func (p *Provider) UserName(ctx context.Context, id int64) string {
	if p.dir == nil || id <= 0 {
		return ""
	}
	u, err := p.dir.ByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.Name
}
