package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"protocolo-municipal/internal/identity"
)

// Preferences are one user's channel opt-ins. Channels other than inapp,
// email and webhook are not user-selectable and always deliver.
type Preferences struct {
	UserID  int64 `json:"user_id"`
	InApp   bool  `json:"inapp"`
	Email   bool  `json:"email"`
	Webhook bool  `json:"webhook"`
}

func DefaultPreferences(userID int64) Preferences {
	return Preferences{UserID: userID, InApp: true, Email: true}
}

func (p Preferences) Allows(channel string) bool {
	switch channel {
	case "inapp":
		return p.InApp
	case "email":
		return p.Email
	case "webhook":
		return p.Webhook
	}
	return true
}

// PreferenceRepository persists explicit preferences. Get returns
// ErrNotFound for users that never saved any.
type PreferenceRepository interface {
	GetPreferences(ctx context.Context, userID int64) (Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error
}

// PreferenceStore resolves the effective preferences of a user or recipient.
type PreferenceStore struct {
	repo PreferenceRepository
	ids  *identity.Provider
	log  *slog.Logger
}

func NewPreferenceStore(repo PreferenceRepository, ids *identity.Provider, log *slog.Logger) *PreferenceStore {
	if log == nil {
		log = slog.Default()
	}
	return &PreferenceStore{repo: repo, ids: ids, log: log}
}

func (s *PreferenceStore) Get(ctx context.Context, userID int64) (Preferences, error) {
	p, err := s.repo.GetPreferences(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return Preferences{}, err
	}
	return p, nil
}

func (s *PreferenceStore) Save(ctx context.Context, p Preferences) error {
	if p.UserID <= 0 {
		return errors.New("notify: preferences need a user id")
	}
	return s.repo.SavePreferences(ctx, p)
}

// forRecipient maps an e-mail to its owner's preferences. Addresses without
// an account, and lookup failures, fall back to the defaults.
func (s *PreferenceStore) forRecipient(ctx context.Context, email string) Preferences {
	uid := s.ids.UserIDByEmail(ctx, email)
	if uid == 0 {
		return DefaultPreferences(0)
	}
	p, err := s.Get(ctx, uid)
	if err != nil {
		s.log.Warn("notification preferences lookup failed", "user_id", uid, "err", err)
		return DefaultPreferences(uid)
	}
	return p
}

// recipientsFor keeps the recipients whose preferences allow channel.
func recipientsFor(channel string, recipients []string, prefs map[string]Preferences) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if p, ok := prefs[strings.ToLower(r)]; ok && !p.Allows(channel) {
			continue
		}
		out = append(out, r)
	}
	return out
}
