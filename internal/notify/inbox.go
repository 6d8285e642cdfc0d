package notify

import (
	"context"
	"errors"

	"protocolo-municipal/internal/identity"
)

var ErrNotFound = errors.New("notify: notification not found")

// InboxRepository persists in-app notifications.
type InboxRepository interface {
	Insert(ctx context.Context, item *InboxItem) error
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]InboxItem, error)
	MarkRead(ctx context.Context, userID, id int64) error
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Inbox is the in-app channel. Recipients without an account are skipped.
type Inbox struct {
	repo InboxRepository
	ids  *identity.Provider
}

func NewInbox(repo InboxRepository, ids *identity.Provider) *Inbox {
	return &Inbox{repo: repo, ids: ids}
}

func (i *Inbox) Name() string { return "inapp" }

func (i *Inbox) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, email := range n.Recipients {
		uid := i.ids.UserIDByEmail(ctx, email)
		if uid == 0 {
			continue
		}
		item := InboxItem{
			UserID:    uid,
			RecordID:  n.RecordID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Priority:  n.Priority,
			CreatedAt: n.CreatedAt,
		}
		if err := i.repo.Insert(ctx, &item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Inbox) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]InboxItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return i.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (i *Inbox) MarkRead(ctx context.Context, userID, id int64) error {
	return i.repo.MarkRead(ctx, userID, id)
}

func (i *Inbox) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return i.repo.CountUnread(ctx, userID)
}

// MarkAllRead marks every unread item of userID and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return i.repo.MarkAllRead(ctx, userID)
}
