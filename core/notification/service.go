package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
)

var ErrNotFound = core.NewNotFoundError("notification")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, notifs []Notification, exec ...core.DBExecutor) error
		QueryNotifications(ctx context.Context, userID string, filter QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]Notification, error)
		CountNotifications(ctx context.Context, userID string, filter QueryFilter, exec ...core.DBExecutor) (int, error)
		GetNotification(ctx context.Context, userID, id string, exec ...core.DBExecutor) (Notification, error)
		// MarkRead sets read_at on the user's unread notifications; all of them when ids is empty.
		MarkRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error)
		DeleteNotification(ctx context.Context, userID, id string, exec ...core.DBExecutor) (int, error)
	}

	// Publisher pushes stored notifications to connected clients.
	Publisher interface {
		Publish(ctx context.Context, n Notification) error
	}

	// Notifier is what other services depend on to notify users.
	Notifier interface {
		Notify(ctx context.Context, userIDs []string, nn NewNotification) ([]Notification, error)
	}

	Service interface {
		Notifier
		List(ctx context.Context, userID string, filter QueryFilter, page core.Pagination) (Page, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, id string) (Notification, error)
		MarkAllRead(ctx context.Context, userID string) (int, error)
		Delete(ctx context.Context, userID, id string) error
	}

	service struct {
		db     core.DB
		repo   Repository
		pub    Publisher
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, pub Publisher, logger core.Logger) Service {
	return &service{db: db, repo: repo, pub: pub, logger: logger}
}

// Notify stores one notification per distinct recipient in a single transaction,
// then publishes them. Publishing failures are logged, not returned.
func (svc *service) Notify(ctx context.Context, userIDs []string, nn NewNotification) ([]Notification, error) {
	now := core.Now()
	seen := make(map[string]bool, len(userIDs))
	notifs := make([]Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		notifs = append(notifs, Notification{
			ID:        uuid.New().String(),
			UserID:    id,
			Kind:      nn.Kind,
			Title:     nn.Title,
			Body:      nn.Body,
			Link:      nn.Link,
			CreatedAt: now,
		})
	}
	if len(notifs) == 0 {
		return notifs, nil
	}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		return svc.repo.CreateNotifications(ctx, notifs, tx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}

	if svc.pub != nil {
		for _, n := range notifs {
			if err := svc.pub.Publish(ctx, n); err != nil {
				svc.logger.Warn("publishing notification", err, "notification_id", n.ID)
			}
		}
	}
	return notifs, nil
}

func (svc *service) List(ctx context.Context, userID string, filter QueryFilter, page core.Pagination) (Page, error) {
	page.Clean()
	notifs, err := svc.repo.QueryNotifications(ctx, userID, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying notifications")
	}
	count, err := svc.repo.CountNotifications(ctx, userID, filter)
	if err != nil {
		return Page{}, errors.Wrap(err, "counting notifications")
	}
	unread, err := svc.UnreadCount(ctx, userID)
	if err != nil {
		return Page{}, err
	}
	return newPage(count, unread, notifs), nil
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	cnt, err := svc.repo.CountNotifications(ctx, userID, QueryFilter{Unread: true})
	return cnt, errors.Wrap(err, "counting unread notifications")
}

func (svc *service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	if _, err := svc.repo.MarkRead(ctx, userID, []string{id}); err != nil {
		return Notification{}, errors.Wrap(err, "marking notification read")
	}
	return svc.repo.GetNotification(ctx, userID, id)
}

func (svc *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	cnt, err := svc.repo.MarkRead(ctx, userID, nil)
	return cnt, errors.Wrap(err, "marking notifications read")
}

func (svc *service) Delete(ctx context.Context, userID, id string) error {
	cnt, err := svc.repo.DeleteNotification(ctx, userID, id)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}
