package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
)

var notificationColumns = []string{"id", "user_id", "kind", "title", "body", "link", "read_at", "created_at"}

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Link      string    `db:"link"`
	ReadAt    null.Time `db:"read_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (row notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Kind:      row.Kind,
		Title:     row.Title,
		Body:      row.Body,
		Link:      row.Link,
		ReadAt:    timePtrFromNull(row.ReadAt),
		CreatedAt: utc(row.CreatedAt),
	}
}

type notificationRepository struct {
	repo
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{repo: newRepo(db)}
}

func (repo notificationRepository) CreateNotifications(ctx context.Context, notifs []notification.Notification, exec ...core.DBExecutor) error {
	if len(notifs) == 0 {
		return nil
	}
	q := repo.sb.Insert("notifications").Columns(notificationColumns...)
	for _, n := range notifs {
		q = q.Values(n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Link, nullTimeFromPtr(n.ReadAt), n.CreatedAt.UTC())
	}
	_, err := repo.exec(ctx, exec, q)
	return errors.Wrap(err, "inserting notifications")
}

func (repo notificationRepository) where(q sq.SelectBuilder, userID string, filter notification.QueryFilter) sq.SelectBuilder {
	q = q.Where(sq.Eq{"user_id": userID})
	if filter.Unread {
		q = q.Where(sq.Eq{"read_at": nil})
	}
	return q
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, userID string, filter notification.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]notification.Notification, error) {
	q := repo.where(repo.sb.Select(notificationColumns...).From("notifications"), userID, filter)
	q = paginate(q.OrderBy("created_at DESC", "id"), &page)

	var rows []notificationRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.toNotification())
	}
	return notifs, nil
}

func (repo notificationRepository) CountNotifications(ctx context.Context, userID string, filter notification.QueryFilter, exec ...core.DBExecutor) (int, error) {
	q := repo.where(repo.sb.Select("COUNT(*)").From("notifications"), userID, filter)
	cnt, err := repo.count(ctx, exec, q)
	return cnt, errors.Wrap(err, "counting notifications")
}

func (repo notificationRepository) GetNotification(ctx context.Context, userID, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	q := repo.sb.Select(notificationColumns...).From("notifications").Where(sq.Eq{"id": id, "user_id": userID})

	var row notificationRow
	if err := repo.get(ctx, exec, &row, q); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "getting notification")
	}
	return row.toNotification(), nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error) {
	q := repo.sb.Update("notifications").Set("read_at", core.Now()).
		Where(sq.Eq{"user_id": userID, "read_at": nil})
	if len(ids) > 0 {
		q = q.Where(sq.Eq{"id": ids})
	}
	cnt, err := repo.execAffected(ctx, exec, q)
	return cnt, errors.Wrap(err, "marking notifications read")
}

func (repo notificationRepository) DeleteNotification(ctx context.Context, userID, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("notifications").Where(sq.Eq{"id": id, "user_id": userID}))
	return cnt, errors.Wrap(err, "deleting notification")
}
