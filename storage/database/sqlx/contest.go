package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/contest"
)

var contestColumns = []string{
	"id", "title", "description", "url", "platform", "start_at", "end_at", "created_by", "created_at", "updated_at",
}

type contestRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	URL         string      `db:"url"`
	Platform    string      `db:"platform"`
	StartAt     time.Time   `db:"start_at"`
	EndAt       time.Time   `db:"end_at"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (row contestRow) toContest() contest.Contest {
	return contest.Contest{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		URL:         row.URL,
		Platform:    row.Platform,
		StartAt:     utc(row.StartAt),
		EndAt:       utc(row.EndAt),
		CreatedBy:   row.CreatedBy.String,
		CreatedAt:   utc(row.CreatedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
}

type contestRepository struct {
	repo
}

var _ contest.Repository = (*contestRepository)(nil) // interface compliance check

func NewContestRepository(db *sqlx.DB) *contestRepository {
	return &contestRepository{repo: newRepo(db)}
}

func (repo contestRepository) CreateContest(ctx context.Context, c contest.Contest, exec ...core.DBExecutor) (contest.Contest, error) {
	q := repo.sb.Insert("contests").Columns(contestColumns...).Values(
		c.ID, c.Title, c.Description, c.URL, c.Platform, c.StartAt.UTC(), c.EndAt.UTC(),
		nullString(c.CreatedBy), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return contest.Contest{}, errors.Wrap(err, "inserting contest")
	}
	return repo.GetContest(ctx, c.ID, exec...)
}

func (repo contestRepository) GetContest(ctx context.Context, id string, exec ...core.DBExecutor) (contest.Contest, error) {
	var row contestRow
	if err := repo.get(ctx, exec, &row, repo.sb.Select(contestColumns...).From("contests").Where(sq.Eq{"id": id})); err != nil {
		return contest.Contest{}, trapNoRowsErr(err, contest.ErrNotFound, "getting contest")
	}
	return row.toContest(), nil
}

func (repo contestRepository) QueryContests(ctx context.Context, filter contest.QueryFilter, now time.Time, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]contest.Contest, error) {
	q := repo.sb.Select(contestColumns...).From("contests")
	now = now.UTC()
	def := "start_at"
	switch filter.Status {
	case contest.StatusUpcoming:
		q = q.Where(sq.Gt{"start_at": now})
	case contest.StatusRunning:
		q = q.Where(sq.LtOrEq{"start_at": now}).Where(sq.Gt{"end_at": now})
	case contest.StatusEnded:
		q = q.Where(sq.LtOrEq{"end_at": now})
		def = "start_at DESC"
	}
	if filter.Platform != "" {
		q = q.Where(sq.Eq{"platform": filter.Platform})
	}
	q = paginate(orderBy(q, ordering, def), page)

	var rows []contestRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying contests")
	}
	contests := make([]contest.Contest, 0, len(rows))
	for _, row := range rows {
		contests = append(contests, row.toContest())
	}
	return contests, nil
}

func (repo contestRepository) UpdateContest(ctx context.Context, c contest.Contest, exec ...core.DBExecutor) (contest.Contest, error) {
	q := repo.sb.Update("contests").SetMap(map[string]interface{}{
		"title":       c.Title,
		"description": c.Description,
		"url":         c.URL,
		"platform":    c.Platform,
		"start_at":    c.StartAt.UTC(),
		"end_at":      c.EndAt.UTC(),
		"updated_at":  c.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": c.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return contest.Contest{}, errors.Wrap(err, "updating contest")
	}
	if cnt == 0 {
		return contest.Contest{}, contest.ErrNotFound
	}
	return repo.GetContest(ctx, c.ID, exec...)
}

func (repo contestRepository) DeleteContest(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("contests").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting contest")
}
