package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/progress"
)

const (
	countAttempted = "COALESCE(SUM(CASE WHEN pp.status = 'attempted' THEN 1 ELSE 0 END), 0)"
	countSolved    = "COALESCE(SUM(CASE WHEN pp.status = 'solved' THEN 1 ELSE 0 END), 0)"
)

type progressRepository struct {
	repo
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{repo: newRepo(db)}
}

func (repo progressRepository) selectProgress() sq.SelectBuilder {
	return repo.sb.Select(
		"pp.user_id", "pp.problem_id", "p.knowledge_point_id", "p.title AS problem_title",
		"p.source", "p.source_id", "pp.status", "pp.updated_at",
	).From("problem_progress pp").Join("problems p ON p.id = pp.problem_id")
}

func (repo progressRepository) SetStatus(ctx context.Context, userID, problemID, status string, at time.Time, exec ...core.DBExecutor) (progress.ProblemProgress, error) {
	q := repo.sb.Insert("problem_progress").Columns("user_id", "problem_id", "status", "updated_at").
		Values(userID, problemID, status, at.UTC()).
		Suffix("ON CONFLICT (user_id, problem_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at")
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return progress.ProblemProgress{}, errors.Wrap(err, "upserting progress")
	}

	var pp progress.ProblemProgress
	sel := repo.selectProgress().Where(sq.Eq{"pp.user_id": userID, "pp.problem_id": problemID})
	if err := repo.get(ctx, exec, &pp, sel); err != nil {
		return progress.ProblemProgress{}, trapNoRowsErr(err, progress.ErrNotFound, "getting progress")
	}
	pp.UpdatedAt = utc(pp.UpdatedAt)
	return pp, nil
}

func (repo progressRepository) DeleteProgress(ctx context.Context, userID, problemID string, exec ...core.DBExecutor) (int, error) {
	q := repo.sb.Delete("problem_progress").Where(sq.Eq{"user_id": userID, "problem_id": problemID})
	cnt, err := repo.execAffected(ctx, exec, q)
	return cnt, errors.Wrap(err, "deleting progress")
}

func (repo progressRepository) QueryProgress(ctx context.Context, userID string, filter progress.QueryFilter, exec ...core.DBExecutor) ([]progress.ProblemProgress, error) {
	q := repo.selectProgress().Where(sq.Eq{"pp.user_id": userID})
	if filter.KnowledgePointID != "" {
		q = q.Where(sq.Eq{"p.knowledge_point_id": filter.KnowledgePointID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"pp.status": filter.Status})
	}
	q = q.OrderBy("pp.updated_at DESC")

	pps := make([]progress.ProblemProgress, 0)
	if err := repo.selectRows(ctx, exec, &pps, q); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	for i := range pps {
		pps[i].UpdatedAt = utc(pps[i].UpdatedAt)
	}
	return pps, nil
}

func (repo progressRepository) Summaries(ctx context.Context, userID, kpID string, exec ...core.DBExecutor) ([]progress.Summary, error) {
	q := repo.sb.Select(
		"kp.id AS knowledge_point_id", "kp.title", "kp.group_name",
		"COUNT(p.id) AS total", countAttempted+" AS attempted", countSolved+" AS solved",
	).From("knowledge_points kp").
		Join("problems p ON p.knowledge_point_id = kp.id").
		LeftJoin("problem_progress pp ON pp.problem_id = p.id AND pp.user_id = ?", userID).
		GroupBy("kp.id", "kp.title", "kp.group_name", "kp.position").
		OrderBy("kp.group_name", "kp.position", "kp.title")
	if kpID != "" {
		q = q.Where(sq.Eq{"kp.id": kpID})
	}

	summaries := make([]progress.Summary, 0)
	if err := repo.selectRows(ctx, exec, &summaries, q); err != nil {
		return nil, errors.Wrap(err, "summarizing progress")
	}
	return summaries, nil
}

func (repo progressRepository) Totals(ctx context.Context, userID string, exec ...core.DBExecutor) (progress.Totals, error) {
	q := repo.sb.Select(countAttempted+" AS attempted", countSolved+" AS solved").
		From("problem_progress pp").
		Where(sq.Eq{"pp.user_id": userID})

	var totals progress.Totals
	err := repo.get(ctx, exec, &totals, q)
	return totals, errors.Wrap(err, "counting progress totals")
}

func (repo progressRepository) MarkSolved(ctx context.Context, userID string, problemIDs []string, at time.Time, exec ...core.DBExecutor) (int, error) {
	if len(problemIDs) == 0 {
		return 0, nil
	}
	q := repo.sb.Insert("problem_progress").Columns("user_id", "problem_id", "status", "updated_at")
	for _, id := range problemIDs {
		q = q.Values(userID, id, progress.StatusSolved, at.UTC())
	}
	q = q.Suffix("ON CONFLICT (user_id, problem_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at" +
		" WHERE problem_progress.status <> excluded.status")

	cnt, err := repo.execAffected(ctx, exec, q)
	return cnt, errors.Wrap(err, "marking problems solved")
}
