package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/report"
)

var reportColumns = []string{
	"id", "student_id", "author_id", "title", "period", "content", "solved_count", "attempted_count",
	"created_at", "updated_at",
}

type reportRow struct {
	ID             string      `db:"id"`
	StudentID      string      `db:"student_id"`
	StudentName    string      `db:"student_name"`
	AuthorID       null.String `db:"author_id"`
	Title          string      `db:"title"`
	Period         string      `db:"period"`
	Content        string      `db:"content"`
	SolvedCount    int         `db:"solved_count"`
	AttemptedCount int         `db:"attempted_count"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (row reportRow) toReport() report.Report {
	return report.Report{
		ID:             row.ID,
		StudentID:      row.StudentID,
		StudentName:    row.StudentName,
		AuthorID:       row.AuthorID.String,
		Title:          row.Title,
		Period:         row.Period,
		Content:        row.Content,
		SolvedCount:    row.SolvedCount,
		AttemptedCount: row.AttemptedCount,
		CreatedAt:      utc(row.CreatedAt),
		UpdatedAt:      utc(row.UpdatedAt),
	}
}

type reportRepository struct {
	repo
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) *reportRepository {
	return &reportRepository{repo: newRepo(db)}
}

func (repo reportRepository) selectReports() sq.SelectBuilder {
	cols := append([]string{}, reportColumns...)
	cols = append(cols, "(SELECT "+displayName("u")+" FROM users u WHERE u.id = reports.student_id) AS student_name")
	return repo.sb.Select(cols...).From("reports")
}

func (repo reportRepository) CreateReport(ctx context.Context, r report.Report, exec ...core.DBExecutor) (report.Report, error) {
	q := repo.sb.Insert("reports").Columns(reportColumns...).Values(
		r.ID, r.StudentID, nullString(r.AuthorID), r.Title, r.Period, r.Content, r.SolvedCount, r.AttemptedCount,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return report.Report{}, errors.Wrap(err, "inserting report")
	}
	return repo.GetReport(ctx, r.ID, exec...)
}

func (repo reportRepository) GetReport(ctx context.Context, id string, exec ...core.DBExecutor) (report.Report, error) {
	var row reportRow
	if err := repo.get(ctx, exec, &row, repo.selectReports().Where(sq.Eq{"id": id})); err != nil {
		return report.Report{}, trapNoRowsErr(err, report.ErrNotFound, "getting report")
	}
	return row.toReport(), nil
}

func (repo reportRepository) QueryReports(ctx context.Context, filter report.QueryFilter, page *core.Pagination, exec ...core.DBExecutor) ([]report.Report, error) {
	q := repo.selectReports()
	if filter.StudentID != "" {
		q = q.Where(sq.Eq{"student_id": filter.StudentID})
	}
	if filter.StudentIDs != nil {
		q = q.Where(sq.Eq{"student_id": filter.StudentIDs})
	}
	q = paginate(q.OrderBy("created_at DESC"), page)

	var rows []reportRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	reports := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toReport())
	}
	return reports, nil
}

func (repo reportRepository) UpdateReport(ctx context.Context, r report.Report, exec ...core.DBExecutor) (report.Report, error) {
	q := repo.sb.Update("reports").SetMap(map[string]interface{}{
		"title":           r.Title,
		"period":          r.Period,
		"content":         r.Content,
		"solved_count":    r.SolvedCount,
		"attempted_count": r.AttemptedCount,
		"updated_at":      r.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": r.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "updating report")
	}
	if cnt == 0 {
		return report.Report{}, report.ErrNotFound
	}
	return repo.GetReport(ctx, r.ID, exec...)
}

func (repo reportRepository) DeleteReport(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("reports").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting report")
}
