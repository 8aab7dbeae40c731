package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/integration"
)

var gespColumns = []string{
	"id", "student_id", "candidate_id", "level", "language", "score", "passed", "exam_date", "created_at", "updated_at",
}

type gespRow struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	CandidateID string    `db:"candidate_id"`
	Level       int       `db:"level"`
	Language    string    `db:"language"`
	Score       float64   `db:"score"`
	Passed      bool      `db:"passed"`
	ExamDate    string    `db:"exam_date"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type gespRepository struct {
	repo
}

var _ integration.Repository = (*gespRepository)(nil) // interface compliance check

func NewGespRepository(db *sqlx.DB) *gespRepository {
	return &gespRepository{repo: newRepo(db)}
}

func (repo gespRepository) UpsertGespRecords(ctx context.Context, records []integration.GespRecord, exec ...core.DBExecutor) error {
	if len(records) == 0 {
		return nil
	}
	q := repo.sb.Insert("gesp_records").Columns(gespColumns...)
	for _, r := range records {
		q = q.Values(
			r.ID, r.StudentID, r.CandidateID, r.Level, r.Language, r.Score, r.Passed, r.ExamDate,
			r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		)
	}
	q = q.Suffix("ON CONFLICT (candidate_id, level, language, exam_date) DO UPDATE SET" +
		" score = excluded.score, passed = excluded.passed, updated_at = excluded.updated_at" +
		" WHERE gesp_records.student_id = excluded.student_id")
	_, err := repo.exec(ctx, exec, q)
	return errors.Wrap(err, "upserting gesp records")
}

func (repo gespRepository) CandidateOwner(ctx context.Context, candidateID string, exec ...core.DBExecutor) (string, error) {
	q := repo.sb.Select("student_id").From("gesp_records").
		Where(sq.Eq{"candidate_id": candidateID}).
		Limit(1)

	var studentID string
	if err := repo.get(ctx, exec, &studentID, q); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, "getting gesp candidate owner")
	}
	return studentID, nil
}

func (repo gespRepository) QueryGespRecords(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]integration.GespRecord, error) {
	q := repo.sb.Select(gespColumns...).From("gesp_records").
		Where(sq.Eq{"student_id": studentID}).
		OrderBy("exam_date DESC", "level DESC")

	var rows []gespRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying gesp records")
	}
	records := make([]integration.GespRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, integration.GespRecord{
			ID:          row.ID,
			StudentID:   row.StudentID,
			CandidateID: row.CandidateID,
			Level:       row.Level,
			Language:    row.Language,
			Score:       row.Score,
			Passed:      row.Passed,
			ExamDate:    row.ExamDate,
			CreatedAt:   utc(row.CreatedAt),
			UpdatedAt:   utc(row.UpdatedAt),
		})
	}
	return records, nil
}
