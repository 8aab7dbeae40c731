package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/family"
)

type bindingRow struct {
	ID          string    `db:"id"`
	ParentID    string    `db:"parent_id"`
	ParentName  string    `db:"parent_name"`
	StudentID   string    `db:"student_id"`
	StudentName string    `db:"student_name"`
	Status      string    `db:"status"`
	Message     string    `db:"message"`
	CreatedAt   time.Time `db:"created_at"`
	RespondedAt null.Time `db:"responded_at"`
}

func (row bindingRow) toRequest() family.BindingRequest {
	return family.BindingRequest{
		ID:          row.ID,
		ParentID:    row.ParentID,
		ParentName:  row.ParentName,
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		Status:      row.Status,
		Message:     row.Message,
		CreatedAt:   utc(row.CreatedAt),
		RespondedAt: timePtrFromNull(row.RespondedAt),
	}
}

// displayName is a user's name, falling back to the username.
func displayName(alias string) string {
	return "COALESCE(NULLIF(" + alias + ".name, ''), " + alias + ".username, '')"
}

type familyRepository struct {
	repo
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *sqlx.DB) *familyRepository {
	return &familyRepository{repo: newRepo(db)}
}

func (repo familyRepository) selectRequests() sq.SelectBuilder {
	return repo.sb.Select(
		"b.id", "b.parent_id", displayName("p")+" AS parent_name",
		"b.student_id", displayName("s")+" AS student_name",
		"b.status", "b.message", "b.created_at", "b.responded_at",
	).From("binding_requests b").
		Join("users p ON p.id = b.parent_id").
		Join("users s ON s.id = b.student_id")
}

func (repo familyRepository) CreateRequest(ctx context.Context, req family.BindingRequest, exec ...core.DBExecutor) (family.BindingRequest, error) {
	q := repo.sb.Insert("binding_requests").
		Columns("id", "parent_id", "student_id", "status", "message", "created_at", "responded_at").
		Values(req.ID, req.ParentID, req.StudentID, req.Status, req.Message, req.CreatedAt.UTC(), nullTimeFromPtr(req.RespondedAt))
	if _, err := repo.exec(ctx, exec, q); err != nil {
		if isUniqueViolation(err) {
			return family.BindingRequest{}, family.ErrAlreadyRequested
		}
		return family.BindingRequest{}, errors.Wrap(err, "inserting binding request")
	}
	return repo.GetRequest(ctx, req.ID, exec...)
}

func (repo familyRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (family.BindingRequest, error) {
	var row bindingRow
	if err := repo.get(ctx, exec, &row, repo.selectRequests().Where(sq.Eq{"b.id": id})); err != nil {
		return family.BindingRequest{}, trapNoRowsErr(err, family.ErrNotFound, "getting binding request")
	}
	return row.toRequest(), nil
}

func (repo familyRepository) QueryRequests(ctx context.Context, filter family.QueryFilter, exec ...core.DBExecutor) ([]family.BindingRequest, error) {
	q := repo.selectRequests()
	if filter.Status != "" {
		q = q.Where(sq.Eq{"b.status": filter.Status})
	}
	if filter.ParentID != "" {
		q = q.Where(sq.Eq{"b.parent_id": filter.ParentID})
	}
	if filter.StudentID != "" {
		q = q.Where(sq.Eq{"b.student_id": filter.StudentID})
	}
	if filter.UserID != "" {
		q = q.Where(sq.Or{sq.Eq{"b.parent_id": filter.UserID}, sq.Eq{"b.student_id": filter.UserID}})
	}
	q = q.OrderBy("b.created_at DESC")

	var rows []bindingRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying binding requests")
	}
	reqs := make([]family.BindingRequest, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.toRequest())
	}
	return reqs, nil
}

func (repo familyRepository) FindOpenRequest(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (family.BindingRequest, error) {
	q := repo.selectRequests().Where(sq.Eq{
		"b.parent_id":  parentID,
		"b.student_id": studentID,
		"b.status":     []string{family.StatusPending, family.StatusAccepted},
	}).OrderBy("b.created_at DESC").Limit(1)

	var row bindingRow
	if err := repo.get(ctx, exec, &row, q); err != nil {
		return family.BindingRequest{}, trapNoRowsErr(err, family.ErrNotFound, "finding open binding request")
	}
	return row.toRequest(), nil
}

func (repo familyRepository) UpdateStatus(ctx context.Context, id string, from []string, to string, exec ...core.DBExecutor) (family.BindingRequest, error) {
	q := repo.sb.Update("binding_requests").
		Set("status", to).
		Set("responded_at", core.Now()).
		Where(sq.Eq{"id": id, "status": from})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return family.BindingRequest{}, errors.Wrap(err, "updating binding request status")
	}
	req, err := repo.GetRequest(ctx, id, exec...)
	if err != nil {
		return family.BindingRequest{}, err
	}
	if cnt == 0 {
		return req, family.ErrInvalidTransition
	}
	return req, nil
}
