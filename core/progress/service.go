package progress

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNotFound     = core.NewNotFoundError("progress")
	ErrStudentsOnly = core.NewPermissionError("only students can track their progress")
)

type (
	Repository interface {
		// SetStatus inserts or replaces the user's status on the problem.
		SetStatus(ctx context.Context, userID, problemID, status string, at time.Time, exec ...core.DBExecutor) (ProblemProgress, error)
		DeleteProgress(ctx context.Context, userID, problemID string, exec ...core.DBExecutor) (int, error)
		QueryProgress(ctx context.Context, userID string, filter QueryFilter, exec ...core.DBExecutor) ([]ProblemProgress, error)
		// Summaries returns one row per knowledge point having problems; kpID narrows to one.
		Summaries(ctx context.Context, userID, kpID string, exec ...core.DBExecutor) ([]Summary, error)
		Totals(ctx context.Context, userID string, exec ...core.DBExecutor) (Totals, error)
		// MarkSolved sets solved on the problems, leaving rows already solved untouched.
		// It returns the number of rows that changed.
		MarkSolved(ctx context.Context, userID string, problemIDs []string, at time.Time, exec ...core.DBExecutor) (int, error)
	}

	// Problems is the part of the knowledge service progress needs.
	Problems interface {
		GetProblem(ctx context.Context, id string) (knowledge.Problem, error)
		ProblemsBySource(ctx context.Context, source string, sourceIDs []string) ([]knowledge.Problem, error)
	}

	// Visibility decides who may look at a student's data.
	Visibility interface {
		CanView(ctx context.Context, viewer user.User, studentID string) (bool, error)
	}

	Service interface {
		SetStatus(ctx context.Context, student user.User, problemID string, ss SetStatus) (ProblemProgress, error)
		Reset(ctx context.Context, student user.User, problemID string) error
		List(ctx context.Context, viewer user.User, studentID string, filter QueryFilter) ([]ProblemProgress, error)
		Summary(ctx context.Context, viewer user.User, studentID, kpID string) ([]Summary, error)
		Totals(ctx context.Context, studentID string) (Totals, error)
		MarkSolvedBySource(ctx context.Context, studentID, source string, sourceIDs []string) (SyncResult, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		problems Problems
		vis      Visibility
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, problems Problems, vis Visibility, validate *validator.Validate) Service {
	return &service{db: db, repo: repo, problems: problems, vis: vis, validate: validate}
}

func (svc *service) SetStatus(ctx context.Context, student user.User, problemID string, ss SetStatus) (ProblemProgress, error) {
	if !student.IsStudent() {
		return ProblemProgress{}, ErrStudentsOnly
	}
	ss.Clean()
	if err := svc.validate.Struct(ss); err != nil {
		return ProblemProgress{}, err
	}
	if _, err := svc.problems.GetProblem(ctx, problemID); err != nil {
		return ProblemProgress{}, err
	}
	pp, err := svc.repo.SetStatus(ctx, student.ID, problemID, ss.Status, core.Now())
	return pp, errors.Wrap(err, "setting progress")
}

func (svc *service) Reset(ctx context.Context, student user.User, problemID string) error {
	if !student.IsStudent() {
		return ErrStudentsOnly
	}
	n, err := svc.repo.DeleteProgress(ctx, student.ID, problemID)
	if err != nil {
		return errors.Wrap(err, "deleting progress")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// authorize hides students the viewer may not see behind a not found.
func (svc *service) authorize(ctx context.Context, viewer user.User, studentID string) error {
	ok, err := svc.vis.CanView(ctx, viewer, studentID)
	if err != nil {
		return errors.Wrap(err, "checking visibility")
	}
	if !ok {
		return user.ErrNotFound
	}
	return nil
}

func (svc *service) List(ctx context.Context, viewer user.User, studentID string, filter QueryFilter) ([]ProblemProgress, error) {
	if err := svc.authorize(ctx, viewer, studentID); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryProgress(ctx, studentID, filter)
}

func (svc *service) Summary(ctx context.Context, viewer user.User, studentID, kpID string) ([]Summary, error) {
	if err := svc.authorize(ctx, viewer, studentID); err != nil {
		return nil, err
	}
	return svc.repo.Summaries(ctx, studentID, core.CleanString(kpID))
}

func (svc *service) Totals(ctx context.Context, studentID string) (Totals, error) {
	return svc.repo.Totals(ctx, studentID)
}

func (svc *service) MarkSolvedBySource(ctx context.Context, studentID, source string, sourceIDs []string) (SyncResult, error) {
	res := SyncResult{Unknown: []string{}}
	problems, err := svc.problems.ProblemsBySource(ctx, source, sourceIDs)
	if err != nil {
		return res, errors.Wrap(err, "finding problems by source")
	}

	known := make(map[string]bool, len(problems))
	ids := make([]string, 0, len(problems))
	for _, p := range problems {
		known[p.SourceID] = true
		ids = append(ids, p.ID)
	}
	for _, sid := range sourceIDs {
		if norm := knowledge.NormalizeSourceID(source, sid); norm != "" && !known[norm] {
			known[norm] = true
			res.Unknown = append(res.Unknown, norm)
		}
	}
	res.Matched = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		res.Updated, err = svc.repo.MarkSolved(ctx, studentID, ids, core.Now(), tx)
		return err
	})
	return res, errors.Wrap(err, "marking problems solved")
}
