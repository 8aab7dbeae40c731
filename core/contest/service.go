package contest

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNotFound       = core.NewNotFoundError("contest")
	ErrEndBeforeStart = errors.New("end must be after start")
)

type (
	Repository interface {
		CreateContest(ctx context.Context, c Contest, exec ...core.DBExecutor) (Contest, error)
		GetContest(ctx context.Context, id string, exec ...core.DBExecutor) (Contest, error)
		// QueryContests filters on the time-derived status relative to now.
		QueryContests(ctx context.Context, filter QueryFilter, now time.Time, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Contest, error)
		UpdateContest(ctx context.Context, c Contest, exec ...core.DBExecutor) (Contest, error)
		DeleteContest(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
	}

	// Students lists the users to notify about new contests.
	Students interface {
		ActiveByRole(ctx context.Context, role string) ([]user.User, error)
	}

	Service interface {
		Create(ctx context.Context, author user.User, nc NewContest) (Contest, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Contest, error)
		Get(ctx context.Context, id string) (Contest, error)
		Update(ctx context.Context, id string, uc UpdateContest) (Contest, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo     Repository
		students Students
		notifier notification.Notifier
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

var contestOrderings = map[string]string{
	"start_at":   "start_at",
	"end_at":     "end_at",
	"title":      "title",
	"created_at": "created_at",
}

func NewService(repo Repository, students Students, notifier notification.Notifier, validate *validator.Validate, logger core.Logger) Service {
	return &service{repo: repo, students: students, notifier: notifier, validate: validate, logger: logger}
}

func withStatus(c Contest) Contest {
	c.Status = c.StatusAt(core.Now())
	return c
}

func (svc *service) Create(ctx context.Context, author user.User, nc NewContest) (Contest, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Contest{}, err
	}
	now := core.Now()
	c, err := svc.repo.CreateContest(ctx, Contest{
		ID:          uuid.New().String(),
		Title:       nc.Title,
		Description: nc.Description,
		URL:         nc.URL,
		Platform:    nc.Platform,
		StartAt:     nc.StartAt,
		EndAt:       nc.EndAt,
		CreatedBy:   author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Contest{}, errors.Wrap(err, "creating contest")
	}
	c = withStatus(c)
	svc.notifyStudents(ctx, c)
	return c, nil
}

func (svc *service) notifyStudents(ctx context.Context, c Contest) {
	students, err := svc.students.ActiveByRole(ctx, user.RoleStudent)
	if err != nil {
		svc.logger.Error("listing students to notify", err, "contest_id", c.ID)
		return
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	_, err = svc.notifier.Notify(ctx, ids, notification.NewNotification{
		Kind:  notification.KindContestCreated,
		Title: "New contest: " + c.Title,
		Body:  "Starts " + c.StartAt.Format("2006-01-02 15:04 MST"),
		Link:  "/contests/" + c.ID,
	})
	if err != nil {
		svc.logger.Error("notifying students of contest", err, "contest_id", c.ID)
	}
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Contest, error) {
	filter.Clean()
	ordering = core.FilterOrderings(ordering, contestOrderings)
	contests, err := svc.repo.QueryContests(ctx, filter, core.Now(), ordering, &page)
	if err != nil {
		return nil, err
	}
	for i := range contests {
		contests[i] = withStatus(contests[i])
	}
	return contests, nil
}

func (svc *service) Get(ctx context.Context, id string) (Contest, error) {
	c, err := svc.repo.GetContest(ctx, id)
	if err != nil {
		return Contest{}, err
	}
	return withStatus(c), nil
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateContest) (Contest, error) {
	uc.Clean()
	if err := svc.validate.Struct(uc); err != nil {
		return Contest{}, err
	}
	c, err := svc.repo.GetContest(ctx, id)
	if err != nil {
		return Contest{}, err
	}
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.URL != nil {
		c.URL = *uc.URL
	}
	if uc.Platform != nil {
		c.Platform = *uc.Platform
	}
	if uc.StartAt != nil {
		c.StartAt = *uc.StartAt
	}
	if uc.EndAt != nil {
		c.EndAt = *uc.EndAt
	}
	if !c.EndAt.After(c.StartAt) {
		return Contest{}, core.NewValidationError(ErrEndBeforeStart, core.FieldError{Field: "end_at", Error: ErrEndBeforeStart.Error()})
	}
	c.UpdatedAt = core.Now()
	if c, err = svc.repo.UpdateContest(ctx, c); err != nil {
		return Contest{}, errors.Wrap(err, "updating contest")
	}
	return withStatus(c), nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	n, err := svc.repo.DeleteContest(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting contest")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
