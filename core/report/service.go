package report

import (
	"context"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNotFound    = core.NewNotFoundError("report")
	ErrNotAStudent = errors.New("reports can only be written for students")
	ErrAuthorsOnly = core.NewPermissionError("only the author or an admin can change this report")
	ErrStaffOnly   = core.NewPermissionError("only teachers and admins can write reports")
)

type (
	Repository interface {
		CreateReport(ctx context.Context, r Report, exec ...core.DBExecutor) (Report, error)
		GetReport(ctx context.Context, id string, exec ...core.DBExecutor) (Report, error)
		QueryReports(ctx context.Context, filter QueryFilter, page *core.Pagination, exec ...core.DBExecutor) ([]Report, error)
		UpdateReport(ctx context.Context, r Report, exec ...core.DBExecutor) (Report, error)
		DeleteReport(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
	}

	Stats interface {
		Totals(ctx context.Context, studentID string) (progress.Totals, error)
	}

	// Family is the part of the binding service reports need.
	Family interface {
		ParentIDs(ctx context.Context, studentID string) ([]string, error)
		Children(ctx context.Context, parent user.User) ([]user.User, error)
		CanView(ctx context.Context, viewer user.User, studentID string) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, author user.User, nr NewReport) (Report, error)
		Query(ctx context.Context, viewer user.User, filter QueryFilter, page core.Pagination) ([]Report, error)
		Get(ctx context.Context, viewer user.User, id string) (Report, error)
		Update(ctx context.Context, actor user.User, id string, ur UpdateReport) (Report, error)
		Delete(ctx context.Context, actor user.User, id string) error
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		stats    Stats
		family   Family
		notifier notification.Notifier
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	usrSvc user.Service,
	stats Stats,
	family Family,
	notifier notification.Notifier,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		usrSvc:   usrSvc,
		stats:    stats,
		family:   family,
		notifier: notifier,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
	}
}

func withHTML(r Report) Report {
	r.ContentHTML = core.RenderMarkdown(r.Content)
	return r
}

func (svc *service) Create(ctx context.Context, author user.User, nr NewReport) (Report, error) {
	if !author.IsStaff() {
		return Report{}, ErrStaffOnly
	}
	nr.Clean()
	if err := svc.validate.Struct(nr); err != nil {
		return Report{}, err
	}
	student, err := svc.usrSvc.GetByID(ctx, nr.StudentID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Report{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return Report{}, errors.Wrap(err, "getting student")
	}
	if !student.IsStudent() {
		return Report{}, core.NewValidationError(ErrNotAStudent, core.FieldError{Field: "student_id", Error: ErrNotAStudent.Error()})
	}
	totals, err := svc.stats.Totals(ctx, student.ID)
	if err != nil {
		return Report{}, errors.Wrap(err, "computing progress totals")
	}

	now := core.Now()
	r, err := svc.repo.CreateReport(ctx, Report{
		ID:             uuid.New().String(),
		StudentID:      student.ID,
		AuthorID:       author.ID,
		Title:          nr.Title,
		Period:         nr.Period,
		Content:        nr.Content,
		SolvedCount:    totals.Solved,
		AttemptedCount: totals.Attempted,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "creating report")
	}
	r.StudentName = student.EmailAddress().Name

	svc.publish(ctx, r, student)
	return withHTML(r), nil
}

// publish notifies the student and the bound parents, and emails the parents.
func (svc *service) publish(ctx context.Context, r Report, student user.User) {
	parentIDs, err := svc.family.ParentIDs(ctx, student.ID)
	if err != nil {
		svc.logger.Error("listing parents", err, "report_id", r.ID)
	}
	nn := notification.NewNotification{
		Kind:  notification.KindReportPublished,
		Title: "New report: " + r.Title,
		Body:  r.Period,
		Link:  "/reports/" + r.ID,
	}
	if _, err := svc.notifier.Notify(ctx, append([]string{student.ID}, parentIDs...), nn); err != nil {
		svc.logger.Error("notifying report", err, "report_id", r.ID)
	}
	if len(parentIDs) == 0 {
		return
	}

	parents, err := svc.usrSvc.GetManyByID(ctx, parentIDs)
	if err != nil {
		svc.logger.Error("getting parents", err, "report_id", r.ID)
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(parents))
	for _, parent := range parents {
		if parent.Email == "" || !parent.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{parent.EmailAddress()},
			Subject:      "New report for " + r.StudentName,
			TemplateName: "report_published",
			TemplateData: map[string]interface{}{
				"ParentName":  parent.EmailAddress().Name,
				"Title":       r.Title,
				"Period":      r.Period,
				"StudentName": r.StudentName,
				"Solved":      r.SolvedCount,
				"Attempted":   r.AttemptedCount,
				"ReportID":    r.ID,
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func (svc *service) Query(ctx context.Context, viewer user.User, filter QueryFilter, page core.Pagination) ([]Report, error) {
	filter.StudentID = core.CleanString(filter.StudentID)
	switch {
	case viewer.IsStaff():
		filter.StudentIDs = nil
	case viewer.IsParent():
		children, err := svc.family.Children(ctx, viewer)
		if err != nil {
			return nil, errors.Wrap(err, "listing children")
		}
		filter.StudentIDs = make([]string, 0, len(children)+1)
		for _, c := range children {
			filter.StudentIDs = append(filter.StudentIDs, c.ID)
		}
		if viewer.IsStudent() {
			filter.StudentIDs = append(filter.StudentIDs, viewer.ID)
		}
	default:
		filter.StudentIDs = []string{viewer.ID}
	}
	if filter.StudentIDs != nil && len(filter.StudentIDs) == 0 {
		return []Report{}, nil
	}
	return svc.repo.QueryReports(ctx, filter, &page)
}

func (svc *service) Get(ctx context.Context, viewer user.User, id string) (Report, error) {
	r, err := svc.repo.GetReport(ctx, id)
	if err != nil {
		return Report{}, err
	}
	ok, err := svc.family.CanView(ctx, viewer, r.StudentID)
	if err != nil {
		return Report{}, errors.Wrap(err, "checking visibility")
	}
	if !ok {
		return Report{}, ErrNotFound
	}
	return withHTML(r), nil
}

func canManage(actor user.User, r Report) bool {
	return actor.IsAdmin() || (actor.ID != "" && actor.ID == r.AuthorID)
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ur UpdateReport) (Report, error) {
	ur.Clean()
	if err := svc.validate.Struct(ur); err != nil {
		return Report{}, err
	}
	r, err := svc.repo.GetReport(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if !canManage(actor, r) {
		return Report{}, ErrAuthorsOnly
	}
	if ur.Title != nil {
		r.Title = *ur.Title
	}
	if ur.Period != nil {
		r.Period = *ur.Period
	}
	if ur.Content != nil {
		r.Content = *ur.Content
	}
	if ur.RefreshStats {
		totals, err := svc.stats.Totals(ctx, r.StudentID)
		if err != nil {
			return Report{}, errors.Wrap(err, "computing progress totals")
		}
		r.SolvedCount, r.AttemptedCount = totals.Solved, totals.Attempted
	}
	r.UpdatedAt = core.Now()
	if r, err = svc.repo.UpdateReport(ctx, r); err != nil {
		return Report{}, errors.Wrap(err, "updating report")
	}
	return withHTML(r), nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	r, err := svc.repo.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, r) {
		return ErrAuthorsOnly
	}
	_, err = svc.repo.DeleteReport(ctx, r.ID)
	return errors.Wrap(err, "deleting report")
}
