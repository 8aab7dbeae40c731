package family

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNotFound          = core.NewNotFoundError("binding request")
	ErrInvalidTransition = errors.New("this request cannot be changed anymore")
	ErrNotAStudent       = errors.New("this user is not a student")
	ErrAlreadyRequested  = errors.New("a pending or accepted binding with this student already exists")
	ErrParentsOnly       = core.NewPermissionError("only parents can request a binding")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, req BindingRequest, exec ...core.DBExecutor) (BindingRequest, error)
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (BindingRequest, error)
		QueryRequests(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]BindingRequest, error)
		// FindOpenRequest returns the pending or accepted request between the pair, if any.
		FindOpenRequest(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (BindingRequest, error)
		// UpdateStatus moves a request from one of `from` to `to`; ErrInvalidTransition when it was not in `from`.
		UpdateStatus(ctx context.Context, id string, from []string, to string, exec ...core.DBExecutor) (BindingRequest, error)
	}

	Service interface {
		Request(ctx context.Context, parent user.User, nr NewRequest) (BindingRequest, error)
		Accept(ctx context.Context, student user.User, id string) (BindingRequest, error)
		Reject(ctx context.Context, student user.User, id string) (BindingRequest, error)
		Cancel(ctx context.Context, parent user.User, id string) (BindingRequest, error)
		Unbind(ctx context.Context, actor user.User, id string) (BindingRequest, error)
		ListMine(ctx context.Context, usr user.User, status string) ([]BindingRequest, error)
		Children(ctx context.Context, parent user.User) ([]user.User, error)
		ParentIDs(ctx context.Context, studentID string) ([]string, error)
		IsBound(ctx context.Context, parentID, studentID string) (bool, error)
		// CanView reports whether viewer may see the progress data of the student.
		CanView(ctx context.Context, viewer user.User, studentID string) (bool, error)
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		notifier notification.Notifier
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, notifier notification.Notifier, validate *validator.Validate, logger core.Logger) Service {
	return &service{repo: repo, usrSvc: usrSvc, notifier: notifier, validate: validate, logger: logger}
}

func (svc *service) notify(ctx context.Context, userID string, nn notification.NewNotification) {
	if _, err := svc.notifier.Notify(ctx, []string{userID}, nn); err != nil {
		svc.logger.Error("notifying binding change", err, "user_id", userID, "kind", nn.Kind)
	}
}

func (svc *service) Request(ctx context.Context, parent user.User, nr NewRequest) (BindingRequest, error) {
	if !parent.IsParent() {
		return BindingRequest{}, ErrParentsOnly
	}
	nr.Clean()
	if err := svc.validate.Struct(nr); err != nil {
		return BindingRequest{}, err
	}

	student, err := svc.usrSvc.GetByUsernameOrEmail(ctx, nr.Student)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return BindingRequest{}, core.NewValidationError(err, core.FieldError{Field: "student", Error: "student not found"})
		}
		return BindingRequest{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() || !student.IsActive || student.ID == parent.ID {
		return BindingRequest{}, core.NewValidationError(ErrNotAStudent, core.FieldError{Field: "student", Error: ErrNotAStudent.Error()})
	}

	if _, err := svc.repo.FindOpenRequest(ctx, parent.ID, student.ID); err == nil {
		return BindingRequest{}, errAlreadyRequested()
	} else if errors.Cause(err) != ErrNotFound {
		return BindingRequest{}, errors.Wrap(err, "finding open request")
	}

	req, err := svc.repo.CreateRequest(ctx, BindingRequest{
		ID:        uuid.New().String(),
		ParentID:  parent.ID,
		StudentID: student.ID,
		Status:    StatusPending,
		Message:   nr.Message,
		CreatedAt: core.Now(),
	})
	if err != nil {
		// a concurrent request won the race on the open-pair index
		if errors.Cause(err) == ErrAlreadyRequested {
			return BindingRequest{}, errAlreadyRequested()
		}
		return BindingRequest{}, errors.Wrap(err, "creating binding request")
	}

	svc.notify(ctx, student.ID, notification.NewNotification{
		Kind:  notification.KindBindingRequested,
		Title: parent.EmailAddress().Name + " wants to follow your progress",
		Body:  req.Message,
		Link:  "/bindings",
	})
	return req, nil
}

func errAlreadyRequested() error {
	return core.NewValidationError(ErrAlreadyRequested, core.FieldError{Field: "student", Error: ErrAlreadyRequested.Error()})
}

// respond moves a pending request addressed to the student.
func (svc *service) respond(ctx context.Context, student user.User, id, to, kind, verb string) (BindingRequest, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return BindingRequest{}, err
	}
	if req.StudentID != student.ID {
		return BindingRequest{}, ErrNotFound
	}
	if req, err = svc.repo.UpdateStatus(ctx, id, []string{StatusPending}, to); err != nil {
		return BindingRequest{}, svc.transitionErr(err)
	}

	svc.notify(ctx, req.ParentID, notification.NewNotification{
		Kind:  kind,
		Title: student.EmailAddress().Name + " " + verb + " your binding request",
		Link:  "/bindings",
	})
	return req, nil
}

func (svc *service) Accept(ctx context.Context, student user.User, id string) (BindingRequest, error) {
	return svc.respond(ctx, student, id, StatusAccepted, notification.KindBindingAccepted, "accepted")
}

func (svc *service) Reject(ctx context.Context, student user.User, id string) (BindingRequest, error) {
	return svc.respond(ctx, student, id, StatusRejected, notification.KindBindingRejected, "rejected")
}

func (svc *service) Cancel(ctx context.Context, parent user.User, id string) (BindingRequest, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return BindingRequest{}, err
	}
	if req.ParentID != parent.ID {
		return BindingRequest{}, ErrNotFound
	}
	req, err = svc.repo.UpdateStatus(ctx, id, []string{StatusPending}, StatusCancelled)
	return req, svc.transitionErr(err)
}

func (svc *service) Unbind(ctx context.Context, actor user.User, id string) (BindingRequest, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return BindingRequest{}, err
	}
	var other string
	switch actor.ID {
	case req.ParentID:
		other = req.StudentID
	case req.StudentID:
		other = req.ParentID
	default:
		return BindingRequest{}, ErrNotFound
	}
	if req, err = svc.repo.UpdateStatus(ctx, id, []string{StatusAccepted}, StatusCancelled); err != nil {
		return BindingRequest{}, svc.transitionErr(err)
	}

	svc.notify(ctx, other, notification.NewNotification{
		Kind:  notification.KindBindingCancelled,
		Title: actor.EmailAddress().Name + " removed your binding",
		Link:  "/bindings",
	})
	return req, nil
}

func (svc *service) transitionErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == ErrInvalidTransition {
		return core.NewValidationError(ErrInvalidTransition)
	}
	return errors.Wrap(err, "updating binding request")
}

func (svc *service) ListMine(ctx context.Context, usr user.User, status string) ([]BindingRequest, error) {
	return svc.repo.QueryRequests(ctx, QueryFilter{UserID: usr.ID, Status: core.CleanString(status, true)})
}

func (svc *service) Children(ctx context.Context, parent user.User) ([]user.User, error) {
	reqs, err := svc.repo.QueryRequests(ctx, QueryFilter{ParentID: parent.ID, Status: StatusAccepted})
	if err != nil {
		return nil, errors.Wrap(err, "querying accepted bindings")
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.StudentID)
	}
	return svc.usrSvc.GetManyByID(ctx, ids)
}

func (svc *service) ParentIDs(ctx context.Context, studentID string) ([]string, error) {
	reqs, err := svc.repo.QueryRequests(ctx, QueryFilter{StudentID: studentID, Status: StatusAccepted})
	if err != nil {
		return nil, errors.Wrap(err, "querying accepted bindings")
	}
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ParentID)
	}
	return ids, nil
}

func (svc *service) IsBound(ctx context.Context, parentID, studentID string) (bool, error) {
	req, err := svc.repo.FindOpenRequest(ctx, parentID, studentID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding binding")
	}
	return req.Status == StatusAccepted, nil
}

func (svc *service) CanView(ctx context.Context, viewer user.User, studentID string) (bool, error) {
	switch {
	case viewer.ID == studentID, viewer.IsStaff():
		return true, nil
	case viewer.IsParent():
		return svc.IsBound(ctx, viewer.ID, studentID)
	default:
		return false, nil
	}
}
