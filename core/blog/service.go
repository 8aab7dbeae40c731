package blog

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
	ErrNotFound          = core.NewNotFoundError("post")
	ErrInvalidTransition = errors.New("this action is not allowed in the post's current status")
	// ErrStatusChanged is returned by Repository.UpdatePost when the stored status no longer matches.
	ErrStatusChanged    = errors.New("post status changed")
	ErrGuestsCannotPost = core.NewPermissionError("guests cannot write posts")
	ErrModeratorsOnly   = core.NewPermissionError("only teachers and admins can moderate posts")
)

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post, exec ...core.DBExecutor) (Post, error)
		GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (Post, error)
		// QueryPosts matches QueryFilter.Search case-insensitively on title or summary.
		QueryPosts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Post, error)
		// UpdatePost saves p if the stored status is still expectStatus; ErrStatusChanged otherwise.
		UpdatePost(ctx context.Context, p Post, expectStatus string, exec ...core.DBExecutor) (Post, error)
		DeletePost(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, author user.User, np NewPost) (Post, error)
		// Query lists published posts, or the viewer's own posts in any status when filter.Mine.
		Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Post, error)
		Moderation(ctx context.Context, moderator user.User, page core.Pagination) ([]Post, error)
		Get(ctx context.Context, viewer user.User, id string) (Post, error)
		Update(ctx context.Context, actor user.User, id string, up UpdatePost) (Post, error)
		Submit(ctx context.Context, author user.User, id string) (Post, error)
		Approve(ctx context.Context, moderator user.User, id string) (Post, error)
		Reject(ctx context.Context, moderator user.User, id string, rp RejectPost) (Post, error)
		Unpublish(ctx context.Context, admin user.User, id string) (Post, error)
		Delete(ctx context.Context, actor user.User, id string) error
	}

	service struct {
		repo     Repository
		notifier notification.Notifier
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

var postOrderings = map[string]string{
	"title":        "title",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"published_at": "published_at",
}

func NewService(repo Repository, notifier notification.Notifier, validate *validator.Validate, logger core.Logger) Service {
	return &service{repo: repo, notifier: notifier, validate: validate, logger: logger}
}

func withHTML(p Post) Post {
	p.ContentHTML = core.RenderMarkdown(p.Content)
	return p
}

func (svc *service) Create(ctx context.Context, author user.User, np NewPost) (Post, error) {
	if author.IsGuest() {
		return Post{}, ErrGuestsCannotPost
	}
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return Post{}, err
	}
	now := core.Now()
	p, err := svc.repo.CreatePost(ctx, Post{
		ID:        uuid.New().String(),
		AuthorID:  author.ID,
		Title:     np.Title,
		Summary:   np.Summary,
		Content:   np.Content,
		Tags:      np.Tags,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Post{}, errors.Wrap(err, "creating post")
	}
	return withHTML(p), nil
}

func (svc *service) Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Post, error) {
	filter.Clean()
	if filter.Mine && viewer.ID != "" {
		filter.AuthorID = viewer.ID
	} else {
		filter.Mine = false
		filter.Status = StatusPublished
	}
	ordering = core.FilterOrderings(ordering, postOrderings)
	if len(ordering) == 0 && !filter.Mine {
		ordering = []core.DBOrdering{{Field: "published_at"}}
	}
	return svc.repo.QueryPosts(ctx, filter, ordering, &page)
}

func (svc *service) Moderation(ctx context.Context, moderator user.User, page core.Pagination) ([]Post, error) {
	if !moderator.IsStaff() {
		return nil, ErrModeratorsOnly
	}
	ordering := []core.DBOrdering{{Field: "updated_at", Ascending: true}}
	return svc.repo.QueryPosts(ctx, QueryFilter{Status: StatusPending}, ordering, &page)
}

func (svc *service) Get(ctx context.Context, viewer user.User, id string) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.IsPublished() && p.AuthorID != viewer.ID && !viewer.IsStaff() {
		return Post{}, ErrNotFound
	}
	return withHTML(p), nil
}

// save persists p, mapping a concurrent status change to ErrInvalidTransition.
func (svc *service) save(ctx context.Context, p Post, expectStatus string) (Post, error) {
	p.UpdatedAt = core.Now()
	saved, err := svc.repo.UpdatePost(ctx, p, expectStatus)
	if err != nil {
		if errors.Cause(err) == ErrStatusChanged {
			return Post{}, core.NewValidationError(ErrInvalidTransition)
		}
		return Post{}, errors.Wrap(err, "updating post")
	}
	return withHTML(saved), nil
}

// transition moves p to `to`, or fails with a 400 when the workflow forbids it.
func (svc *service) transition(ctx context.Context, p Post, to string) (Post, error) {
	if !CanTransition(p.Status, to) {
		return Post{}, core.NewValidationError(ErrInvalidTransition)
	}
	from := p.Status
	p.Status = to
	return svc.save(ctx, p, from)
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, up UpdatePost) (Post, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return Post{}, err
	}
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	isAuthor := p.AuthorID == actor.ID
	if !isAuthor && !actor.IsAdmin() {
		if p.IsPublished() || actor.IsStaff() {
			return Post{}, core.ErrPermissionDenied
		}
		return Post{}, ErrNotFound
	}

	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.Summary != nil {
		p.Summary = *up.Summary
	}
	if up.Content != nil {
		p.Content = *up.Content
	}
	if up.Tags != nil {
		p.Tags = up.Tags
	}

	from := p.Status
	if isAuthor && (p.Status == StatusPending || p.Status == StatusPublished) {
		// author edits go back through moderation
		p.Status = StatusDraft
		p.PublishedAt = nil
	}
	return svc.save(ctx, p, from)
}

func (svc *service) Submit(ctx context.Context, author user.User, id string) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != author.ID {
		return Post{}, ErrNotFound
	}
	p.RejectReason = ""
	return svc.transition(ctx, p, StatusPending)
}

func (svc *service) moderate(ctx context.Context, moderator user.User, id string, fn func(p *Post) string) (Post, error) {
	if !moderator.IsStaff() {
		return Post{}, ErrModeratorsOnly
	}
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	to := fn(&p)
	return svc.transition(ctx, p, to)
}

func (svc *service) Approve(ctx context.Context, moderator user.User, id string) (Post, error) {
	p, err := svc.moderate(ctx, moderator, id, func(p *Post) string {
		now := core.Now()
		p.PublishedAt = &now
		p.RejectReason = ""
		return StatusPublished
	})
	if err != nil {
		return Post{}, err
	}
	svc.notifyAuthor(ctx, p, notification.NewNotification{
		Kind:  notification.KindPostApproved,
		Title: "Your post \"" + p.Title + "\" was published",
		Link:  "/posts/" + p.ID,
	})
	return p, nil
}

func (svc *service) Reject(ctx context.Context, moderator user.User, id string, rp RejectPost) (Post, error) {
	rp.Reason = core.CleanString(rp.Reason)
	if err := svc.validate.Struct(rp); err != nil {
		return Post{}, err
	}
	p, err := svc.moderate(ctx, moderator, id, func(p *Post) string {
		p.RejectReason = rp.Reason
		return StatusRejected
	})
	if err != nil {
		return Post{}, err
	}
	svc.notifyAuthor(ctx, p, notification.NewNotification{
		Kind:  notification.KindPostRejected,
		Title: "Your post \"" + p.Title + "\" was rejected",
		Body:  p.RejectReason,
		Link:  "/posts/" + p.ID,
	})
	return p, nil
}

func (svc *service) Unpublish(ctx context.Context, admin user.User, id string) (Post, error) {
	if !admin.IsAdmin() {
		return Post{}, core.ErrPermissionDenied
	}
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.IsPublished() {
		return Post{}, core.NewValidationError(ErrInvalidTransition)
	}
	p.PublishedAt = nil
	return svc.transition(ctx, p, StatusDraft)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	if _, err := svc.repo.DeletePost(ctx, p.ID); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return nil
}

func (svc *service) notifyAuthor(ctx context.Context, p Post, nn notification.NewNotification) {
	if _, err := svc.notifier.Notify(ctx, []string{p.AuthorID}, nn); err != nil {
		svc.logger.Error("notifying post author", err, "post_id", p.ID, "kind", nn.Kind)
	}
}
