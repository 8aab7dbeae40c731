package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
)

var (
	ErrNotFound        = core.NewNotFoundError("knowledge point")
	ErrProblemNotFound = core.NewNotFoundError("problem")
	ErrProblemExists   = errors.New("a problem with this source id already exists")
	ErrVideoFailed     = errors.New("failed videos cannot be attached")
)

type (
	Repository interface {
		CreatePoint(ctx context.Context, kp KnowledgePoint, exec ...core.DBExecutor) (KnowledgePoint, error)
		GetPoint(ctx context.Context, id string, exec ...core.DBExecutor) (KnowledgePoint, error)
		// QueryPoints matches QueryFilter.Search case-insensitively on title, group or category.
		QueryPoints(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]KnowledgePoint, error)
		UpdatePoint(ctx context.Context, kp KnowledgePoint, exec ...core.DBExecutor) (KnowledgePoint, error)
		DeletePoint(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
		GroupCategories(ctx context.Context, exec ...core.DBExecutor) ([]GroupCategory, error)

		CreateProblem(ctx context.Context, p Problem, exec ...core.DBExecutor) (Problem, error)
		GetProblem(ctx context.Context, id string, exec ...core.DBExecutor) (Problem, error)
		FindProblemBySource(ctx context.Context, source, sourceID string, exec ...core.DBExecutor) (Problem, error)
		// ProblemsBySource returns the problems of source whose source id is in sourceIDs.
		ProblemsBySource(ctx context.Context, source string, sourceIDs []string, exec ...core.DBExecutor) ([]Problem, error)
		QueryProblems(ctx context.Context, kpID string, exec ...core.DBExecutor) ([]Problem, error)
		UpdateProblem(ctx context.Context, p Problem, exec ...core.DBExecutor) (Problem, error)
		DeleteProblem(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)

		AttachVideo(ctx context.Context, kpID, videoID string, position int, exec ...core.DBExecutor) error
		DetachVideo(ctx context.Context, kpID, videoID string, exec ...core.DBExecutor) (int, error)
		PointVideos(ctx context.Context, kpID string, readyOnly bool, exec ...core.DBExecutor) ([]video.Video, error)
	}

	// VideoGetter is the part of the video repository knowledge points need.
	VideoGetter interface {
		GetVideo(ctx context.Context, id string, exec ...core.DBExecutor) (video.Video, error)
	}

	Service interface {
		CreatePoint(ctx context.Context, author user.User, np NewPoint) (KnowledgePoint, error)
		QueryPoints(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]KnowledgePoint, error)
		// GetPoint returns the detail with problems and videos; non staff only see ready videos.
		GetPoint(ctx context.Context, viewer user.User, id string) (KnowledgePoint, error)
		UpdatePoint(ctx context.Context, id string, up UpdatePoint) (KnowledgePoint, error)
		DeletePoint(ctx context.Context, id string) error
		Groups(ctx context.Context) ([]Group, error)

		AddProblem(ctx context.Context, kpID string, np NewProblem) (Problem, error)
		GetProblem(ctx context.Context, id string) (Problem, error)
		UpdateProblem(ctx context.Context, id string, up UpdateProblem) (Problem, error)
		DeleteProblem(ctx context.Context, id string) error
		FindProblemBySource(ctx context.Context, source, sourceID string) (Problem, error)
		ProblemsBySource(ctx context.Context, source string, sourceIDs []string) ([]Problem, error)
		// UpsertSourceProblem creates the problem under kpID, or updates and moves the
		// existing problem with the same source id. created reports which happened.
		UpsertSourceProblem(ctx context.Context, kpID string, np NewProblem) (p Problem, created bool, err error)

		AttachVideo(ctx context.Context, kpID string, av AttachVideo) error
		DetachVideo(ctx context.Context, kpID, videoID string) error
	}

	service struct {
		repo     Repository
		videos   VideoGetter
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

var pointOrderings = map[string]string{
	"title":      "title",
	"group":      "group_name",
	"category":   "category",
	"position":   "position",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func NewService(repo Repository, videos VideoGetter, validate *validator.Validate) Service {
	return &service{repo: repo, videos: videos, validate: validate}
}

// normalizeLuoguPID turns "p1001" or "1001" into "P1001".
func normalizeLuoguPID(pid string) string {
	pid = strings.ToUpper(strings.TrimSpace(pid))
	if pid == "" {
		return pid
	}
	if pid[0] >= '0' && pid[0] <= '9' {
		return "P" + pid
	}
	return pid
}

// NormalizeSourceID returns the canonical form of a source id.
func NormalizeSourceID(source, sourceID string) string {
	sourceID = strings.TrimSpace(sourceID)
	if source == SourceLuogu {
		return normalizeLuoguPID(sourceID)
	}
	return sourceID
}

func (svc *service) CreatePoint(ctx context.Context, author user.User, np NewPoint) (KnowledgePoint, error) {
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return KnowledgePoint{}, err
	}
	now := core.Now()
	kp, err := svc.repo.CreatePoint(ctx, KnowledgePoint{
		ID:        uuid.New().String(),
		Title:     np.Title,
		Group:     np.Group,
		Category:  np.Category,
		Content:   np.Content,
		Position:  np.Position,
		AuthorID:  author.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return KnowledgePoint{}, errors.Wrap(err, "creating knowledge point")
	}
	kp.ContentHTML = core.RenderMarkdown(kp.Content)
	return kp, nil
}

func (svc *service) QueryPoints(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]KnowledgePoint, error) {
	filter.Clean()
	ordering = core.FilterOrderings(ordering, pointOrderings)
	return svc.repo.QueryPoints(ctx, filter, ordering, &page)
}

func (svc *service) GetPoint(ctx context.Context, viewer user.User, id string) (KnowledgePoint, error) {
	kp, err := svc.repo.GetPoint(ctx, id)
	if err != nil {
		return KnowledgePoint{}, err
	}
	if kp.Problems, err = svc.repo.QueryProblems(ctx, kp.ID); err != nil {
		return KnowledgePoint{}, errors.Wrap(err, "querying problems")
	}
	if kp.Videos, err = svc.repo.PointVideos(ctx, kp.ID, !viewer.IsStaff()); err != nil {
		return KnowledgePoint{}, errors.Wrap(err, "querying videos")
	}
	if kp.Problems == nil {
		kp.Problems = []Problem{}
	}
	if kp.Videos == nil {
		kp.Videos = []video.Video{}
	}
	kp.ContentHTML = core.RenderMarkdown(kp.Content)
	return kp, nil
}

func (svc *service) UpdatePoint(ctx context.Context, id string, up UpdatePoint) (KnowledgePoint, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return KnowledgePoint{}, err
	}
	kp, err := svc.repo.GetPoint(ctx, id)
	if err != nil {
		return KnowledgePoint{}, err
	}
	if up.Title != nil {
		kp.Title = *up.Title
	}
	if up.Group != nil {
		kp.Group = *up.Group
	}
	if up.Category != nil {
		kp.Category = *up.Category
	}
	if up.Content != nil {
		kp.Content = *up.Content
	}
	if up.Position != nil {
		kp.Position = *up.Position
	}
	kp.UpdatedAt = core.Now()
	if kp, err = svc.repo.UpdatePoint(ctx, kp); err != nil {
		return KnowledgePoint{}, errors.Wrap(err, "updating knowledge point")
	}
	kp.ContentHTML = core.RenderMarkdown(kp.Content)
	return kp, nil
}

func (svc *service) DeletePoint(ctx context.Context, id string) error {
	n, err := svc.repo.DeletePoint(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting knowledge point")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (svc *service) Groups(ctx context.Context) ([]Group, error) {
	pairs, err := svc.repo.GroupCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	byName := make(map[string]*Group)
	groups := make([]*Group, 0)
	for _, pair := range pairs {
		g, ok := byName[pair.Group]
		if !ok {
			g = &Group{Name: pair.Group, Categories: []string{}}
			byName[pair.Group] = g
			groups = append(groups, g)
		}
		if pair.Category != "" {
			g.Categories = append(g.Categories, pair.Category)
		}
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Categories)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// checkSourceUnique fails when another problem holds the (source, source id) pair.
func (svc *service) checkSourceUnique(ctx context.Context, source, sourceID, excludeID string) error {
	if source == SourceCustom {
		return nil
	}
	existing, err := svc.repo.FindProblemBySource(ctx, source, sourceID)
	if err != nil {
		if errors.Cause(err) == ErrProblemNotFound {
			return nil
		}
		return errors.Wrap(err, "finding problem by source")
	}
	if existing.ID != excludeID {
		return core.NewValidationError(ErrProblemExists, core.FieldError{Field: "source_id", Error: ErrProblemExists.Error()})
	}
	return nil
}

func (svc *service) AddProblem(ctx context.Context, kpID string, np NewProblem) (Problem, error) {
	np.Clean()
	if err := svc.validate.Struct(np); err != nil {
		return Problem{}, err
	}
	if _, err := svc.repo.GetPoint(ctx, kpID); err != nil {
		return Problem{}, err
	}
	if err := svc.checkSourceUnique(ctx, np.Source, np.SourceID, ""); err != nil {
		return Problem{}, err
	}

	now := core.Now()
	p, err := svc.repo.CreateProblem(ctx, Problem{
		ID:               uuid.New().String(),
		KnowledgePointID: kpID,
		Title:            np.Title,
		Source:           np.Source,
		SourceID:         np.SourceID,
		URL:              np.URL,
		Difficulty:       np.Difficulty,
		Position:         np.Position,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	return p, errors.Wrap(err, "creating problem")
}

func (svc *service) GetProblem(ctx context.Context, id string) (Problem, error) {
	return svc.repo.GetProblem(ctx, id)
}

func (svc *service) UpdateProblem(ctx context.Context, id string, up UpdateProblem) (Problem, error) {
	up.Clean()
	if err := svc.validate.Struct(up); err != nil {
		return Problem{}, err
	}
	p, err := svc.repo.GetProblem(ctx, id)
	if err != nil {
		return Problem{}, err
	}
	if up.KnowledgePointID != nil && *up.KnowledgePointID != p.KnowledgePointID {
		if _, err := svc.repo.GetPoint(ctx, *up.KnowledgePointID); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return Problem{}, core.NewValidationError(err, core.FieldError{Field: "knowledge_point_id", Error: err.Error()})
			}
			return Problem{}, err
		}
		p.KnowledgePointID = *up.KnowledgePointID
	}
	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.URL != nil {
		p.URL = *up.URL
	}
	if up.Difficulty != nil {
		p.Difficulty = *up.Difficulty
	}
	if up.Position != nil {
		p.Position = *up.Position
	}
	p.UpdatedAt = core.Now()
	p, err = svc.repo.UpdateProblem(ctx, p)
	return p, errors.Wrap(err, "updating problem")
}

func (svc *service) DeleteProblem(ctx context.Context, id string) error {
	n, err := svc.repo.DeleteProblem(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting problem")
	}
	if n == 0 {
		return ErrProblemNotFound
	}
	return nil
}

func (svc *service) FindProblemBySource(ctx context.Context, source, sourceID string) (Problem, error) {
	source = core.CleanString(source, true)
	return svc.repo.FindProblemBySource(ctx, source, NormalizeSourceID(source, sourceID))
}

func (svc *service) ProblemsBySource(ctx context.Context, source string, sourceIDs []string) ([]Problem, error) {
	source = core.CleanString(source, true)
	ids := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if id = NormalizeSourceID(source, id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []Problem{}, nil
	}
	return svc.repo.ProblemsBySource(ctx, source, ids)
}

func (svc *service) UpsertSourceProblem(ctx context.Context, kpID string, np NewProblem) (Problem, bool, error) {
	np.Clean()
	if np.Source == SourceCustom {
		p, err := svc.AddProblem(ctx, kpID, np)
		return p, err == nil, err
	}
	if err := svc.validate.Struct(np); err != nil {
		return Problem{}, false, err
	}

	existing, err := svc.repo.FindProblemBySource(ctx, np.Source, np.SourceID)
	if err != nil {
		if errors.Cause(err) == ErrProblemNotFound {
			p, err := svc.AddProblem(ctx, kpID, np)
			return p, err == nil, err
		}
		return Problem{}, false, errors.Wrap(err, "finding problem by source")
	}
	if _, err := svc.repo.GetPoint(ctx, kpID); err != nil {
		return Problem{}, false, err
	}

	existing.KnowledgePointID = kpID
	existing.Title = np.Title
	if np.URL != "" {
		existing.URL = np.URL
	}
	if np.Difficulty != "" {
		existing.Difficulty = np.Difficulty
	}
	existing.UpdatedAt = core.Now()
	p, err := svc.repo.UpdateProblem(ctx, existing)
	return p, false, errors.Wrap(err, "updating problem")
}

func (svc *service) AttachVideo(ctx context.Context, kpID string, av AttachVideo) error {
	av.VideoID = core.CleanString(av.VideoID)
	if err := svc.validate.Struct(av); err != nil {
		return err
	}
	if _, err := svc.repo.GetPoint(ctx, kpID); err != nil {
		return err
	}
	v, err := svc.videos.GetVideo(ctx, av.VideoID)
	if err != nil {
		if errors.Cause(err) == video.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "video_id", Error: err.Error()})
		}
		return errors.Wrap(err, "getting video")
	}
	if v.Status == video.StatusFailed {
		return core.NewValidationError(ErrVideoFailed, core.FieldError{Field: "video_id", Error: ErrVideoFailed.Error()})
	}
	return errors.Wrap(svc.repo.AttachVideo(ctx, kpID, v.ID, av.Position), "attaching video")
}

func (svc *service) DetachVideo(ctx context.Context, kpID, videoID string) error {
	n, err := svc.repo.DetachVideo(ctx, kpID, videoID)
	if err != nil {
		return errors.Wrap(err, "detaching video")
	}
	if n == 0 {
		return video.ErrNotFound
	}
	return nil
}
