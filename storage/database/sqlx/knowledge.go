package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/video"
)

var pointColumns = []string{
	"id", "title", "group_name", "category", "content", "position", "author_id", "created_at", "updated_at",
}

var problemColumns = []string{
	"id", "knowledge_point_id", "title", "source", "source_id", "url", "difficulty", "position", "created_at", "updated_at",
}

type pointRow struct {
	ID        string      `db:"id"`
	Title     string      `db:"title"`
	Group     string      `db:"group_name"`
	Category  string      `db:"category"`
	Content   string      `db:"content"`
	Position  int         `db:"position"`
	AuthorID  null.String `db:"author_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (row pointRow) toPoint() knowledge.KnowledgePoint {
	return knowledge.KnowledgePoint{
		ID:        row.ID,
		Title:     row.Title,
		Group:     row.Group,
		Category:  row.Category,
		Content:   row.Content,
		Position:  row.Position,
		AuthorID:  row.AuthorID.String,
		CreatedAt: utc(row.CreatedAt),
		UpdatedAt: utc(row.UpdatedAt),
	}
}

type problemRow struct {
	ID               string    `db:"id"`
	KnowledgePointID string    `db:"knowledge_point_id"`
	Title            string    `db:"title"`
	Source           string    `db:"source"`
	SourceID         string    `db:"source_id"`
	URL              string    `db:"url"`
	Difficulty       string    `db:"difficulty"`
	Position         int       `db:"position"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row problemRow) toProblem() knowledge.Problem {
	return knowledge.Problem{
		ID:               row.ID,
		KnowledgePointID: row.KnowledgePointID,
		Title:            row.Title,
		Source:           row.Source,
		SourceID:         row.SourceID,
		URL:              row.URL,
		Difficulty:       row.Difficulty,
		Position:         row.Position,
		CreatedAt:        utc(row.CreatedAt),
		UpdatedAt:        utc(row.UpdatedAt),
	}
}

func toProblems(rows []problemRow) []knowledge.Problem {
	problems := make([]knowledge.Problem, 0, len(rows))
	for _, row := range rows {
		problems = append(problems, row.toProblem())
	}
	return problems
}

type knowledgeRepository struct {
	repo
}

var _ knowledge.Repository = (*knowledgeRepository)(nil) // interface compliance check

func NewKnowledgeRepository(db *sqlx.DB) *knowledgeRepository {
	return &knowledgeRepository{repo: newRepo(db)}
}

func (repo knowledgeRepository) CreatePoint(ctx context.Context, kp knowledge.KnowledgePoint, exec ...core.DBExecutor) (knowledge.KnowledgePoint, error) {
	q := repo.sb.Insert("knowledge_points").Columns(pointColumns...).Values(
		kp.ID, kp.Title, kp.Group, kp.Category, kp.Content, kp.Position, nullString(kp.AuthorID),
		kp.CreatedAt.UTC(), kp.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return knowledge.KnowledgePoint{}, errors.Wrap(err, "inserting knowledge point")
	}
	return repo.GetPoint(ctx, kp.ID, exec...)
}

func (repo knowledgeRepository) GetPoint(ctx context.Context, id string, exec ...core.DBExecutor) (knowledge.KnowledgePoint, error) {
	var row pointRow
	if err := repo.get(ctx, exec, &row, repo.sb.Select(pointColumns...).From("knowledge_points").Where(sq.Eq{"id": id})); err != nil {
		return knowledge.KnowledgePoint{}, trapNoRowsErr(err, knowledge.ErrNotFound, "getting knowledge point")
	}
	return row.toPoint(), nil
}

func (repo knowledgeRepository) QueryPoints(ctx context.Context, filter knowledge.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]knowledge.KnowledgePoint, error) {
	q := repo.sb.Select(pointColumns...).From("knowledge_points")
	if filter.Search != "" {
		q = q.Where(ilike(filter.Search, "title", "group_name", "category"))
	}
	if filter.Group != "" {
		q = q.Where(sq.Eq{"group_name": filter.Group})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	q = paginate(orderBy(q, ordering, "group_name", "category", "position", "title"), page)

	var rows []pointRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying knowledge points")
	}
	points := make([]knowledge.KnowledgePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, row.toPoint())
	}
	return points, nil
}

func (repo knowledgeRepository) UpdatePoint(ctx context.Context, kp knowledge.KnowledgePoint, exec ...core.DBExecutor) (knowledge.KnowledgePoint, error) {
	q := repo.sb.Update("knowledge_points").SetMap(map[string]interface{}{
		"title":      kp.Title,
		"group_name": kp.Group,
		"category":   kp.Category,
		"content":    kp.Content,
		"position":   kp.Position,
		"updated_at": kp.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": kp.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return knowledge.KnowledgePoint{}, errors.Wrap(err, "updating knowledge point")
	}
	if cnt == 0 {
		return knowledge.KnowledgePoint{}, knowledge.ErrNotFound
	}
	return repo.GetPoint(ctx, kp.ID, exec...)
}

func (repo knowledgeRepository) DeletePoint(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("knowledge_points").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting knowledge point")
}

func (repo knowledgeRepository) GroupCategories(ctx context.Context, exec ...core.DBExecutor) ([]knowledge.GroupCategory, error) {
	q := repo.sb.Select("group_name", "category").Distinct().From("knowledge_points").OrderBy("group_name", "category")

	var pairs []knowledge.GroupCategory
	if err := repo.selectRows(ctx, exec, &pairs, q); err != nil {
		return nil, errors.Wrap(err, "selecting knowledge point groups")
	}
	return pairs, nil
}

func (repo knowledgeRepository) CreateProblem(ctx context.Context, p knowledge.Problem, exec ...core.DBExecutor) (knowledge.Problem, error) {
	q := repo.sb.Insert("problems").Columns(problemColumns...).Values(
		p.ID, p.KnowledgePointID, p.Title, p.Source, p.SourceID, p.URL, p.Difficulty, p.Position,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return knowledge.Problem{}, errors.Wrap(err, "inserting problem")
	}
	return repo.GetProblem(ctx, p.ID, exec...)
}

func (repo knowledgeRepository) getProblem(ctx context.Context, exec []core.DBExecutor, where sq.Eq) (knowledge.Problem, error) {
	var row problemRow
	if err := repo.get(ctx, exec, &row, repo.sb.Select(problemColumns...).From("problems").Where(where)); err != nil {
		return knowledge.Problem{}, trapNoRowsErr(err, knowledge.ErrProblemNotFound, "getting problem")
	}
	return row.toProblem(), nil
}

func (repo knowledgeRepository) GetProblem(ctx context.Context, id string, exec ...core.DBExecutor) (knowledge.Problem, error) {
	return repo.getProblem(ctx, exec, sq.Eq{"id": id})
}

func (repo knowledgeRepository) FindProblemBySource(ctx context.Context, source, sourceID string, exec ...core.DBExecutor) (knowledge.Problem, error) {
	return repo.getProblem(ctx, exec, sq.Eq{"source": source, "source_id": sourceID})
}

func (repo knowledgeRepository) ProblemsBySource(ctx context.Context, source string, sourceIDs []string, exec ...core.DBExecutor) ([]knowledge.Problem, error) {
	if len(sourceIDs) == 0 {
		return []knowledge.Problem{}, nil
	}
	q := repo.sb.Select(problemColumns...).From("problems").
		Where(sq.Eq{"source": source, "source_id": sourceIDs}).
		OrderBy("source_id")

	var rows []problemRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting problems by source")
	}
	return toProblems(rows), nil
}

func (repo knowledgeRepository) QueryProblems(ctx context.Context, kpID string, exec ...core.DBExecutor) ([]knowledge.Problem, error) {
	q := repo.sb.Select(problemColumns...).From("problems").
		Where(sq.Eq{"knowledge_point_id": kpID}).
		OrderBy("position", "created_at")

	var rows []problemRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying problems")
	}
	return toProblems(rows), nil
}

func (repo knowledgeRepository) UpdateProblem(ctx context.Context, p knowledge.Problem, exec ...core.DBExecutor) (knowledge.Problem, error) {
	q := repo.sb.Update("problems").SetMap(map[string]interface{}{
		"knowledge_point_id": p.KnowledgePointID,
		"title":              p.Title,
		"url":                p.URL,
		"difficulty":         p.Difficulty,
		"position":           p.Position,
		"updated_at":         p.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": p.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return knowledge.Problem{}, errors.Wrap(err, "updating problem")
	}
	if cnt == 0 {
		return knowledge.Problem{}, knowledge.ErrProblemNotFound
	}
	return repo.GetProblem(ctx, p.ID, exec...)
}

func (repo knowledgeRepository) DeleteProblem(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("problems").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting problem")
}

func (repo knowledgeRepository) AttachVideo(ctx context.Context, kpID, videoID string, position int, exec ...core.DBExecutor) error {
	q := repo.sb.Insert("knowledge_point_videos").Columns("knowledge_point_id", "video_id", "position").
		Values(kpID, videoID, position).
		Suffix("ON CONFLICT (knowledge_point_id, video_id) DO UPDATE SET position = excluded.position")
	_, err := repo.exec(ctx, exec, q)
	return errors.Wrap(err, "attaching video")
}

func (repo knowledgeRepository) DetachVideo(ctx context.Context, kpID, videoID string, exec ...core.DBExecutor) (int, error) {
	q := repo.sb.Delete("knowledge_point_videos").Where(sq.Eq{"knowledge_point_id": kpID, "video_id": videoID})
	cnt, err := repo.execAffected(ctx, exec, q)
	return cnt, errors.Wrap(err, "detaching video")
}

func (repo knowledgeRepository) PointVideos(ctx context.Context, kpID string, readyOnly bool, exec ...core.DBExecutor) ([]video.Video, error) {
	cols := make([]string, 0, len(videoColumns))
	for _, col := range videoColumns {
		cols = append(cols, "v."+col)
	}
	q := repo.sb.Select(cols...).From("knowledge_point_videos kv").
		Join("videos v ON v.id = kv.video_id").
		Where(sq.Eq{"kv.knowledge_point_id": kpID}).
		OrderBy("kv.position", "v.created_at")
	if readyOnly {
		q = q.Where(sq.Eq{"v.status": video.StatusReady})
	}

	var rows []videoRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting knowledge point videos")
	}
	return toVideos(rows), nil
}
