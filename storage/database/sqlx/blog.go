package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/blog"
)

var postColumns = []string{
	"id", "author_id", "title", "summary", "content", "tags", "status", "reject_reason",
	"published_at", "created_at", "updated_at",
}

type postRow struct {
	ID           string    `db:"id"`
	AuthorID     string    `db:"author_id"`
	AuthorName   string    `db:"author_name"`
	Title        string    `db:"title"`
	Summary      string    `db:"summary"`
	Content      string    `db:"content"`
	Tags         string    `db:"tags"`
	Status       string    `db:"status"`
	RejectReason string    `db:"reject_reason"`
	PublishedAt  null.Time `db:"published_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row postRow) toPost() blog.Post {
	return blog.Post{
		ID:           row.ID,
		AuthorID:     row.AuthorID,
		AuthorName:   row.AuthorName,
		Title:        row.Title,
		Summary:      row.Summary,
		Content:      row.Content,
		Tags:         splitTags(row.Tags),
		Status:       row.Status,
		RejectReason: row.RejectReason,
		PublishedAt:  timePtrFromNull(row.PublishedAt),
		CreatedAt:    utc(row.CreatedAt),
		UpdatedAt:    utc(row.UpdatedAt),
	}
}

// joinTags stores tags as ",a,b," so a single tag matches LIKE '%,a,%'.
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

func splitTags(s string) []string {
	tags := make([]string, 0)
	for _, t := range strings.Split(strings.Trim(s, ","), ",") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type blogRepository struct {
	repo
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(db *sqlx.DB) *blogRepository {
	return &blogRepository{repo: newRepo(db)}
}

func (repo blogRepository) selectPosts() sq.SelectBuilder {
	cols := append([]string{}, postColumns...)
	cols = append(cols, "(SELECT "+displayName("u")+" FROM users u WHERE u.id = posts.author_id) AS author_name")
	return repo.sb.Select(cols...).From("posts")
}

func (repo blogRepository) CreatePost(ctx context.Context, p blog.Post, exec ...core.DBExecutor) (blog.Post, error) {
	q := repo.sb.Insert("posts").Columns(postColumns...).Values(
		p.ID, p.AuthorID, p.Title, p.Summary, p.Content, joinTags(p.Tags), p.Status, p.RejectReason,
		nullTimeFromPtr(p.PublishedAt), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return blog.Post{}, errors.Wrap(err, "inserting post")
	}
	return repo.GetPost(ctx, p.ID, exec...)
}

func (repo blogRepository) GetPost(ctx context.Context, id string, exec ...core.DBExecutor) (blog.Post, error) {
	var row postRow
	if err := repo.get(ctx, exec, &row, repo.selectPosts().Where(sq.Eq{"id": id})); err != nil {
		return blog.Post{}, trapNoRowsErr(err, blog.ErrNotFound, "getting post")
	}
	return row.toPost(), nil
}

func (repo blogRepository) QueryPosts(ctx context.Context, filter blog.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]blog.Post, error) {
	q := repo.selectPosts()
	if filter.Search != "" {
		q = q.Where(ilike(filter.Search, "title", "summary"))
	}
	if filter.Tag != "" {
		q = q.Where(sq.Like{"tags": "%," + filter.Tag + ",%"})
	}
	if filter.AuthorID != "" {
		q = q.Where(sq.Eq{"author_id": filter.AuthorID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	q = paginate(orderBy(q, ordering, "created_at DESC"), page)

	var rows []postRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.toPost())
	}
	return posts, nil
}

func (repo blogRepository) UpdatePost(ctx context.Context, p blog.Post, expectStatus string, exec ...core.DBExecutor) (blog.Post, error) {
	q := repo.sb.Update("posts").SetMap(map[string]interface{}{
		"title":         p.Title,
		"summary":       p.Summary,
		"content":       p.Content,
		"tags":          joinTags(p.Tags),
		"status":        p.Status,
		"reject_reason": p.RejectReason,
		"published_at":  nullTimeFromPtr(p.PublishedAt),
		"updated_at":    p.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": p.ID, "status": expectStatus})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return blog.Post{}, errors.Wrap(err, "updating post")
	}
	if cnt == 0 {
		if _, err := repo.GetPost(ctx, p.ID, exec...); err != nil {
			return blog.Post{}, err
		}
		return blog.Post{}, blog.ErrStatusChanged
	}
	return repo.GetPost(ctx, p.ID, exec...)
}

func (repo blogRepository) DeletePost(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("posts").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting post")
}
