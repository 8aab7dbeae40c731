package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

var videoColumns = []string{
	"id", "title", "description", "owner_id", "status", "error", "duration_seconds",
	"playlist_url", "source_size", "source_path", "created_at", "updated_at",
}

var uploadColumns = []string{
	"id", "owner_id", "title", "filename", "size", "chunk_size", "total_chunks",
	"status", "video_id", "created_at", "updated_at",
}

type videoRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	OwnerID     null.String `db:"owner_id"`
	Status      string      `db:"status"`
	Error       string      `db:"error"`
	Duration    float64     `db:"duration_seconds"`
	PlaylistURL string      `db:"playlist_url"`
	SourceSize  int64       `db:"source_size"`
	SourcePath  string      `db:"source_path"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (row videoRow) toVideo() video.Video {
	return video.Video{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		OwnerID:     row.OwnerID.String,
		Status:      row.Status,
		Error:       row.Error,
		Duration:    row.Duration,
		PlaylistURL: row.PlaylistURL,
		SourceSize:  row.SourceSize,
		SourcePath:  row.SourcePath,
		CreatedAt:   utc(row.CreatedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
}

func toVideos(rows []videoRow) []video.Video {
	videos := make([]video.Video, 0, len(rows))
	for _, row := range rows {
		videos = append(videos, row.toVideo())
	}
	return videos
}

type uploadRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Title       string      `db:"title"`
	Filename    string      `db:"filename"`
	Size        int64       `db:"size"`
	ChunkSize   int64       `db:"chunk_size"`
	TotalChunks int         `db:"total_chunks"`
	Status      string      `db:"status"`
	VideoID     null.String `db:"video_id"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type videoRepository struct {
	repo
}

var _ video.Repository = (*videoRepository)(nil) // interface compliance check

func NewVideoRepository(db *sqlx.DB) *videoRepository {
	return &videoRepository{repo: newRepo(db)}
}

func (repo videoRepository) CreateUpload(ctx context.Context, u video.Upload, exec ...core.DBExecutor) (video.Upload, error) {
	if u.ID == "" {
		return video.Upload{}, errors.New("inserting upload: missing id")
	}
	q := repo.sb.Insert("upload_sessions").Columns(uploadColumns...).Values(
		u.ID, u.OwnerID, u.Title, u.Filename, u.Size, u.ChunkSize, u.TotalChunks,
		u.Status, nullString(u.VideoID), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return video.Upload{}, errors.Wrap(err, "inserting upload session")
	}
	return repo.GetUpload(ctx, u.ID, exec...)
}

func (repo videoRepository) GetUpload(ctx context.Context, id string, exec ...core.DBExecutor) (video.Upload, error) {
	var row uploadRow
	q := repo.sb.Select(uploadColumns...).From("upload_sessions").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, exec, &row, q); err != nil {
		return video.Upload{}, trapNoRowsErr(err, video.ErrUploadNotFound, "getting upload session")
	}

	var received []int
	cq := repo.sb.Select("chunk_index").From("upload_chunks").Where(sq.Eq{"upload_id": id}).OrderBy("chunk_index")
	if err := repo.selectRows(ctx, exec, &received, cq); err != nil {
		return video.Upload{}, errors.Wrap(err, "selecting received chunks")
	}

	u := video.Upload{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Filename:    row.Filename,
		Size:        row.Size,
		ChunkSize:   row.ChunkSize,
		TotalChunks: row.TotalChunks,
		Status:      row.Status,
		VideoID:     row.VideoID.String,
		CreatedAt:   utc(row.CreatedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
	u.SetReceived(received)
	return u, nil
}

func (repo videoRepository) SaveChunk(ctx context.Context, uploadID string, index int, size int64, exec ...core.DBExecutor) error {
	q := repo.sb.Insert("upload_chunks").Columns("upload_id", "chunk_index", "size").
		Values(uploadID, index, size).
		Suffix("ON CONFLICT (upload_id, chunk_index) DO UPDATE SET size = excluded.size")
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return errors.Wrap(err, "saving chunk")
	}
	_, err := repo.exec(ctx, exec, repo.sb.Update("upload_sessions").Set("updated_at", core.Now()).Where(sq.Eq{"id": uploadID}))
	return errors.Wrap(err, "touching upload session")
}

func (repo videoRepository) SetUploadStatus(ctx context.Context, id string, from []string, to string, videoID string, exec ...core.DBExecutor) error {
	q := repo.sb.Update("upload_sessions").
		Set("status", to).
		Set("updated_at", core.Now()).
		Where(sq.Eq{"id": id, "status": from})
	if videoID != "" {
		q = q.Set("video_id", videoID)
	}
	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return errors.Wrap(err, "updating upload status")
	}
	if cnt == 0 {
		return video.ErrUploadState
	}
	return nil
}

func (repo videoRepository) CreateVideo(ctx context.Context, v video.Video, exec ...core.DBExecutor) (video.Video, error) {
	if v.ID == "" {
		return video.Video{}, errors.New("inserting video: missing id")
	}
	q := repo.sb.Insert("videos").Columns(videoColumns...).Values(
		v.ID, v.Title, v.Description, nullString(v.OwnerID), v.Status, v.Error, v.Duration,
		v.PlaylistURL, v.SourceSize, v.SourcePath, v.CreatedAt.UTC(), v.UpdatedAt.UTC(),
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return video.Video{}, errors.Wrap(err, "inserting video")
	}
	return repo.GetVideo(ctx, v.ID, exec...)
}

func (repo videoRepository) GetVideo(ctx context.Context, id string, exec ...core.DBExecutor) (video.Video, error) {
	var row videoRow
	if err := repo.get(ctx, exec, &row, repo.sb.Select(videoColumns...).From("videos").Where(sq.Eq{"id": id})); err != nil {
		return video.Video{}, trapNoRowsErr(err, video.ErrNotFound, "getting video")
	}
	return row.toVideo(), nil
}

func (repo videoRepository) QueryVideos(ctx context.Context, filter video.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]video.Video, error) {
	q := repo.sb.Select(videoColumns...).From("videos")
	if filter.Search != "" {
		q = q.Where(ilike(filter.Search, "title", "description"))
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.OwnerID != "" {
		q = q.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	q = paginate(orderBy(q, ordering, "created_at DESC"), page)

	var rows []videoRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying videos")
	}
	return toVideos(rows), nil
}

func (repo videoRepository) UpdateVideo(ctx context.Context, v video.Video, exec ...core.DBExecutor) (video.Video, error) {
	q := repo.sb.Update("videos").SetMap(map[string]interface{}{
		"title":            v.Title,
		"description":      v.Description,
		"status":           v.Status,
		"error":            v.Error,
		"duration_seconds": v.Duration,
		"playlist_url":     v.PlaylistURL,
		"source_size":      v.SourceSize,
		"source_path":      v.SourcePath,
		"updated_at":       v.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": v.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return video.Video{}, errors.Wrap(err, "updating video")
	}
	if cnt == 0 {
		return video.Video{}, video.ErrNotFound
	}
	return repo.GetVideo(ctx, v.ID, exec...)
}

func (repo videoRepository) DeleteVideo(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("videos").Where(sq.Eq{"id": id}))
	return cnt, errors.Wrap(err, "deleting video")
}
