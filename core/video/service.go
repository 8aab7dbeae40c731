package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("video")
	ErrUploadNotFound  = core.NewNotFoundError("upload")
	ErrUploadClosed    = errors.New("upload is not accepting chunks")
	ErrChunkIndex      = errors.New("chunk index out of range")
	ErrChunkSize       = errors.New("chunk size mismatch")
	ErrUploadState     = errors.New("upload cannot be completed in its current state")
	ErrUploadLocked    = errors.New("upload is already being assembled")
	ErrAssembledSize   = errors.New("assembled file size does not match the declared size")
	ErrStaffOnly       = core.NewPermissionError("only teachers and admins can upload videos")
	errNoVideoSelected = errors.New("no video selected")
)

type (
	Repository interface {
		CreateUpload(ctx context.Context, u Upload, exec ...core.DBExecutor) (Upload, error)
		// GetUpload returns the session with its received chunk set.
		GetUpload(ctx context.Context, id string, exec ...core.DBExecutor) (Upload, error)
		// SaveChunk records a received chunk; saving the same index twice is a no-op.
		SaveChunk(ctx context.Context, uploadID string, index int, size int64, exec ...core.DBExecutor) error
		// SetUploadStatus moves an upload from one of `from` to `to`; ErrUploadState when it was not in `from`.
		SetUploadStatus(ctx context.Context, id string, from []string, to string, videoID string, exec ...core.DBExecutor) error
		CreateVideo(ctx context.Context, v Video, exec ...core.DBExecutor) (Video, error)
		GetVideo(ctx context.Context, id string, exec ...core.DBExecutor) (Video, error)
		QueryVideos(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Video, error)
		UpdateVideo(ctx context.Context, v Video, exec ...core.DBExecutor) (Video, error)
		DeleteVideo(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
	}

	// Queue accepts videos to transcode.
	Queue interface {
		Enqueue(v Video)
	}

	Service interface {
		InitUpload(ctx context.Context, owner user.User, nu NewUpload) (Upload, error)
		PutChunk(ctx context.Context, owner user.User, uploadID string, index int, r io.Reader) (Upload, error)
		UploadStatus(ctx context.Context, owner user.User, uploadID string) (Upload, error)
		Complete(ctx context.Context, owner user.User, uploadID string) (Video, error)
		Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Video, error)
		Get(ctx context.Context, viewer user.User, id string) (Video, error)
		Update(ctx context.Context, actor user.User, id string, uv UpdateVideo) (Video, error)
		Delete(ctx context.Context, actor user.User, id string) error
		Retranscode(ctx context.Context, actor user.User, id string) (Video, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		queue    Queue
		store    Store
		validate *validator.Validate
		conf     core.MediaConfig
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

var videoOrderings = map[string]string{
	"title":      "title",
	"created_at": "created_at",
	"duration":   "duration_seconds",
	"status":     "status",
}

func NewService(db core.DB, repo Repository, queue Queue, store Store, validate *validator.Validate, conf core.MediaConfig, logger core.Logger) Service {
	return &service{db: db, repo: repo, queue: queue, store: store, validate: validate, conf: conf, logger: logger}
}

func (svc *service) uploadDir(id string) string {
	return filepath.Join(svc.conf.Dir, "uploads", id)
}

func chunkPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk-%06d", index))
}

func (svc *service) allowedExt(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range svc.conf.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (svc *service) InitUpload(ctx context.Context, owner user.User, nu NewUpload) (Upload, error) {
	if !owner.IsStaff() {
		return Upload{}, ErrStaffOnly
	}
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return Upload{}, err
	}

	var fldErrs []core.FieldError
	if !svc.allowedExt(nu.Filename) {
		fldErrs = append(fldErrs, core.FieldError{Field: "filename", Error: "unsupported video format"})
	}
	if svc.conf.MaxUploadSize > 0 && nu.Size > svc.conf.MaxUploadSize {
		fldErrs = append(fldErrs, core.FieldError{
			Field: "size",
			Error: "file is larger than " + humanize.IBytes(uint64(svc.conf.MaxUploadSize)),
		})
	}
	if svc.conf.MaxChunkSize > 0 && nu.ChunkSize > svc.conf.MaxChunkSize {
		fldErrs = append(fldErrs, core.FieldError{
			Field: "chunk_size",
			Error: "chunk size is larger than " + humanize.IBytes(uint64(svc.conf.MaxChunkSize)),
		})
	}
	total := (nu.Size + nu.ChunkSize - 1) / nu.ChunkSize
	if total > MaxChunks {
		fldErrs = append(fldErrs, core.FieldError{Field: "chunk_size", Error: "too many chunks, use larger chunks"})
	}
	if len(fldErrs) > 0 {
		return Upload{}, core.NewValidationError(nil, fldErrs...)
	}

	now := core.Now()
	u := Upload{
		ID:          uuid.New().String(),
		OwnerID:     owner.ID,
		Title:       nu.Title,
		Filename:    nu.Filename,
		Size:        nu.Size,
		ChunkSize:   nu.ChunkSize,
		TotalChunks: int(total),
		Status:      UploadUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := os.MkdirAll(svc.uploadDir(u.ID), 0o755); err != nil {
		return Upload{}, errors.Wrap(err, "creating upload directory")
	}
	u, err := svc.repo.CreateUpload(ctx, u)
	if err != nil {
		return Upload{}, errors.Wrap(err, "creating upload")
	}
	u.SetReceived(nil)
	return u, nil
}

// ownUpload returns the upload when it belongs to owner; ErrUploadNotFound otherwise.
func (svc *service) ownUpload(ctx context.Context, owner user.User, id string) (Upload, error) {
	u, err := svc.repo.GetUpload(ctx, id)
	if err != nil {
		return Upload{}, err
	}
	if u.OwnerID != owner.ID {
		return Upload{}, ErrUploadNotFound
	}
	return u, nil
}

func (svc *service) PutChunk(ctx context.Context, owner user.User, uploadID string, index int, r io.Reader) (Upload, error) {
	u, err := svc.ownUpload(ctx, owner, uploadID)
	if err != nil {
		return Upload{}, err
	}
	if u.Status != UploadUploading {
		return Upload{}, core.NewValidationError(ErrUploadClosed)
	}
	if index < 0 || index >= u.TotalChunks {
		return Upload{}, core.NewValidationError(ErrChunkIndex, core.FieldError{Field: "index", Error: ErrChunkIndex.Error()})
	}

	expected := u.ChunkLength(index)
	dir := svc.uploadDir(u.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Upload{}, errors.Wrap(err, "creating upload directory")
	}
	tmp, err := os.CreateTemp(dir, "incoming-*")
	if err != nil {
		return Upload{}, errors.Wrap(err, "creating chunk file")
	}
	written, err := io.Copy(tmp, io.LimitReader(r, expected+1))
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return Upload{}, errors.Wrap(err, "writing chunk")
	}
	if written != expected {
		_ = os.Remove(tmp.Name())
		return Upload{}, core.NewValidationError(ErrChunkSize, core.FieldError{
			Field: "chunk",
			Error: "expected " + humanize.Comma(expected) + " bytes, got " + humanize.Comma(written),
		})
	}
	if err := os.Rename(tmp.Name(), chunkPath(dir, index)); err != nil {
		_ = os.Remove(tmp.Name())
		return Upload{}, errors.Wrap(err, "storing chunk")
	}

	if err := svc.repo.SaveChunk(ctx, u.ID, index, written); err != nil {
		return Upload{}, errors.Wrap(err, "recording chunk")
	}
	return svc.repo.GetUpload(ctx, u.ID)
}

func (svc *service) UploadStatus(ctx context.Context, owner user.User, uploadID string) (Upload, error) {
	return svc.ownUpload(ctx, owner, uploadID)
}

func (svc *service) Complete(ctx context.Context, owner user.User, uploadID string) (Video, error) {
	u, err := svc.ownUpload(ctx, owner, uploadID)
	if err != nil {
		return Video{}, err
	}
	if u.Status == UploadDone && u.VideoID != "" {
		return svc.repo.GetVideo(ctx, u.VideoID)
	}
	if u.Status != UploadUploading {
		return Video{}, core.NewValidationError(ErrUploadState)
	}
	if len(u.Missing) > 0 {
		return Video{}, &MissingChunksError{Missing: u.Missing}
	}

	dir := svc.uploadDir(u.ID)
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return Video{}, errors.Wrap(err, "locking upload")
	}
	if !locked {
		return Video{}, core.NewValidationError(ErrUploadLocked)
	}
	defer func() { _ = lock.Unlock() }()

	if err := svc.repo.SetUploadStatus(ctx, u.ID, []string{UploadUploading}, UploadAssembling, ""); err != nil {
		if errors.Cause(err) == ErrUploadState {
			return Video{}, core.NewValidationError(ErrUploadState)
		}
		return Video{}, errors.Wrap(err, "marking upload assembling")
	}

	v := Video{
		ID:         uuid.New().String(),
		Title:      u.Title,
		OwnerID:    u.OwnerID,
		Status:     StatusProcessing,
		SourceSize: u.Size,
	}
	v.SourcePath = filepath.Join(svc.conf.Dir, "sources", v.ID+strings.ToLower(filepath.Ext(u.Filename)))

	if err := svc.assemble(u, dir, v.SourcePath); err != nil {
		if sErr := svc.repo.SetUploadStatus(ctx, u.ID, []string{UploadAssembling}, UploadFailed, ""); sErr != nil {
			svc.logger.Error("marking upload failed", sErr, "upload_id", u.ID)
		}
		if errors.Cause(err) == ErrAssembledSize {
			return Video{}, core.NewValidationError(ErrAssembledSize)
		}
		return Video{}, errors.Wrap(err, "assembling upload")
	}

	now := core.Now()
	v.CreatedAt, v.UpdatedAt = now, now
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if v, err = svc.repo.CreateVideo(ctx, v, tx); err != nil {
			return errors.Wrap(err, "creating video")
		}
		return svc.repo.SetUploadStatus(ctx, u.ID, []string{UploadAssembling}, UploadDone, v.ID, tx)
	})
	if err != nil {
		_ = os.Remove(v.SourcePath)
		return Video{}, err
	}

	for i := 0; i < u.TotalChunks; i++ {
		_ = os.Remove(chunkPath(dir, i))
	}
	svc.logger.Info("upload assembled", "upload_id", u.ID, "video_id", v.ID, "size", humanize.IBytes(uint64(u.Size)))
	svc.queue.Enqueue(v)
	return v, nil
}

// assemble concatenates the chunks of u in order into dst.
func (svc *service) assemble(u Upload, dir, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "creating sources directory")
	}
	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return errors.Wrap(err, "creating source file")
	}

	var total int64
	for i := 0; i < u.TotalChunks && err == nil; i++ {
		var n int64
		n, err = appendFile(out, chunkPath(dir, i))
		total += n
	}
	if cErr := out.Close(); err == nil {
		err = cErr
	}
	if err == nil && total != u.Size {
		err = ErrAssembledSize
	}
	if err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, dst)
}

func appendFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", filepath.Base(path))
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (svc *service) Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Video, error) {
	filter.Clean()
	if !viewer.IsStaff() {
		filter.Status = StatusReady
	}
	ordering = core.FilterOrderings(ordering, videoOrderings)
	return svc.repo.QueryVideos(ctx, filter, ordering, &page)
}

// canManage reports whether usr may change v.
func canManage(usr user.User, v Video) bool {
	return usr.IsAdmin() || (usr.ID != "" && usr.ID == v.OwnerID)
}

func (svc *service) Get(ctx context.Context, viewer user.User, id string) (Video, error) {
	v, err := svc.repo.GetVideo(ctx, id)
	if err != nil {
		return Video{}, err
	}
	if !v.IsReady() && !viewer.IsStaff() {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, uv UpdateVideo) (Video, error) {
	uv.Clean()
	if err := svc.validate.Struct(uv); err != nil {
		return Video{}, err
	}
	v, err := svc.repo.GetVideo(ctx, id)
	if err != nil {
		return Video{}, err
	}
	if !canManage(actor, v) {
		return Video{}, core.ErrPermissionDenied
	}
	if uv.Title != nil {
		v.Title = *uv.Title
	}
	if uv.Description != nil {
		v.Description = *uv.Description
	}
	v.UpdatedAt = core.Now()
	return svc.repo.UpdateVideo(ctx, v)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	if id == "" {
		return errNoVideoSelected
	}
	v, err := svc.repo.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, v) {
		return core.ErrPermissionDenied
	}
	if _, err := svc.repo.DeleteVideo(ctx, v.ID); err != nil {
		return errors.Wrap(err, "deleting video")
	}

	if err := svc.store.Remove(ctx, v.ID); err != nil {
		svc.logger.Error("removing published video", err, "video_id", v.ID)
	}
	if v.SourcePath != "" {
		if err := os.Remove(v.SourcePath); err != nil && !os.IsNotExist(err) {
			svc.logger.Error("removing video source", err, "video_id", v.ID)
		}
	}
	return nil
}

func (svc *service) Retranscode(ctx context.Context, actor user.User, id string) (Video, error) {
	v, err := svc.repo.GetVideo(ctx, id)
	if err != nil {
		return Video{}, err
	}
	if !canManage(actor, v) {
		return Video{}, core.ErrPermissionDenied
	}
	if v.Status == StatusProcessing {
		return Video{}, core.NewValidationError(errors.New("video is already being processed"))
	}
	if _, err := os.Stat(v.SourcePath); err != nil {
		return Video{}, core.NewValidationError(errors.New("video source is no longer available"))
	}

	v.Status = StatusProcessing
	v.Error = ""
	v.UpdatedAt = core.Now()
	if v, err = svc.repo.UpdateVideo(ctx, v); err != nil {
		return Video{}, errors.Wrap(err, "updating video")
	}
	svc.queue.Enqueue(v)
	return v, nil
}
