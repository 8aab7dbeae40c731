package mediastore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

const (
	gcsPrefix         = "videos"
	gcsParallelUpload = 8
	gcsUploadTimeout  = 2 * time.Minute
)

// objectBucket is the part of a bucket the store uses.
type objectBucket interface {
	NewWriter(ctx context.Context, key, contentType string) io.WriteCloser
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

type gcsBucket struct {
	bkt *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	w := b.bkt.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b gcsBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
}

func (b gcsBucket) Delete(ctx context.Context, key string) error {
	if err := b.bkt.Object(key).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return err
	}
	return nil
}

type GCS struct {
	client *storage.Client
	bucket string
	objs   objectBucket
	logger core.Logger
}

var _ video.Store = (*GCS)(nil)

func NewGCS(ctx context.Context, conf core.MediaConfig, logger core.Logger) (*GCS, error) {
	if conf.GCSBucket == "" {
		return nil, errors.New("media.gcsbucket is required for gcs storage")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if conf.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	s := newGCS(conf.GCSBucket, gcsBucket{bkt: client.Bucket(conf.GCSBucket)}, logger)
	s.client = client
	return s, nil
}

func newGCS(bucket string, objs objectBucket, logger core.Logger) *GCS {
	return &GCS{bucket: bucket, objs: objs, logger: logger}
}

func (s *GCS) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *GCS) PublicURL(key string) string {
	return "https://storage.googleapis.com/" + s.bucket + "/" + key
}

func (s *GCS) Publish(ctx context.Context, videoID, dir string) (string, error) {
	var files []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "listing transcoded files")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gcsParallelUpload)
	for _, f := range files {
		f := f
		g.Go(func() error {
			rel, err := filepath.Rel(dir, f)
			if err != nil {
				return err
			}
			return s.upload(gctx, path.Join(gcsPrefix, videoID, filepath.ToSlash(rel)), f)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return s.PublicURL(path.Join(gcsPrefix, videoID, video.MasterPlaylist)), nil
}

func (s *GCS) upload(ctx context.Context, key, file string) error {
	ctx, cancel := context.WithTimeout(ctx, gcsUploadTimeout)
	defer cancel()

	in, err := os.Open(file)
	if err != nil {
		return err
	}
	defer in.Close()

	w := s.objs.NewWriter(ctx, key, contentType(key))
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "writing %s", key)
	}
	return errors.Wrapf(w.Close(), "closing %s", key)
}

func (s *GCS) Remove(ctx context.Context, videoID string) error {
	if videoID == "" {
		return nil
	}
	keys, err := s.objs.List(ctx, path.Join(gcsPrefix, videoID)+"/")
	if err != nil {
		return errors.Wrap(err, "listing objects")
	}
	for _, key := range keys {
		if err := s.objs.Delete(ctx, key); err != nil {
			s.logger.Warn("deleting object", "key", key, "error", err.Error())
		}
	}
	return nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4", ".m4s":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
