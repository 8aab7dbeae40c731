// Package mediastore publishes transcoded HLS trees to the local media
// directory or to a Google Cloud Storage bucket.
package mediastore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

// HLSDir is the directory under MediaConfig.Dir local playlists are published to.
const HLSDir = "hls"

type Local struct {
	root      string
	publicURL string
}

var _ video.Store = (*Local)(nil)

// New returns the store selected by MediaConfig.Storage.
func New(ctx context.Context, conf core.MediaConfig, logger core.Logger) (video.Store, error) {
	switch conf.Storage {
	case "", "local":
		return NewLocal(conf), nil
	case "gcs":
		return NewGCS(ctx, conf, logger)
	default:
		return nil, errors.Errorf("unknown media storage %q", conf.Storage)
	}
}

func NewLocal(conf core.MediaConfig) *Local {
	return &Local{
		root:      filepath.Join(conf.Dir, HLSDir),
		publicURL: strings.TrimSuffix(conf.PublicURL, "/"),
	}
}

// Root is the directory served under MediaConfig.PublicURL + "/hls".
func (s *Local) Root() string { return s.root }

func (s *Local) Publish(ctx context.Context, videoID, dir string) (string, error) {
	dst := filepath.Join(s.root, videoID)
	tmp := dst + ".publishing"
	if err := os.RemoveAll(tmp); err != nil {
		return "", errors.Wrap(err, "cleaning staging directory")
	}
	if err := copyTree(ctx, dir, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}
	if err := os.RemoveAll(dst); err != nil {
		return "", errors.Wrap(err, "removing previous publication")
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", errors.Wrap(err, "publishing")
	}
	return s.publicURL + "/" + path.Join(HLSDir, videoID, video.MasterPlaylist), nil
}

func (s *Local) Remove(ctx context.Context, videoID string) error {
	if videoID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.root, videoID))
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "copying %s", filepath.Base(src))
	}
	return out.Close()
}
