package video

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
)

// MasterPlaylist is the name of the HLS master playlist every transcode produces.
const MasterPlaylist = "master.m3u8"

const maxErrorLen = 500

type (
	// Transcoder turns a source file into an HLS tree with a MasterPlaylist.
	Transcoder interface {
		// Probe returns the duration of src in seconds.
		Probe(ctx context.Context, src string) (float64, error)
		Transcode(ctx context.Context, src, outDir string) error
	}

	// Store publishes transcoded HLS trees.
	Store interface {
		// Publish copies the tree under dir and returns the master playlist URL.
		Publish(ctx context.Context, videoID, dir string) (string, error)
		Remove(ctx context.Context, videoID string) error
	}
)

// Pipeline transcodes queued videos in the background, at most
// MediaConfig.TranscodeConcurrency at a time.
type Pipeline struct {
	repo     Repository
	tc       Transcoder
	store    Store
	notifier notification.Notifier
	logger   core.Logger
	workDir  string
	timeout  time.Duration

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Queue = (*Pipeline)(nil)

func NewPipeline(repo Repository, tc Transcoder, store Store, notifier notification.Notifier, conf core.MediaConfig, logger core.Logger) *Pipeline {
	concurrency := conf.TranscodeConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		repo:     repo,
		tc:       tc,
		store:    store,
		notifier: notifier,
		logger:   logger,
		workDir:  filepath.Join(conf.Dir, "work"),
		timeout:  conf.TranscodeTimeout,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue schedules v for transcoding and returns immediately.
func (p *Pipeline) Enqueue(v Video) {
	if p.ctx.Err() != nil {
		p.logger.Warn("pipeline closed, video left processing", "video_id", v.ID)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return // closing; Resume picks it up on next start
		}
		defer p.sem.Release(1)
		p.process(v)
	}()
}

// Resume enqueues the videos left processing by a previous run.
func (p *Pipeline) Resume(ctx context.Context) (int, error) {
	videos, err := p.repo.QueryVideos(ctx, QueryFilter{Status: StatusProcessing}, nil, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying processing videos")
	}
	for _, v := range videos {
		p.Enqueue(v)
	}
	return len(videos), nil
}

// Close stops accepting work, cancels running jobs and waits for them.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) process(v Video) {
	start := time.Now()
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	duration, url, err := p.run(ctx, v)
	if p.ctx.Err() != nil {
		p.logger.Warn("transcode interrupted by shutdown", "video_id", v.ID)
		return
	}

	// the job context may be done; the final write uses its own
	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	current, gErr := p.repo.GetVideo(saveCtx, v.ID)
	if gErr != nil {
		if errors.Cause(gErr) != ErrNotFound {
			p.logger.Error("reloading video", gErr, "video_id", v.ID)
		}
		return
	}

	nn := notification.NewNotification{Link: "/videos/" + v.ID}
	if err != nil {
		current.Status = StatusFailed
		current.Error = truncate(err.Error(), maxErrorLen)
		nn.Kind = notification.KindVideoFailed
		nn.Title = "Processing of \"" + current.Title + "\" failed"
		nn.Body = current.Error
		p.logger.Error("transcoding video", err, "video_id", v.ID)
	} else {
		current.Status = StatusReady
		current.Error = ""
		current.Duration = duration
		current.PlaylistURL = url
		nn.Kind = notification.KindVideoReady
		nn.Title = "\"" + current.Title + "\" is ready"
		p.logger.Info("video transcoded", "video_id", v.ID, "took", time.Since(start).String())
	}
	current.UpdatedAt = core.Now()
	if _, err := p.repo.UpdateVideo(saveCtx, current); err != nil {
		p.logger.Error("saving transcode result", err, "video_id", v.ID)
		return
	}
	if current.OwnerID != "" {
		if _, err := p.notifier.Notify(saveCtx, []string{current.OwnerID}, nn); err != nil {
			p.logger.Error("notifying video owner", err, "video_id", v.ID)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, v Video) (float64, string, error) {
	outDir := filepath.Join(p.workDir, v.ID)
	if err := os.RemoveAll(outDir); err != nil {
		return 0, "", errors.Wrap(err, "cleaning work directory")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, "", errors.Wrap(err, "creating work directory")
	}
	defer os.RemoveAll(outDir)

	duration, err := p.tc.Probe(ctx, v.SourcePath)
	if err != nil {
		return 0, "", errors.Wrap(err, "probing source")
	}
	if err := p.tc.Transcode(ctx, v.SourcePath, outDir); err != nil {
		return 0, "", errors.Wrap(err, "transcoding")
	}
	if _, err := os.Stat(filepath.Join(outDir, MasterPlaylist)); err != nil {
		return 0, "", errors.Wrap(err, "checking master playlist")
	}
	url, err := p.store.Publish(ctx, v.ID, outDir)
	if err != nil {
		return 0, "", errors.Wrap(err, "publishing")
	}
	return duration, url, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
