package video_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
	sqlxrepos "github.com/oiclass/oiclass/storage/database/sqlx"
	"github.com/oiclass/oiclass/testutil"
)

func TestMain(m *testing.M) {
	// rollbar-go starts its transport at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/rollbar/rollbar-go.NewAsyncTransport.func1"))
}

type fakeTranscoder struct {
	fail  error
	block chan struct{}
}

func (f *fakeTranscoder) Probe(ctx context.Context, src string) (float64, error) {
	if _, err := os.Stat(src); err != nil {
		return 0, err
	}
	return 42.5, nil
}

func (f *fakeTranscoder) Transcode(ctx context.Context, src, outDir string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(filepath.Join(outDir, video.MasterPlaylist), []byte("#EXTM3U\n"), 0o644)
}

type fakeStore struct {
	mu        sync.Mutex
	published []string
}

func (s *fakeStore) Publish(ctx context.Context, videoID, dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, video.MasterPlaylist)); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, videoID)
	return "/media/hls/" + videoID + "/" + video.MasterPlaylist, nil
}

func (s *fakeStore) Remove(context.Context, string) error { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.NewNotification
}

func (n *fakeNotifier) Notify(_ context.Context, userIDs []string, nn notification.NewNotification) ([]notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, nn)
	return nil, nil
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, nn := range n.sent {
		out = append(out, nn.Kind)
	}
	return out
}

type pipelineEnv struct {
	conf     *core.Config
	repo     video.Repository
	owner    user.User
	tc       *fakeTranscoder
	store    *fakeStore
	notifier *fakeNotifier
	pipeline *video.Pipeline
}

func setupPipeline(t *testing.T) *pipelineEnv {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	e := &pipelineEnv{
		conf:     conf,
		repo:     sqlxrepos.NewVideoRepository(db),
		owner:    testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true),
		tc:       &fakeTranscoder{},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
	}
	e.pipeline = video.NewPipeline(e.repo, e.tc, e.store, e.notifier, conf.Media, testutil.NewLogger(t))
	t.Cleanup(e.pipeline.Close)
	return e
}

func (e *pipelineEnv) createVideo(t *testing.T, title string) video.Video {
	t.Helper()
	src := filepath.Join(e.conf.Media.Dir, strings.ReplaceAll(title, " ", "_")+".mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o644))
	now := core.Now()
	v, err := e.repo.CreateVideo(context.Background(), video.Video{
		ID:         uuid.New().String(),
		Title:      title,
		OwnerID:    e.owner.ID,
		Status:     video.StatusProcessing,
		SourcePath: src,
		SourceSize: 5,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return v
}

func (e *pipelineEnv) waitStatus(t *testing.T, id, status string) video.Video {
	t.Helper()
	var v video.Video
	require.Eventually(t, func() bool {
		var err error
		v, err = e.repo.GetVideo(context.Background(), id)
		return err == nil && v.Status == status
	}, 5*time.Second, 10*time.Millisecond, "video %s never became %s", id, status)
	return v
}

func TestPipeline(t *testing.T) {
	e := setupPipeline(t)

	v := e.createVideo(t, "Lesson 1")
	e.pipeline.Enqueue(v)
	got := e.waitStatus(t, v.ID, video.StatusReady)
	assert.Equal(t, 42.5, got.Duration)
	assert.Equal(t, "/media/hls/"+v.ID+"/master.m3u8", got.PlaylistURL)
	assert.Empty(t, got.Error)

	require.Eventually(t, func() bool { return len(e.notifier.kinds()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{notification.KindVideoReady}, e.notifier.kinds())

	// the work directory is cleaned up
	entries, err := os.ReadDir(filepath.Join(e.conf.Media.Dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_failure(t *testing.T) {
	e := setupPipeline(t)
	e.tc.fail = errors.New("ffmpeg: " + strings.Repeat("x", 600))

	v := e.createVideo(t, "Broken")
	e.pipeline.Enqueue(v)
	got := e.waitStatus(t, v.ID, video.StatusFailed)
	assert.True(t, strings.HasPrefix(got.Error, "transcoding: ffmpeg: "))
	assert.Len(t, got.Error, 500)
	assert.Empty(t, got.PlaylistURL)

	require.Eventually(t, func() bool { return len(e.notifier.kinds()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{notification.KindVideoFailed}, e.notifier.kinds())
}

func TestPipeline_Resume(t *testing.T) {
	e := setupPipeline(t)
	v1 := e.createVideo(t, "Lesson 1")
	v2 := e.createVideo(t, "Lesson 2")
	ready := e.createVideo(t, "Lesson 3")
	ready.Status = video.StatusReady
	_, err := e.repo.UpdateVideo(context.Background(), ready)
	require.NoError(t, err)

	n, err := e.pipeline.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	e.waitStatus(t, v1.ID, video.StatusReady)
	e.waitStatus(t, v2.ID, video.StatusReady)
}

func TestPipeline_Close(t *testing.T) {
	e := setupPipeline(t)
	e.tc.block = make(chan struct{})

	v := e.createVideo(t, "Long")
	e.pipeline.Enqueue(v)
	e.pipeline.Close()

	// interrupted jobs stay processing for the next Resume
	got, err := e.repo.GetVideo(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessing, got.Status)
	assert.Empty(t, e.notifier.kinds())

	// closed pipelines drop new work
	e.pipeline.Enqueue(v)
	assert.Empty(t, e.notifier.kinds())
}

func TestPipeline_idsRequired(t *testing.T) {
	e := setupPipeline(t)
	_, err := e.repo.CreateVideo(context.Background(), video.Video{Title: "No id", Status: video.StatusProcessing})
	assert.EqualError(t, err, "inserting video: missing id")
	_, err = e.repo.CreateUpload(context.Background(), video.Upload{Title: "No id"})
	assert.EqualError(t, err, "inserting upload: missing id")
}
