package mediastore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
	"github.com/oiclass/oiclass/services/mediastore"
	"github.com/oiclass/oiclass/testutil"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestLocal(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Media.PublicURL = "http://localhost:8000/media/"
	store := mediastore.NewLocal(conf.Media)
	ctx := context.Background()

	src := writeTree(t, map[string]string{
		video.MasterPlaylist: "#EXTM3U",
		"360p/index.m3u8":    "#EXTM3U\n#EXT-X-TARGETDURATION:6",
		"360p/seg_00000.ts":  "segment",
	})
	url, err := store.Publish(ctx, "v1", src)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/media/hls/v1/master.m3u8", url)

	data, err := os.ReadFile(filepath.Join(store.Root(), "v1", "360p", "seg_00000.ts"))
	require.NoError(t, err)
	assert.Equal(t, "segment", string(data))

	t.Run("republish replaces the tree", func(t *testing.T) {
		src := writeTree(t, map[string]string{video.MasterPlaylist: "#EXTM3U\n"})
		_, err := store.Publish(ctx, "v1", src)
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(store.Root(), "v1", "360p"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(store.Root(), "v1.publishing"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "v1"))
		_, err := os.Stat(filepath.Join(store.Root(), "v1"))
		assert.True(t, os.IsNotExist(err))
		require.NoError(t, store.Remove(ctx, "v1"))
		require.NoError(t, store.Remove(ctx, ""))
		_, err = os.Stat(store.Root())
		assert.NoError(t, err, "root survives removing an empty id")
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig(t)

	store, err := mediastore.New(ctx, conf.Media, core.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &mediastore.Local{}, store)

	conf.Media.Storage = "s3"
	_, err = mediastore.New(ctx, conf.Media, core.NopLogger{})
	assert.EqualError(t, err, `unknown media storage "s3"`)
}
