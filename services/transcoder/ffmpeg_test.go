package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oiclass/oiclass/core"
)

var renditions = []core.Rendition{
	{Name: "360p", Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
	{Name: "720p", Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
	{Name: "1080p", Height: 1080, VideoBitrate: "5M", AudioBitrate: "192k"},
}

func Test_selectRenditions(t *testing.T) {
	names := func(rs []core.Rendition) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return out
	}
	tests := []struct {
		height int
		want   []string
	}{
		{2160, []string{"360p", "720p", "1080p"}},
		{720, []string{"360p", "720p"}},
		{480, []string{"360p"}},
		{240, []string{"360p"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, names(selectRenditions(renditions, tt.height)), tt.height)
	}
	assert.Empty(t, selectRenditions(nil, 720))
}

func Test_bitrate(t *testing.T) {
	assert.Equal(t, 800000, bitrate("800k"))
	assert.Equal(t, 5000000, bitrate("5M"))
	assert.Equal(t, 1500000, bitrate(" 1.5m "))
	assert.Equal(t, 64000, bitrate("64000"))
	assert.Zero(t, bitrate("lol"))
	assert.Equal(t, "1600k", doubleRate("800k"))
}

func Test_masterPlaylist(t *testing.T) {
	want := "#EXTM3U\n#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=896000,RESOLUTION=640x360,NAME=\"360p\"\n" +
		"360p/index.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2928000,RESOLUTION=1280x720,NAME=\"720p\"\n" +
		"720p/index.m3u8\n"
	assert.Equal(t, want, string(masterPlaylist(renditions[:2], 1920, 1080)))
	assert.Equal(t, want, string(masterPlaylist(renditions[:2], 0, 0)))

	// 4:3 and portrait sources keep their aspect ratio
	assert.Contains(t, string(masterPlaylist(renditions[:1], 640, 480)), "RESOLUTION=480x360,")
	assert.Contains(t, string(masterPlaylist(renditions[:1], 1080, 1920)), "RESOLUTION=202x360,")
}

func TestNewFFmpeg(t *testing.T) {
	tc := NewFFmpeg(core.MediaConfig{TranscodeConcurrency: 4}, core.NopLogger{})
	assert.Equal(t, 1, tc.parallelEncodes)
	assert.Equal(t, 6, tc.segmentSeconds)

	tc = NewFFmpeg(core.MediaConfig{ParallelEncodes: 3, HLSSegmentSeconds: 4}, core.NopLogger{})
	assert.Equal(t, 3, tc.parallelEncodes)
	assert.Equal(t, 4, tc.segmentSeconds)
}
