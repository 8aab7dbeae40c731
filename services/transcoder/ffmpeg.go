// Package transcoder shells out to ffprobe and ffmpeg to produce HLS renditions.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

const (
	renditionPlaylist = "index.m3u8"
	maxStderr         = 2000
)

type (
	FFmpeg struct {
		ffmpeg          string
		ffprobe         string
		renditions      []core.Rendition
		segmentSeconds  int
		parallelEncodes int
		logger          core.Logger
	}

	probeResult struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
)

var _ video.Transcoder = (*FFmpeg)(nil)

func NewFFmpeg(conf core.MediaConfig, logger core.Logger) *FFmpeg {
	seg := conf.HLSSegmentSeconds
	if seg < 1 {
		seg = 6
	}
	parallel := conf.ParallelEncodes
	if parallel < 1 {
		parallel = 1
	}
	return &FFmpeg{
		ffmpeg:          conf.FFmpegBin,
		ffprobe:         conf.FFprobeBin,
		renditions:      conf.Renditions,
		segmentSeconds:  seg,
		parallelEncodes: parallel,
		logger:          logger,
	}
}

// AssertReady checks both binaries are on PATH.
func (t *FFmpeg) AssertReady() error {
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.Wrapf(err, "missing required binary %q", bin)
		}
	}
	return nil
}

func (t *FFmpeg) probe(ctx context.Context, src string) (probeResult, error) {
	var res probeResult
	out, err := run(ctx, t.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", src)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(out, &res); err != nil {
		return res, errors.Wrap(err, "parsing ffprobe output")
	}
	return res, nil
}

func (t *FFmpeg) Probe(ctx context.Context, src string) (float64, error) {
	res, err := t.probe(ctx, src)
	if err != nil {
		return 0, err
	}
	if res.Format.Duration == "" {
		return 0, errors.New("ffprobe reported no duration")
	}
	duration, err := strconv.ParseFloat(res.Format.Duration, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing duration %q", res.Format.Duration)
	}
	return duration, nil
}

// Transcode encodes one HLS rendition per configured height not above the
// source height, in parallel, then writes the master playlist.
func (t *FFmpeg) Transcode(ctx context.Context, src, outDir string) error {
	res, err := t.probe(ctx, src)
	if err != nil {
		return err
	}
	srcWidth, srcHeight, hasAudio := 0, 0, false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if s.Height > srcHeight {
				srcWidth, srcHeight = s.Width, s.Height
			}
		case "audio":
			hasAudio = true
		}
	}
	if srcHeight == 0 {
		return errors.New("source has no video stream")
	}

	renditions := selectRenditions(t.renditions, srcHeight)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelEncodes)
	for _, r := range renditions {
		r := r
		g.Go(func() error {
			dir := filepath.Join(outDir, r.Name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "creating rendition directory")
			}
			if _, err := run(gctx, t.ffmpeg, t.renditionArgs(src, dir, r, hasAudio)...); err != nil {
				return errors.Wrapf(err, "encoding %s", r.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, video.MasterPlaylist), masterPlaylist(renditions, srcWidth, srcHeight), 0o644)
}

func (t *FFmpeg) renditionArgs(src, dir string, r core.Rendition, hasAudio bool) []string {
	seg := strconv.Itoa(t.segmentSeconds)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-map", "0:v:0",
	}
	if hasAudio {
		args = append(args, "-map", "0:a:0", "-c:a", "aac", "-b:a", r.AudioBitrate, "-ac", "2")
	}
	args = append(args,
		"-vf", "scale=-2:"+strconv.Itoa(r.Height),
		"-c:v", "libx264", "-preset", "veryfast", "-profile:v", "main",
		"-b:v", r.VideoBitrate, "-maxrate", r.VideoBitrate, "-bufsize", doubleRate(r.VideoBitrate),
		"-force_key_frames", "expr:gte(t,n_forced*"+seg+")",
		"-f", "hls",
		"-hls_time", seg,
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(dir, "seg_%05d.ts"),
		filepath.Join(dir, renditionPlaylist),
	)
	return args
}

// selectRenditions drops renditions taller than the source, keeping at least the smallest.
func selectRenditions(all []core.Rendition, srcHeight int) []core.Rendition {
	var out []core.Rendition
	var smallest *core.Rendition
	for i, r := range all {
		if r.Height <= srcHeight {
			out = append(out, r)
		}
		if smallest == nil || r.Height < smallest.Height {
			smallest = &all[i]
		}
	}
	if len(out) == 0 && smallest != nil {
		out = append(out, *smallest)
	}
	return out
}

// masterPlaylist advertises each rendition at the width scale=-2 gives it.
// Sources of unknown size are assumed 16:9.
func masterPlaylist(renditions []core.Rendition, srcWidth, srcHeight int) []byte {
	if srcWidth < 1 || srcHeight < 1 {
		srcWidth, srcHeight = 16, 9
	}
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		width := int(math.Round(float64(r.Height*srcWidth)/float64(2*srcHeight))) * 2
		fmt.Fprintf(&buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,NAME=%q\n",
			bitrate(r.VideoBitrate)+bitrate(r.AudioBitrate), width, r.Height, r.Name)
		buf.WriteString(r.Name + "/" + renditionPlaylist + "\n")
	}
	return buf.Bytes()
}

// bitrate parses ffmpeg rates such as 2800k or 5M into bits per second.
func bitrate(rate string) int {
	rate = strings.TrimSpace(strings.ToLower(rate))
	mult := 1
	switch {
	case strings.HasSuffix(rate, "k"):
		mult, rate = 1000, strings.TrimSuffix(rate, "k")
	case strings.HasSuffix(rate, "m"):
		mult, rate = 1000000, strings.TrimSuffix(rate, "m")
	}
	n, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return 0
	}
	return int(n * float64(mult))
}

func doubleRate(rate string) string {
	return strconv.Itoa(2*bitrate(rate)/1000) + "k"
}

func run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s", filepath.Base(bin))
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		return nil, errors.Wrapf(err, "%s: %s", filepath.Base(bin), msg)
	}
	return stdout.Bytes(), nil
}
