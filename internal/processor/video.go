package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// Video reads container and stream metadata with ffprobe and grabs a frame
// at one second for the thumbnail.
type Video struct {
	base
}

func (v *Video) Category() media.Category { return media.CategoryVideo }

func (v *Video) Process(ctx context.Context, rec *media.Record) error {
	const op = "video.process"

	src, err := v.source(op, rec)
	if err != nil {
		return err
	}
	attrs := &media.VideoAttributes{}
	rec.Video = attrs

	if !available(v.tools.FFprobe) {
		v.degrade(rec, "ffprobe", "video metadata")
	} else {
		out, err := v.tools.FFprobe.Invoke(ctx, append(ffprobeArgs, src)...)
		if err != nil {
			return resilience.Permanent(op, err)
		}
		probe, err := parseProbe(out.Stdout)
		if err != nil {
			return resilience.Permanent(op, err)
		}
		fillVideo(attrs, probe)
	}

	v.thumbnail(ctx, rec, v.tools.FFmpeg, ".jpg", func(ctx context.Context, dst string) error {
		_, err := v.tools.FFmpeg.Invoke(ctx,
			"-y", "-ss", "1", "-i", src,
			"-frames:v", "1",
			"-vf", fmt.Sprintf("scale=%d:-2", v.opts.ThumbnailWidth),
			dst,
		)
		return err
	})
	return nil
}

func fillVideo(attrs *media.VideoAttributes, probe *probeOutput) {
	attrs.DurationSeconds = probe.duration()
	if c, _, _ := strings.Cut(probe.Format.FormatName, ","); c != "" {
		attrs.Container = &c
	}

	vs := probe.stream("video")
	if vs != nil {
		attrs.VideoCodec = nonEmpty(vs.CodecName)
		attrs.Width = positive(vs.Width)
		attrs.Height = positive(vs.Height)
		if vs.Width > 0 && vs.Height > 0 {
			attrs.Resolution = media.Ptr(strconv.Itoa(vs.Width) + "x" + strconv.Itoa(vs.Height))
		}
		attrs.FrameRate = parseRate(vs.AvgFrameRate)
		if attrs.FrameRate == nil {
			attrs.FrameRate = parseRate(vs.RFrameRate)
		}
		attrs.FrameCount = parseInt(vs.NbFrames)
	}
	if as := probe.stream("audio"); as != nil {
		attrs.AudioCodec = nonEmpty(as.CodecName)
	}
	attrs.Bitrate = probe.bitrate(vs)
}
