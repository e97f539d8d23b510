package processor

import (
	"context"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// Audio reads stream metadata and tags with ffprobe and renders a waveform
// image as the thumbnail.
type Audio struct {
	base
}

func (a *Audio) Category() media.Category { return media.CategoryAudio }

func (a *Audio) Process(ctx context.Context, rec *media.Record) error {
	const op = "audio.process"

	src, err := a.source(op, rec)
	if err != nil {
		return err
	}
	attrs := &media.AudioAttributes{}
	rec.Audio = attrs

	if !available(a.tools.FFprobe) {
		a.degrade(rec, "ffprobe", "audio metadata")
	} else {
		out, err := a.tools.FFprobe.Invoke(ctx, append(ffprobeArgs, src)...)
		if err != nil {
			return resilience.Permanent(op, err)
		}
		probe, err := parseProbe(out.Stdout)
		if err != nil {
			return resilience.Permanent(op, err)
		}
		fillAudio(attrs, probe)
	}

	a.thumbnail(ctx, rec, a.tools.FFmpeg, ".png", func(ctx context.Context, dst string) error {
		_, err := a.tools.FFmpeg.Invoke(ctx,
			"-y", "-i", src,
			"-filter_complex", "showwavespic=s=640x120:colors=#3b82f6",
			"-frames:v", "1",
			dst,
		)
		return err
	})
	return nil
}

func fillAudio(attrs *media.AudioAttributes, probe *probeOutput) {
	attrs.DurationSeconds = probe.duration()
	as := probe.stream("audio")
	if as != nil {
		attrs.Codec = nonEmpty(as.CodecName)
		attrs.SampleRate = parseInt(as.SampleRate)
		attrs.Channels = positive(as.Channels)
	}
	attrs.Bitrate = probe.bitrate(as)
	attrs.Title = probe.tag("title")
	attrs.Artist = probe.tag("artist")
	attrs.Album = probe.tag("album")
}
