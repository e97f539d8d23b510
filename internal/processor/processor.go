// Package processor extracts structural metadata for each media category
// using external tools. A missing tool degrades the result; it never fails
// the record.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
	"github.com/mtiwari1/gophermedia/internal/toolprobe"
)

// Processor fills in the category payload of a record.
type Processor interface {
	Category() media.Category
	Process(ctx context.Context, rec *media.Record) error
}

// Locator maps storage paths to files on disk.
type Locator interface {
	AbsPath(storagePath string) (string, error)
}

// Tools are the external programs processors may call.
type Tools struct {
	FFprobe   toolprobe.Tool
	FFmpeg    toolprobe.Tool
	PDFToText toolprobe.Tool
	PDFToPPM  toolprobe.Tool
	Pandoc    toolprobe.Tool
	SevenZip  toolprobe.Tool
}

// ToolNames lists every program referenced by NewTools.
var ToolNames = []string{"ffprobe", "ffmpeg", "pdftotext", "pdftoppm", "pandoc", "7z"}

// NewTools binds every tool to probe with a shared invocation timeout.
func NewTools(probe *toolprobe.Probe, timeout time.Duration) Tools {
	return Tools{
		FFprobe:   toolprobe.NewTool(probe, "ffprobe", timeout),
		FFmpeg:    toolprobe.NewTool(probe, "ffmpeg", timeout),
		PDFToText: toolprobe.NewTool(probe, "pdftotext", timeout),
		PDFToPPM:  toolprobe.NewTool(probe, "pdftoppm", timeout),
		Pandoc:    toolprobe.NewTool(probe, "pandoc", timeout),
		SevenZip:  toolprobe.NewTool(probe, "7z", timeout),
	}
}

type Options struct {
	MaxTextBytes      int
	MaxArchiveEntries int
	ThumbnailWidth    int
}

func (o Options) withDefaults() Options {
	if o.MaxTextBytes <= 0 {
		o.MaxTextBytes = 1 << 20
	}
	if o.MaxArchiveEntries <= 0 {
		o.MaxArchiveEntries = 1000
	}
	if o.ThumbnailWidth <= 0 {
		o.ThumbnailWidth = 320
	}
	return o
}

// Set holds one processor per category.
type Set map[media.Category]Processor

// NewSet builds the video, audio, document and archive processors.
func NewSet(tools Tools, loc Locator, opts Options, logger *slog.Logger) Set {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	b := base{tools: tools, loc: loc, opts: opts, logger: logger}
	s := Set{}
	for _, p := range []Processor{
		&Video{base: b},
		&Audio{base: b},
		&Document{base: b},
		&Archive{base: b},
	} {
		s[p.Category()] = p
	}
	return s
}

// For returns the processor for c, if any.
func (s Set) For(c media.Category) (Processor, bool) {
	p, ok := s[c]
	return p, ok
}

type base struct {
	tools  Tools
	loc    Locator
	opts   Options
	logger *slog.Logger
}

func (b base) source(op string, rec *media.Record) (string, error) {
	p, err := b.loc.AbsPath(rec.StoragePath)
	if err != nil {
		return "", resilience.Permanent(op, err)
	}
	if _, err := os.Stat(p); err != nil {
		return "", resilience.Permanent(op, fmt.Errorf("source file: %w", err))
	}
	return p, nil
}

// degrade records that tool is missing and what is lost because of it.
func (b base) degrade(rec *media.Record, tool, lost string) {
	notice := fmt.Sprintf("%s not installed: %s unavailable", tool, lost)
	b.logger.Warn("capability degraded",
		slog.String("media_id", rec.ID),
		slog.String("tool", tool),
		slog.String("notice", notice),
	)
	rec.Degrade(notice)
}

// thumbnailTarget returns the storage path and absolute path for a
// thumbnail of rec: "<dir>/thumbnails/<name>_thumb<ext>".
func (b base) thumbnailTarget(rec *media.Record, ext string) (string, string, error) {
	dir, file := path.Split(rec.StoragePath)
	name := strings.TrimSuffix(file, path.Ext(file))
	storagePath := path.Join(dir, "thumbnails", name+"_thumb"+ext)
	abs, err := b.loc.AbsPath(storagePath)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", "", err
	}
	return storagePath, abs, nil
}

// thumbnail runs generate and records the thumbnail on success. Failures are
// logged only.
func (b base) thumbnail(ctx context.Context, rec *media.Record, tool toolprobe.Tool, ext string, generate func(ctx context.Context, dst string) error) {
	if tool == nil || !tool.Available() {
		name := "thumbnail tool"
		if tool != nil {
			name = tool.Name()
		}
		b.degrade(rec, name, "thumbnail")
		return
	}
	storagePath, abs, err := b.thumbnailTarget(rec, ext)
	if err == nil {
		err = generate(ctx, abs)
	}
	if err == nil {
		if _, serr := os.Stat(abs); serr != nil {
			err = fmt.Errorf("thumbnail not written: %w", serr)
		}
	}
	if err != nil {
		b.logger.Warn("thumbnail generation failed",
			slog.String("media_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	rec.ThumbnailPath = &storagePath
}

func available(t toolprobe.Tool) bool {
	return t != nil && t.Available()
}
