// Package orchestrator runs one processing pass over a media record: local
// metadata extraction, optional AI analysis and persistence of the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/mtiwari1/gophermedia/internal/hasher"
	"github.com/mtiwari1/gophermedia/internal/inference"
	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/processor"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// RecordStore is the persistence the orchestrator needs.
type RecordStore interface {
	Find(ctx context.Context, id string) (*media.Record, error)
	Update(ctx context.Context, id string, f media.Fields) error
}

// Analyzer is the AI surface. *inference.Gateway satisfies it.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, storagePath string) (*inference.ImageAnalysis, error)
	AnalyzeVideo(ctx context.Context, storagePath string) (*inference.VideoAnalysis, error)
	AnalyzeDocument(ctx context.Context, storagePath string) (*inference.DocumentAnalysis, error)
	TranscribeAudio(ctx context.Context, storagePath string) (*inference.Transcription, error)
}

type Deps struct {
	Store      RecordStore
	Analyzer   Analyzer
	Processors processor.Set
	Locator    processor.Locator
	// Enabled reports whether a category is sent for AI analysis. Nil disables analysis.
	Enabled func(media.Category) bool
	Logger  *slog.Logger
}

type Orchestrator struct {
	store      RecordStore
	analyzer   Analyzer
	processors processor.Set
	locator    processor.Locator
	enabled    func(media.Category) bool
	logger     *slog.Logger
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		store:      d.Store,
		analyzer:   d.Analyzer,
		processors: d.Processors,
		locator:    d.Locator,
		enabled:    d.Enabled,
		logger:     d.Logger,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.enabled == nil || o.analyzer == nil {
		o.enabled = func(media.Category) bool { return false }
	}
	return o
}

// ProcessByID loads the record and runs Process on it.
func (o *Orchestrator) ProcessByID(ctx context.Context, id string) (*media.Record, error) {
	rec, err := o.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orchestrator load %s: %w", id, err)
	}
	return o.Process(ctx, rec), nil
}

// Process runs a full pass and returns rec carrying the outcome. It never
// panics and never returns an error: failures are recorded on the record.
func (o *Orchestrator) Process(ctx context.Context, rec *media.Record) (out *media.Record) {
	logger := o.logger.With(
		slog.String("media_id", rec.ID),
		slog.String("category", string(rec.Category)),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("processing panicked", slog.Any("panic", r))
			rec.Fail(fmt.Sprintf("internal error: %v", r))
			o.persist(ctx, rec, rec.UpdateSet(), logger)
			out = rec
		}
	}()

	rec.Status = media.StatusProcessing
	rec.ProcessingError = nil
	rec.Degraded = nil
	st := media.StatusProcessing
	o.persist(ctx, rec, media.Fields{Status: &st, ClearError: true}, logger)

	if err := o.run(ctx, rec, logger); err != nil {
		rec.Fail(failureMessage(err))
		logger.Error("processing failed",
			slog.String("error", err.Error()),
			slog.String("kind", resilience.KindOf(err).String()),
			slog.Duration("latency", time.Since(start)),
		)
	} else {
		rec.Status = media.StatusCompleted
		logger.Info("processing completed",
			slog.Duration("latency", time.Since(start)),
			slog.Int("degraded", len(rec.Degraded)),
		)
	}

	o.persist(ctx, rec, rec.UpdateSet(), logger)
	return rec
}

func (o *Orchestrator) run(ctx context.Context, rec *media.Record, logger *slog.Logger) error {
	switch rec.Category {
	case media.CategoryImage:
		if err := o.imageDimensions(rec, logger); err != nil {
			return err
		}
	default:
		if p, ok := o.processors.For(rec.Category); ok {
			if err := p.Process(ctx, rec); err != nil {
				return err
			}
		}
	}

	if !analyzable(rec.Category) || !o.enabled(rec.Category) {
		return nil
	}
	return o.analyze(ctx, rec)
}

func analyzable(c media.Category) bool {
	switch c {
	case media.CategoryImage, media.CategoryVideo, media.CategoryDocument, media.CategoryAudio:
		return true
	}
	return false
}

// imageDimensions reads width and height natively. Formats the decoders do
// not know are a degradation, not a failure.
func (o *Orchestrator) imageDimensions(rec *media.Record, logger *slog.Logger) error {
	const op = "image.process"
	if o.locator == nil {
		return nil
	}
	src, err := o.locator.AbsPath(rec.StoragePath)
	if err != nil {
		return resilience.Permanent(op, err)
	}
	w, h, err := hasher.ImageDimensions(src)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return resilience.Permanent(op, fmt.Errorf("source file missing: %s", rec.StoragePath))
	case err != nil:
		logger.Warn("image dimensions unavailable", slog.String("error", err.Error()))
		rec.Degrade("image decoder unavailable: dimensions unknown")
		return nil
	}
	rec.Image = &media.ImageAttributes{Width: &w, Height: &h}
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, rec *media.Record) error {
	switch rec.Category {
	case media.CategoryImage:
		res, err := o.analyzer.AnalyzeImage(ctx, rec.StoragePath)
		if err != nil {
			return err
		}
		mergeImage(rec, res)
	case media.CategoryVideo:
		res, err := o.analyzer.AnalyzeVideo(ctx, rec.StoragePath)
		if err != nil {
			return err
		}
		mergeVideo(rec, res)
	case media.CategoryDocument:
		res, err := o.analyzer.AnalyzeDocument(ctx, rec.StoragePath)
		if err != nil {
			return err
		}
		mergeDocument(rec, res)
	case media.CategoryAudio:
		res, err := o.analyzer.TranscribeAudio(ctx, rec.StoragePath)
		if err != nil {
			return err
		}
		mergeAudio(rec, res)
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, rec *media.Record, f media.Fields, logger *slog.Logger) {
	if o.store == nil {
		return
	}
	if err := o.store.Update(context.WithoutCancel(ctx), rec.ID, f); err != nil {
		logger.Error("persist processing outcome failed",
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func failureMessage(err error) string {
	if resilience.IsCircuitOpen(err) {
		return "inference service unavailable: " + err.Error()
	}
	return err.Error()
}
