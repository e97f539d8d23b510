// Package inference is the resilient client for the AI inference service.
// Every analysis call goes through the result cache first and then through
// retry(breaker(http)).
package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mtiwari1/gophermedia/internal/cache"
	"github.com/mtiwari1/gophermedia/internal/config"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// BreakerName is the name of the breaker guarding the inference service.
const BreakerName = "inference"

// Deps are the collaborators of a Gateway. Nil members get defaults.
type Deps struct {
	Cache   *cache.ResultCache
	Breaker *resilience.CircuitBreaker
	Retry   *resilience.RetryPolicy
	HTTP    *http.Client
	// Resolve maps a storage path to the local file it names.
	Resolve func(storagePath string) string
	Logger  *slog.Logger
}

type Gateway struct {
	cfg     config.InferenceCfg
	client  *client
	paths   PathMapper
	cache   *cache.ResultCache
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryPolicy
	resolve func(string) string
	flight  singleflight.Group
	logger  *slog.Logger
}

func NewGateway(cfg config.InferenceCfg, d Deps) *Gateway {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	br := d.Breaker
	if br == nil {
		br = resilience.NewBreaker(BreakerName, resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		}, time.Now, logger)
	}
	rp := d.Retry
	if rp == nil {
		rp = (&resilience.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			UseJitter:    cfg.Retry.UseJitter,
		}).WithLogger(logger)
	}
	hc := d.HTTP
	if hc == nil {
		hc = &http.Client{}
	}
	resolve := d.Resolve
	if resolve == nil {
		resolve = func(p string) string { return p }
	}
	return &Gateway{
		cfg:     cfg,
		client:  &client{base: cfg.BaseURL, http: hc},
		paths:   PathMapper{LocalPrefix: cfg.LocalPrefix, SharedRoot: cfg.SharedRoot},
		cache:   d.Cache,
		breaker: br,
		retry:   rp,
		resolve: resolve,
		logger:  logger,
	}
}

// Circuit reports the breaker's current state.
func (g *Gateway) Circuit() resilience.CircuitState {
	return g.breaker.Snapshot()
}

// Paths returns the mapper used for shared-volume translation.
func (g *Gateway) Paths() PathMapper { return g.paths }

type call[T any] struct {
	op       string
	endpoint string
	path     string
	timeout  time.Duration
	body     any
	required []field
	fixup    func(*T)
}

// analyze is the shared cache -> single-flight -> retry(breaker) pipeline.
func analyze[T any](ctx context.Context, g *Gateway, c call[T]) (*T, error) {
	local, err := filepath.Abs(g.resolve(c.path))
	if err != nil {
		local = g.resolve(c.path)
	}

	var cached T
	if g.cache != nil && g.cache.Get(ctx, local, &cached) {
		g.logger.Debug("inference cache hit", slog.String("op", c.op), slog.String("path", c.path))
		return &cached, nil
	}

	v, err, shared := g.flight.Do(c.op+"|"+local, func() (any, error) {
		start := time.Now()
		out, err := resilience.Do(ctx, c.op, g.retry, g.breaker, func(ctx context.Context) (*T, error) {
			var out T
			if err := g.client.call(ctx, http.MethodPost, c.endpoint, c.timeout, c.body, c.required, &out); err != nil {
				return nil, err
			}
			return &out, nil
		})
		if err != nil {
			g.logger.Warn("inference call failed",
				slog.String("op", c.op),
				slog.String("path", c.path),
				slog.String("kind", resilience.KindOf(err).String()),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		if c.fixup != nil {
			c.fixup(out)
		}
		if g.cache != nil {
			g.cache.Put(ctx, local, out, 0)
		}
		g.logger.Info("inference call complete",
			slog.String("op", c.op),
			slog.String("path", c.path),
			slog.Duration("duration", time.Since(start)),
		)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	res := v.(*T)
	if shared {
		return clone(res), nil
	}
	return res, nil
}

// clone deep-copies a result handed to several single-flight callers so none
// of them sees another's writes to slices or maps.
func clone[T any](v *T) *T {
	if b, err := json.Marshal(v); err == nil {
		var cp T
		if err := json.Unmarshal(b, &cp); err == nil {
			return &cp
		}
	}
	cp := *v
	return &cp
}

// AnalyzeImage captions, tags and embeds the image at storagePath.
func (g *Gateway) AnalyzeImage(ctx context.Context, storagePath string) (*ImageAnalysis, error) {
	o := g.cfg.Image
	return analyze(ctx, g, call[ImageAnalysis]{
		op:       "analyze_image",
		endpoint: o.Endpoint,
		path:     storagePath,
		timeout:  o.Timeout.Select(o.UseOllama),
		body: imageRequest{
			ImagePath:       g.paths.ToShared(storagePath),
			UseOllama:       o.UseOllama,
			DetectFaces:     o.DetectFaces,
			CaptioningModel: o.CaptioningModel,
			EmbeddingModel:  o.EmbeddingModel,
			OllamaModel:     o.OllamaModel,
			DetectObjects:   true,
			ExtractColors:   true,
			AnalyzeQuality:  true,
			ComputeHashes:   true,
			ClassifyScene:   o.UseOllama,
		},
		required: imageFields,
		fixup:    func(a *ImageAnalysis) { a.ThumbnailPath = g.paths.fromSharedPtr(a.ThumbnailPath) },
	})
}

func (g *Gateway) AnalyzeVideo(ctx context.Context, storagePath string) (*VideoAnalysis, error) {
	o := g.cfg.Video
	return analyze(ctx, g, call[VideoAnalysis]{
		op:       "analyze_video",
		endpoint: "/analyze-video",
		path:     storagePath,
		timeout:  o.Timeout.Select(o.UseOllama),
		body: videoRequest{
			VideoPath:     g.paths.ToShared(storagePath),
			ExtractFrames: o.ExtractFrames,
			FrameInterval: o.FrameInterval,
		},
		required: videoFields,
		fixup:    func(a *VideoAnalysis) { a.ThumbnailPath = g.paths.fromSharedPtr(a.ThumbnailPath) },
	})
}

func (g *Gateway) AnalyzeDocument(ctx context.Context, storagePath string) (*DocumentAnalysis, error) {
	o := g.cfg.Document
	return analyze(ctx, g, call[DocumentAnalysis]{
		op:       "analyze_document",
		endpoint: "/analyze-document",
		path:     storagePath,
		timeout:  o.Timeout.Select(o.UseOllama),
		body: documentRequest{
			DocumentPath: g.paths.ToShared(storagePath),
			PerformOCR:   o.PerformOCR,
			OCREngine:    o.OCREngine,
			UseOllama:    o.UseOllama,
			OllamaModel:  o.OllamaModel,
		},
		required: documentFields,
		fixup:    func(a *DocumentAnalysis) { a.ThumbnailPath = g.paths.fromSharedPtr(a.ThumbnailPath) },
	})
}

func (g *Gateway) TranscribeAudio(ctx context.Context, storagePath string) (*Transcription, error) {
	o := g.cfg.Audio
	var lang *string
	if o.Language != "" {
		lang = &o.Language
	}
	return analyze(ctx, g, call[Transcription]{
		op:       "transcribe_audio",
		endpoint: "/transcribe-audio",
		path:     storagePath,
		timeout:  o.Timeout.Standard,
		body: audioRequest{
			AudioPath: g.paths.ToShared(storagePath),
			Language:  lang,
		},
		required: audioFields,
		fixup:    func(a *Transcription) { a.ThumbnailPath = g.paths.fromSharedPtr(a.ThumbnailPath) },
	})
}

// EmbedText embeds a search query. Results are not cached.
func (g *Gateway) EmbedText(ctx context.Context, query string) ([]float32, error) {
	out, err := resilience.Do(ctx, "embed_text", g.retry, g.breaker, func(ctx context.Context) (*embedResponse, error) {
		var out embedResponse
		if err := g.client.call(ctx, http.MethodPost, "/embed-text", g.cfg.EmbedTimeout, embedRequest{Query: query}, embedFields, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// Health asks the service for its status. It goes through the breaker but is
// never retried.
func (g *Gateway) Health(ctx context.Context) (*HealthStatus, error) {
	return resilience.Do(ctx, "health", nil, g.breaker, func(ctx context.Context) (*HealthStatus, error) {
		var out HealthStatus
		if err := g.client.call(ctx, http.MethodGet, "/health", g.cfg.HealthTimeout, nil, healthFields, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}
