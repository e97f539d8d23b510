// Package config loads service configuration from the environment.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/mtiwari1/gophermedia/internal/media"
)

type ServerCfg struct {
	HTTPAddr    string
	GRPCAddr    string
	Workers     int
	StorageRoot string
	MaxUpload   int64
	LogLevel    slog.Level
}

type DatabaseCfg struct {
	Driver string
	DSN    string
}

type CacheCfg struct {
	Backend       string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type RetryCfg struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	UseJitter    bool
}

type BreakerCfg struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Timeout pairs the standard deadline with the one used when the heavier
// local-language-model pass is enabled.
type Timeout struct {
	Standard time.Duration
	WithLLM  time.Duration
}

// Select returns WithLLM when llm is on and one is configured.
func (t Timeout) Select(llm bool) time.Duration {
	if llm && t.WithLLM > 0 {
		return t.WithLLM
	}
	return t.Standard
}

type ImageOptions struct {
	Endpoint        string
	CaptioningModel string
	EmbeddingModel  string
	DetectFaces     bool
	UseOllama       bool
	OllamaModel     string
	Timeout         Timeout
}

type VideoOptions struct {
	ExtractFrames bool
	FrameInterval int
	UseOllama     bool
	Timeout       Timeout
}

type DocumentOptions struct {
	PerformOCR  bool
	OCREngine   string
	UseOllama   bool
	OllamaModel string
	Timeout     Timeout
}

type AudioOptions struct {
	Language string
	Timeout  Timeout
}

type InferenceCfg struct {
	BaseURL       string
	SharedRoot    string
	LocalPrefix   string
	Image         ImageOptions
	Video         VideoOptions
	Document      DocumentOptions
	Audio         AudioOptions
	EmbedTimeout  time.Duration
	HealthTimeout time.Duration
	Retry         RetryCfg
	Breaker       BreakerCfg
	Categories    map[media.Category]bool
}

// Enabled reports whether category c is sent for AI analysis.
func (i InferenceCfg) Enabled(c media.Category) bool {
	return i.Categories[c]
}

type ProcessingCfg struct {
	ToolTimeout       time.Duration
	MaxTextBytes      int
	MaxArchiveEntries int
	ThumbnailWidth    int
	PolicyFile        string
}

type Config struct {
	ServerCfg
	DatabaseCfg
	CacheCfg
	InferenceCfg
	ProcessingCfg
}

type In struct {
	HTTPAddr    string `env:"HTTP_ADDR, default=:8080"`
	GRPCAddr    string `env:"GRPC_ADDR, default=:50051"`
	Workers     int    `env:"WORKERS, default=5"`
	StorageRoot string `env:"STORAGE_ROOT, default=./data"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB, default=2048"`
	LogLevel    string `env:"LOG_LEVEL, default=info"`

	DBDriver string `env:"DB_DRIVER, default=mysql"`
	DBDSN    string `env:"DB_DSN, default=root:password@tcp(127.0.0.1:3306)/gophermedia?parseTime=true"`

	CacheBackend  string        `env:"CACHE_BACKEND, default=memory"`
	RedisAddress  string        `env:"REDIS_ADDRESS, default=localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB, default=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL, default=24h"`

	AIBaseURL     string `env:"AI_SERVICE_URL, default=http://localhost:8000"`
	AISharedRoot  string `env:"AI_SHARED_ROOT, default=/shared"`
	AILocalPrefix string `env:"AI_LOCAL_PREFIX, default=public"`

	AIImageEndpoint    string        `env:"AI_IMAGE_ENDPOINT, default=/analyze"`
	AICaptioningModel  string        `env:"AI_CAPTIONING_MODEL, default=florence"`
	AIEmbeddingModel   string        `env:"AI_EMBEDDING_MODEL, default=aimv2"`
	AIDetectFaces      bool          `env:"AI_DETECT_FACES, default=true"`
	AIUseOllama        bool          `env:"AI_USE_OLLAMA, default=false"`
	AIOllamaModel      string        `env:"AI_OLLAMA_MODEL, default=llava:13b-v1.6"`
	AIImageTimeout     time.Duration `env:"AI_IMAGE_TIMEOUT, default=120s"`
	AIImageLLMTimeout  time.Duration `env:"AI_IMAGE_LLM_TIMEOUT, default=300s"`
	AIVideoFrames      bool          `env:"AI_VIDEO_EXTRACT_FRAMES, default=true"`
	AIVideoInterval    int           `env:"AI_VIDEO_FRAME_INTERVAL, default=30"`
	AIVideoUseOllama   bool          `env:"AI_VIDEO_USE_OLLAMA, default=false"`
	AIVideoTimeout     time.Duration `env:"AI_VIDEO_TIMEOUT, default=300s"`
	AIVideoLLMTimeout  time.Duration `env:"AI_VIDEO_LLM_TIMEOUT, default=600s"`
	AIDocOCR           bool          `env:"AI_DOCUMENT_OCR, default=true"`
	AIDocOCREngine     string        `env:"AI_DOCUMENT_OCR_ENGINE, default=auto"`
	AIDocUseOllama     bool          `env:"AI_DOCUMENT_USE_OLLAMA, default=false"`
	AIDocOllamaModel   string        `env:"AI_DOCUMENT_OLLAMA_MODEL, default=qwen2.5:7b"`
	AIDocTimeout       time.Duration `env:"AI_DOCUMENT_TIMEOUT, default=120s"`
	AIDocLLMTimeout    time.Duration `env:"AI_DOCUMENT_LLM_TIMEOUT, default=300s"`
	AIAudioLanguage    string        `env:"AI_AUDIO_LANGUAGE"`
	AIAudioTimeout     time.Duration `env:"AI_AUDIO_TIMEOUT, default=300s"`
	AIEmbedTimeout     time.Duration `env:"AI_EMBED_TIMEOUT, default=30s"`
	AIHealthTimeout    time.Duration `env:"AI_HEALTH_TIMEOUT, default=5s"`
	AIAnalyzeImages    bool          `env:"AI_ANALYZE_IMAGES, default=true"`
	AIAnalyzeVideos    bool          `env:"AI_ANALYZE_VIDEOS, default=true"`
	AIAnalyzeDocuments bool          `env:"AI_ANALYZE_DOCUMENTS, default=true"`
	AIAnalyzeAudio     bool          `env:"AI_ANALYZE_AUDIO, default=true"`

	RetryMaxAttempts  int           `env:"AI_RETRY_MAX_ATTEMPTS, default=3"`
	RetryInitialDelay time.Duration `env:"AI_RETRY_INITIAL_DELAY, default=1s"`
	RetryMaxDelay     time.Duration `env:"AI_RETRY_MAX_DELAY, default=30s"`
	RetryMultiplier   float64       `env:"AI_RETRY_MULTIPLIER, default=2"`
	RetryJitter       bool          `env:"AI_RETRY_JITTER, default=true"`

	BreakerThreshold int           `env:"AI_BREAKER_THRESHOLD, default=5"`
	BreakerRecovery  time.Duration `env:"AI_BREAKER_RECOVERY, default=60s"`

	ToolTimeout       time.Duration `env:"TOOL_TIMEOUT, default=120s"`
	MaxTextBytes      int           `env:"MAX_EXTRACTED_TEXT_BYTES, default=1048576"`
	MaxArchiveEntries int           `env:"MAX_ARCHIVE_ENTRIES, default=1000"`
	ThumbnailWidth    int           `env:"THUMBNAIL_WIDTH, default=320"`
	PolicyFile        string        `env:"MEDIA_POLICY_FILE"`
}

// LoadCfg reads the process environment.
func LoadCfg(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from an arbitrary lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var input In

	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := envconfig.ProcessWith(c, &envconfig.Config{Target: &input, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := validate(input); err != nil {
		return Config{}, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(input.LogLevel)); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	cfg := Config{
		ServerCfg: ServerCfg{
			HTTPAddr:    input.HTTPAddr,
			GRPCAddr:    input.GRPCAddr,
			Workers:     input.Workers,
			StorageRoot: input.StorageRoot,
			MaxUpload:   input.MaxUploadMB << 20,
			LogLevel:    level,
		},
		DatabaseCfg: DatabaseCfg{
			Driver: input.DBDriver,
			DSN:    input.DBDSN,
		},
		CacheCfg: CacheCfg{
			Backend:       input.CacheBackend,
			RedisAddress:  input.RedisAddress,
			RedisPassword: input.RedisPassword,
			RedisDB:       input.RedisDB,
			TTL:           input.CacheTTL,
		},
		InferenceCfg: InferenceCfg{
			BaseURL:     strings.TrimRight(input.AIBaseURL, "/"),
			SharedRoot:  input.AISharedRoot,
			LocalPrefix: input.AILocalPrefix,
			Image: ImageOptions{
				Endpoint:        input.AIImageEndpoint,
				CaptioningModel: input.AICaptioningModel,
				EmbeddingModel:  input.AIEmbeddingModel,
				DetectFaces:     input.AIDetectFaces,
				UseOllama:       input.AIUseOllama,
				OllamaModel:     input.AIOllamaModel,
				Timeout:         Timeout{Standard: input.AIImageTimeout, WithLLM: input.AIImageLLMTimeout},
			},
			Video: VideoOptions{
				ExtractFrames: input.AIVideoFrames,
				FrameInterval: input.AIVideoInterval,
				UseOllama:     input.AIVideoUseOllama,
				Timeout:       Timeout{Standard: input.AIVideoTimeout, WithLLM: input.AIVideoLLMTimeout},
			},
			Document: DocumentOptions{
				PerformOCR:  input.AIDocOCR,
				OCREngine:   input.AIDocOCREngine,
				UseOllama:   input.AIDocUseOllama,
				OllamaModel: input.AIDocOllamaModel,
				Timeout:     Timeout{Standard: input.AIDocTimeout, WithLLM: input.AIDocLLMTimeout},
			},
			Audio: AudioOptions{
				Language: input.AIAudioLanguage,
				Timeout:  Timeout{Standard: input.AIAudioTimeout},
			},
			EmbedTimeout:  input.AIEmbedTimeout,
			HealthTimeout: input.AIHealthTimeout,
			Retry: RetryCfg{
				MaxAttempts:  input.RetryMaxAttempts,
				InitialDelay: input.RetryInitialDelay,
				MaxDelay:     input.RetryMaxDelay,
				Multiplier:   input.RetryMultiplier,
				UseJitter:    input.RetryJitter,
			},
			Breaker: BreakerCfg{
				FailureThreshold: input.BreakerThreshold,
				RecoveryTimeout:  input.BreakerRecovery,
			},
			Categories: map[media.Category]bool{
				media.CategoryImage:    input.AIAnalyzeImages,
				media.CategoryVideo:    input.AIAnalyzeVideos,
				media.CategoryDocument: input.AIAnalyzeDocuments,
				media.CategoryAudio:    input.AIAnalyzeAudio,
			},
		},
		ProcessingCfg: ProcessingCfg{
			ToolTimeout:       input.ToolTimeout,
			MaxTextBytes:      input.MaxTextBytes,
			MaxArchiveEntries: input.MaxArchiveEntries,
			ThumbnailWidth:    input.ThumbnailWidth,
			PolicyFile:        input.PolicyFile,
		},
	}

	return cfg, nil
}

func validate(in In) error {
	if in.Workers < 1 {
		return fmt.Errorf("config: WORKERS must be >= 1, got %d", in.Workers)
	}
	switch in.DBDriver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("config: DB_DRIVER must be mysql or sqlite3, got %q", in.DBDriver)
	}
	switch in.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: CACHE_BACKEND must be memory or redis, got %q", in.CacheBackend)
	}
	u, err := url.Parse(in.AIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: AI_SERVICE_URL must be an absolute URL, got %q", in.AIBaseURL)
	}
	if in.RetryMaxAttempts < 1 {
		return fmt.Errorf("config: AI_RETRY_MAX_ATTEMPTS must be >= 1, got %d", in.RetryMaxAttempts)
	}
	if in.RetryMultiplier < 1 {
		return fmt.Errorf("config: AI_RETRY_MULTIPLIER must be >= 1, got %v", in.RetryMultiplier)
	}
	if in.BreakerThreshold < 1 {
		return fmt.Errorf("config: AI_BREAKER_THRESHOLD must be >= 1, got %d", in.BreakerThreshold)
	}
	if !strings.HasPrefix(in.AISharedRoot, "/") {
		return fmt.Errorf("config: AI_SHARED_ROOT must be absolute, got %q", in.AISharedRoot)
	}
	return nil
}
