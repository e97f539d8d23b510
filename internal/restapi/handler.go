// Package restapi implements the REST gateway for media uploads.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtiwari1/gophermedia/internal/hasher"
	"github.com/mtiwari1/gophermedia/internal/resilience"
	"github.com/mtiwari1/gophermedia/internal/router"
	"github.com/mtiwari1/gophermedia/internal/storage"
	"github.com/mtiwari1/gophermedia/internal/toolprobe"
	pb "github.com/mtiwari1/gophermedia/proto"
)

type ctxKey struct{}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	// Media is the in-process gRPC service the REST layer delegates to.
	Media     pb.MediaServiceServer
	Storage   *storage.Disk
	Router    *router.Router
	MaxUpload int64
	DB        Pinger
	// Circuit reports the inference breaker; nil omits it from /healthz.
	Circuit func() resilience.CircuitState
	// Tools reports external tool availability; nil omits it from /healthz.
	Tools  func() []toolprobe.Status
	Logger *slog.Logger
}

// Handler holds dependencies for REST endpoints.
type Handler struct {
	media     pb.MediaServiceServer
	storage   *storage.Disk
	router    *router.Router
	maxUpload int64
	db        Pinger
	circuit   func() resilience.CircuitState
	tools     func() []toolprobe.Status
	logger    *slog.Logger
}

func NewHandler(d Deps) *Handler {
	if d.MaxUpload <= 0 {
		d.MaxUpload = 2 << 30
	}
	return &Handler{
		media:     d.Media,
		storage:   d.Storage,
		router:    d.Router,
		maxUpload: d.MaxUpload,
		db:        d.DB,
		circuit:   d.Circuit,
		tools:     d.Tools,
		logger:    d.Logger,
	}
}

// Routes returns the chi router with all REST routes attached.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/media", h.upload)
	r.Get("/media", h.list)
	r.Get("/media/{id}", h.get)
	r.Post("/media/{id}/reprocess", h.reprocess)
	r.Get("/healthz", h.healthz)
	return r
}

// requestLogger tags each request with a request_id and logs its outcome.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		logger := h.logger.With(slog.String("request_id", requestID))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKey{}, logger)))
		logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	})
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return h.logger
}

// ---------- POST /media ----------

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	logger := h.log(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the server limit")
			return
		}
		logger.Warn("form file error", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer file.Close()

	mimeType, err := uploadType(file, header)
	if err != nil {
		logger.Error("sniff upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	category, err := h.router.Classify(router.Upload{
		Name:     header.Filename,
		MIMEType: mimeType,
		Size:     header.Size,
		Valid:    true,
	})
	if err != nil {
		var verr *router.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	dest := h.router.Destination(category, header.Filename)
	size, err := h.storage.Put(dest, file)
	if err != nil {
		logger.Error("store upload", slog.String("path", dest), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	var checksum string
	if abs, err := h.storage.AbsPath(dest); err == nil {
		if fp, err := hasher.Compute(abs); err == nil {
			checksum = fp.Checksum
		} else {
			logger.Warn("fingerprint upload", slog.String("error", err.Error()))
		}
	}

	logger.Info("file saved to disk",
		slog.String("path", dest),
		slog.String("category", string(category)),
		slog.String("original_name", header.Filename),
		slog.Int64("size", size),
	)

	reply, err := h.media.RegisterMedia(r.Context(), &pb.RegisterMediaRequest{
		StoragePath:  dest,
		MIMEType:     mimeType,
		Size:         size,
		OriginalName: header.Filename,
		Checksum:     checksum,
		Process:      true,
	})
	if err != nil {
		logger.Error("grpc RegisterMedia", slog.String("error", err.Error()))
		if derr := h.storage.Delete(dest); derr != nil {
			logger.Warn("remove orphaned upload", slog.String("error", derr.Error()))
		}
		writeError(w, grpcToHTTPStatus(err), "failed to register media")
		return
	}

	w.Header().Set("Location", "/media/"+reply.Media.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":           reply.Media.ID,
		"status":       string(reply.Media.Status),
		"category":     string(reply.Media.Category),
		"storage_path": reply.Media.StoragePath,
	})
}

// uploadType trusts the part's declared type unless it is missing or generic,
// in which case the content is sniffed.
func uploadType(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := header.Header.Get("Content-Type")
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared, nil
	}
	sniffed, err := hasher.Sniff(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return sniffed, nil
}

// ---------- GET /media/{id} ----------

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reply, err := h.media.GetMedia(r.Context(), &pb.GetMediaRequest{ID: id})
	if err != nil {
		h.log(r).Warn("get media", slog.String("media_id", id), slog.String("error", err.Error()))
		writeError(w, grpcToHTTPStatus(err), status.Convert(err).Message())
		return
	}
	writeJSON(w, http.StatusOK, reply.Media)
}

// ---------- GET /media ----------

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &pb.ListMediaRequest{Category: q.Get("category"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}

	reply, err := h.media.ListMedia(r.Context(), req)
	if err != nil {
		h.log(r).Error("list media", slog.String("error", err.Error()))
		writeError(w, grpcToHTTPStatus(err), "failed to list media")
		return
	}
	writeJSON(w, http.StatusOK, reply.Media)
}

// ---------- POST /media/{id}/reprocess ----------

func (h *Handler) reprocess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wait := r.URL.Query().Get("wait") == "true"

	reply, err := h.media.ProcessMedia(r.Context(), &pb.ProcessMediaRequest{ID: id, Wait: wait})
	if err != nil {
		h.log(r).Warn("reprocess media", slog.String("media_id", id), slog.String("error", err.Error()))
		writeError(w, grpcToHTTPStatus(err), status.Convert(err).Message())
		return
	}
	if reply.Queued {
		w.Header().Set("Location", "/media/"+id)
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, reply.Media)
}

// ---------- GET /healthz ----------

// healthz verifies the database, local disk, inference breaker and tools.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]any{"status": "ok"}
	httpStatus := http.StatusOK
	degrade := func() {
		result["status"] = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			degrade()
			result["database"] = "unreachable: " + err.Error()
		} else {
			result["database"] = "connected"
		}
	}

	if err := h.storage.Writable(); err != nil {
		degrade()
		result["disk"] = err.Error()
	} else {
		result["disk"] = "ok"
	}

	// An open breaker or a missing tool degrades features, not availability.
	if h.circuit != nil {
		result["inference_circuit"] = h.circuit()
	}
	if h.tools != nil {
		result["tools"] = h.tools()
	}

	writeJSON(w, httpStatus, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// grpcToHTTPStatus maps gRPC status codes to HTTP status codes.
func grpcToHTTPStatus(err error) int {
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch st.Code() {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
