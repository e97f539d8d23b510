// Package grpcserver implements the gophermedia gRPC service.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/repository"
	"github.com/mtiwari1/gophermedia/internal/resilience"
	"github.com/mtiwari1/gophermedia/internal/router"
	"github.com/mtiwari1/gophermedia/internal/worker"
	pb "github.com/mtiwari1/gophermedia/proto"
)

// Queue accepts asynchronous processing jobs and tracks which media are in
// flight. *worker.Pool satisfies it.
type Queue interface {
	Submit(job worker.Job) error
	Claim(id string) (release func(), err error)
}

type Deps struct {
	Repo   repository.Repository
	Router *router.Router
	// Runner performs synchronous passes for ProcessMedia with Wait set.
	Runner worker.Handler
	Queue  Queue
	Logger *slog.Logger
}

// Server implements the MediaServiceServer gRPC interface.
// Dependencies are injected via the constructor, no global state.
type Server struct {
	repo   repository.Repository
	router *router.Router
	runner worker.Handler
	queue  Queue
	logger *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		repo:   d.Repo,
		router: d.Router,
		runner: d.Runner,
		queue:  d.Queue,
		logger: d.Logger,
	}
}

// RegisterMedia creates a record for a file already in storage.
func (s *Server) RegisterMedia(ctx context.Context, req *pb.RegisterMediaRequest) (*pb.MediaReply, error) {
	if req.StoragePath == "" {
		return nil, status.Error(codes.InvalidArgument, "RegisterMedia: storage_path is required")
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "RegisterMedia: invalid id %q", id)
	}

	category, err := s.router.Classify(router.Upload{
		Name:     req.OriginalName,
		MIMEType: req.MIMEType,
		Size:     req.Size,
		Valid:    true,
	})
	if err != nil {
		return nil, mapError(err, "RegisterMedia")
	}

	rec := &media.Record{
		ID:           id,
		Category:     category,
		StoragePath:  req.StoragePath,
		MIMEType:     req.MIMEType,
		Size:         req.Size,
		OriginalName: req.OriginalName,
		Checksum:     req.Checksum,
		Status:       media.StatusPending,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, mapError(err, "RegisterMedia")
	}
	s.logger.Info("grpc RegisterMedia",
		slog.String("media_id", id),
		slog.String("category", string(category)),
		slog.String("storage_path", req.StoragePath),
	)

	if req.Process {
		if err := s.queue.Submit(worker.Job{Ctx: context.WithoutCancel(ctx), MediaID: id}); err != nil {
			return nil, mapError(err, "RegisterMedia")
		}
	}
	return &pb.MediaReply{Media: rec}, nil
}

func (s *Server) GetMedia(ctx context.Context, req *pb.GetMediaRequest) (*pb.MediaReply, error) {
	rec, err := s.repo.Find(ctx, req.ID)
	if err != nil {
		return nil, mapError(err, "GetMedia")
	}
	return &pb.MediaReply{Media: rec}, nil
}

func (s *Server) ListMedia(ctx context.Context, req *pb.ListMediaRequest) (*pb.ListMediaReply, error) {
	f := repository.Filter{Limit: req.Limit, Status: media.Status(req.Status)}
	if req.Category != "" {
		f.Category = media.ParseCategory(req.Category)
	}
	recs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, mapError(err, "ListMedia")
	}
	return &pb.ListMediaReply{Media: recs}, nil
}

// ProcessMedia queues a pass, or runs it inline when Wait is set.
func (s *Server) ProcessMedia(ctx context.Context, req *pb.ProcessMediaRequest) (*pb.ProcessMediaReply, error) {
	s.logger.Info("grpc ProcessMedia", slog.String("media_id", req.ID), slog.Bool("wait", req.Wait))

	if req.Wait {
		release, err := s.queue.Claim(req.ID)
		if err != nil {
			return nil, mapError(err, "ProcessMedia")
		}
		defer release()
		rec, err := s.runner.ProcessByID(ctx, req.ID)
		if err != nil {
			return nil, mapError(err, "ProcessMedia")
		}
		return &pb.ProcessMediaReply{ID: req.ID, Media: rec}, nil
	}

	if _, err := s.repo.Find(ctx, req.ID); err != nil {
		return nil, mapError(err, "ProcessMedia")
	}
	if err := s.queue.Submit(worker.Job{Ctx: context.WithoutCancel(ctx), MediaID: req.ID}); err != nil {
		return nil, mapError(err, "ProcessMedia")
	}
	return &pb.ProcessMediaReply{ID: req.ID, Queued: true}, nil
}

// UpdateStatus changes the processing status of a record. A non-failed
// status clears the stored error.
func (s *Server) UpdateStatus(ctx context.Context, req *pb.UpdateStatusRequest) (*pb.MediaReply, error) {
	s.logger.Info("grpc UpdateStatus",
		slog.String("media_id", req.ID),
		slog.String("new_status", req.Status),
	)

	st := media.Status(req.Status)
	switch st {
	case media.StatusPending, media.StatusProcessing, media.StatusCompleted, media.StatusFailed:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "UpdateStatus: unknown status %q", req.Status)
	}
	f := media.Fields{Status: &st}
	if req.Error != "" {
		f.ProcessingError = &req.Error
	} else if st != media.StatusFailed {
		f.ClearError = true
	}

	if err := s.repo.Update(ctx, req.ID, f); err != nil {
		return nil, mapError(err, "UpdateStatus")
	}
	rec, err := s.repo.Find(ctx, req.ID)
	if err != nil {
		return nil, mapError(err, "UpdateStatus")
	}
	return &pb.MediaReply{Media: rec}, nil
}

// mapError converts domain errors to gRPC status codes.
func mapError(err error, method string) error {
	var verr *router.ValidationError
	var rerr *resilience.Error
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: media not found", method)
	case errors.Is(err, repository.ErrDuplicate):
		return status.Errorf(codes.AlreadyExists, "%s: media already exists", method)
	case errors.Is(err, worker.ErrInFlight):
		return status.Errorf(codes.FailedPrecondition, "%s: media is already being processed", method)
	case errors.Is(err, worker.ErrPoolClosed):
		return status.Errorf(codes.Unavailable, "%s: server is shutting down", method)
	case errors.As(err, &verr):
		return status.Errorf(codes.InvalidArgument, "%s: %s", method, verr.Reason)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: deadline exceeded", method)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: request cancelled", method)
	case errors.As(err, &rerr):
		switch rerr.Kind {
		case resilience.KindTransient, resilience.KindCircuitOpen:
			return status.Errorf(codes.Unavailable, "%s: %v", method, err)
		case resilience.KindPermanent:
			return status.Errorf(codes.InvalidArgument, "%s: %v", method, err)
		}
	}
	return status.Errorf(codes.Internal, "%s: %v", method, err)
}

// UnaryLogger logs every unary call with its latency and status code.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call",
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
