package repository

import (
	"context"
	"errors"

	"github.com/mtiwari1/gophermedia/internal/media"
)

var (
	ErrNotFound  = errors.New("repository: media not found")
	ErrDuplicate = errors.New("repository: media already exists")
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Category media.Category
	Status   media.Status
	Limit    int
}

// Repository is a small, focused interface for media record persistence.
// Implementations must honour the supplied context for cancellation and timeouts.
type Repository interface {
	// Create inserts a new record. CreatedAt and UpdatedAt are set if zero.
	Create(ctx context.Context, rec *media.Record) error

	// Find retrieves a record by its UUID.
	Find(ctx context.Context, id string) (*media.Record, error)

	// Update applies a partial update in a single statement.
	Update(ctx context.Context, id string, f media.Fields) error

	// List returns the most recent records first.
	List(ctx context.Context, f Filter) ([]*media.Record, error)
}
