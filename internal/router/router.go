// Package router classifies uploads into media categories, enforces the
// upload policy and chooses where accepted files are stored.
package router

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// Upload is what the router needs to know about an incoming file.
type Upload struct {
	Name     string
	MIMEType string
	Size     int64
	// Valid is false when the transport reported a broken or partial file.
	Valid bool
}

// ValidationError is a user-facing policy violation. It is always permanent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Router applies a Policy.
type Router struct {
	policy  Policy
	index   map[string]int
	prefix  string
	newName func() string
}

// New indexes policy for constant-time lookups. prefix is the storage root
// prefix (usually "public").
func New(policy Policy, prefix string) *Router {
	r := &Router{
		policy:  policy,
		index:   make(map[string]int),
		prefix:  prefix,
		newName: func() string { return uuid.New().String() },
	}
	for i, b := range policy.Buckets {
		for _, m := range b.MIMETypes {
			m = normalize(m)
			if _, dup := r.index[m]; !dup {
				r.index[m] = i
			}
		}
	}
	return r
}

func normalize(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// Detect maps a MIME type to the first bucket listing it, or CategoryOther.
func (r *Router) Detect(mimeType string) media.Category {
	if i, ok := r.index[normalize(mimeType)]; ok {
		return r.policy.Buckets[i].Category
	}
	return media.CategoryOther
}

func (r *Router) bucket(c media.Category) (Bucket, bool) {
	for _, b := range r.policy.Buckets {
		if b.Category == c {
			return b, true
		}
	}
	return Bucket{}, false
}

// MaxBytes returns the ceiling for c, or 0 when c has no bucket.
func (r *Router) MaxBytes(c media.Category) int64 {
	b, _ := r.bucket(c)
	return b.MaxBytes
}

// Validate checks u against category c's bucket.
func (r *Router) Validate(u Upload, c media.Category) error {
	const op = "router.validate"

	if !u.Valid {
		return resilience.Permanent(op, &ValidationError{Reason: "upload is incomplete or corrupted"})
	}
	b, ok := r.bucket(c)
	if !ok {
		return resilience.Permanent(op, &ValidationError{
			Reason: fmt.Sprintf("unsupported media type %q", normalize(u.MIMEType)),
		})
	}
	if i, ok := r.index[normalize(u.MIMEType)]; !ok || r.policy.Buckets[i].Category != c {
		return resilience.Permanent(op, &ValidationError{
			Reason: fmt.Sprintf("mime type %q is not allowed for %s", normalize(u.MIMEType), c),
		})
	}
	if u.Size > b.MaxBytes {
		return resilience.Permanent(op, &ValidationError{
			Reason: fmt.Sprintf("%s exceeds the %s limit of %d bytes (%d bytes)", displayName(u.Name), c, b.MaxBytes, u.Size),
		})
	}
	return nil
}

// Classify detects and validates in one step.
func (r *Router) Classify(u Upload) (media.Category, error) {
	c := r.Detect(u.MIMEType)
	return c, r.Validate(u, c)
}

// Destination returns the storage path for a new file of category c, for
// example "public/image/3f2c….jpg". Only the original extension survives.
func (r *Router) Destination(c media.Category, originalName string) string {
	dir := string(c)
	if b, ok := r.bucket(c); ok && b.Directory != "" {
		dir = b.Directory
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if strings.ContainsAny(ext, `/\`) || len(ext) > 16 {
		ext = ""
	}
	return path.Join(r.prefix, dir, r.newName()+ext)
}

func displayName(name string) string {
	if name == "" {
		return "file"
	}
	return filepath.Base(name)
}
