// Package media defines the media record processed by the pipeline.
package media

import (
	"fmt"
	"time"
)

// Category is the discriminant of a Record.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
	CategoryAudio    Category = "audio"
	CategoryArchive  Category = "archive"
	CategoryOther    Category = "other"
)

// Categories lists every processable category in routing order.
func Categories() []Category {
	return []Category{CategoryImage, CategoryVideo, CategoryDocument, CategoryAudio, CategoryArchive}
}

// ParseCategory maps a stored string back to a Category.
func ParseCategory(s string) Category {
	switch c := Category(s); c {
	case CategoryImage, CategoryVideo, CategoryDocument, CategoryAudio, CategoryArchive:
		return c
	default:
		return CategoryOther
	}
}

// Status is a record's processing state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is one uploaded file. Exactly the payload matching Category may be
// set; Validate enforces that.
type Record struct {
	ID              string    `json:"id"`
	Category        Category  `json:"category"`
	StoragePath     string    `json:"storage_path"`
	MIMEType        string    `json:"mime_type"`
	Size            int64     `json:"size"`
	OriginalName    string    `json:"original_name,omitempty"`
	Checksum        string    `json:"checksum,omitempty"`
	Status          Status    `json:"status"`
	ProcessingError *string   `json:"processing_error,omitempty"`
	ThumbnailPath   *string   `json:"thumbnail_path,omitempty"`
	Degraded        []string  `json:"degraded,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Image    *ImageAttributes    `json:"image,omitempty"`
	Video    *VideoAttributes    `json:"video,omitempty"`
	Document *DocumentAttributes `json:"document,omitempty"`
	Audio    *AudioAttributes    `json:"audio,omitempty"`
	Archive  *ArchiveAttributes  `json:"archive,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`
}

// Validate checks that only the payload for the record's category is populated.
func (r *Record) Validate() error {
	set := map[Category]bool{
		CategoryImage:    r.Image != nil,
		CategoryVideo:    r.Video != nil,
		CategoryDocument: r.Document != nil,
		CategoryAudio:    r.Audio != nil,
		CategoryArchive:  r.Archive != nil,
	}
	for c, populated := range set {
		if populated && c != r.Category {
			return fmt.Errorf("media: %s record carries %s attributes", r.Category, c)
		}
	}
	return nil
}

// Fail marks the record failed with msg.
func (r *Record) Fail(msg string) {
	r.Status = StatusFailed
	r.ProcessingError = &msg
}

// Degrade records a capability notice without failing the record.
func (r *Record) Degrade(notice string) {
	for _, d := range r.Degraded {
		if d == notice {
			return
		}
	}
	r.Degraded = append(r.Degraded, notice)
}

// Attributes returns the populated category payload, or nil.
func (r *Record) Attributes() any {
	switch r.Category {
	case CategoryImage:
		if r.Image != nil {
			return r.Image
		}
	case CategoryVideo:
		if r.Video != nil {
			return r.Video
		}
	case CategoryDocument:
		if r.Document != nil {
			return r.Document
		}
	case CategoryAudio:
		if r.Audio != nil {
			return r.Audio
		}
	case CategoryArchive:
		if r.Archive != nil {
			return r.Archive
		}
	}
	return nil
}

// Fields is a partial update. Nil members are left untouched by the store.
type Fields struct {
	Status          *Status
	ProcessingError *string
	ClearError      bool
	ThumbnailPath   *string
	Attributes      any
	Analysis        *Analysis
	Degraded        []string
	ClearDegraded   bool
}

// UpdateSet builds the Fields that persist the record's processing outcome.
func (r *Record) UpdateSet() Fields {
	st := r.Status
	f := Fields{
		Status:        &st,
		ThumbnailPath: r.ThumbnailPath,
		Attributes:    r.Attributes(),
		Analysis:      r.Analysis,
		Degraded:      r.Degraded,
	}
	if r.ProcessingError != nil {
		f.ProcessingError = r.ProcessingError
	} else {
		f.ClearError = true
	}
	if len(r.Degraded) == 0 {
		f.Degraded = nil
		f.ClearDegraded = true
	}
	return f
}
