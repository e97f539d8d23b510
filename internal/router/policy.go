package router

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mtiwari1/gophermedia/internal/media"
)

const (
	kib int64 = 1 << 10
	mib       = kib << 10
	gib       = mib << 10
)

// Bucket is one category's allow-list and ceiling.
type Bucket struct {
	Category  media.Category `yaml:"category"`
	MIMETypes []string       `yaml:"mime_types"`
	MaxBytes  int64          `yaml:"max_bytes"`
	Directory string         `yaml:"directory,omitempty"`
}

// Policy is the ordered list of buckets; the first match wins.
type Policy struct {
	Buckets []Bucket `yaml:"buckets"`
}

// DefaultPolicy covers the formats the processors and inference service handle.
func DefaultPolicy() Policy {
	return Policy{Buckets: []Bucket{
		{
			Category: media.CategoryImage,
			MIMETypes: []string{
				"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp",
				"image/tiff", "image/heic", "image/heif", "image/avif", "image/svg+xml",
			},
			MaxBytes: 50 * mib,
		},
		{
			Category: media.CategoryVideo,
			MIMETypes: []string{
				"video/mp4", "video/quicktime", "video/x-msvideo", "video/x-matroska",
				"video/webm", "video/mpeg", "video/x-flv", "video/3gpp",
			},
			MaxBytes: 2 * gib,
		},
		{
			Category: media.CategoryDocument,
			MIMETypes: []string{
				"application/pdf",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.ms-excel",
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				"application/vnd.ms-powerpoint",
				"application/vnd.openxmlformats-officedocument.presentationml.presentation",
				"application/vnd.oasis.opendocument.text",
				"application/rtf",
				"application/json",
				"text/plain", "text/markdown", "text/csv", "text/html",
			},
			MaxBytes: 100 * mib,
		},
		{
			Category: media.CategoryAudio,
			MIMETypes: []string{
				"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/ogg",
				"audio/flac", "audio/x-flac", "audio/aac", "audio/mp4", "audio/x-m4a", "audio/webm",
			},
			MaxBytes: 500 * mib,
		},
		{
			Category: media.CategoryArchive,
			MIMETypes: []string{
				"application/zip", "application/x-zip-compressed",
				"application/x-tar", "application/gzip", "application/x-gzip",
				"application/x-7z-compressed",
				"application/x-rar-compressed", "application/vnd.rar",
			},
			MaxBytes: gib,
		},
	}}
}

// LoadPolicy reads a YAML policy file. Buckets are matched in file order.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("router: read policy %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("router: parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate rejects buckets that could never route anything.
func (p Policy) Validate() error {
	if len(p.Buckets) == 0 {
		return fmt.Errorf("router: policy has no buckets")
	}
	for i, b := range p.Buckets {
		if media.ParseCategory(string(b.Category)) == media.CategoryOther {
			return fmt.Errorf("router: bucket %d: unknown category %q", i, b.Category)
		}
		if len(b.MIMETypes) == 0 {
			return fmt.Errorf("router: bucket %d (%s): empty mime_types", i, b.Category)
		}
		if b.MaxBytes <= 0 {
			return fmt.Errorf("router: bucket %d (%s): max_bytes must be positive", i, b.Category)
		}
	}
	return nil
}

// ExamplePolicy renders the default policy as YAML.
func ExamplePolicy() string {
	out, err := yaml.Marshal(DefaultPolicy())
	if err != nil {
		return ""
	}
	return "# Media routing policy. Buckets are matched top to bottom.\n" + strings.TrimSpace(string(out)) + "\n"
}
