// Package hasher fingerprints stored media: streaming SHA256, content
// sniffing and native image dimensions.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Fingerprint is what the pipeline learns about a file without external tools.
type Fingerprint struct {
	Checksum string // hex-encoded SHA256
	Size     int64
	MIMEType string // sniffed from the first 512 bytes
}

// Sniff detects the content type from the head of r.
func Sniff(r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("hasher: read head: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

// Compute streams the file through SHA256 and sniffs its type.
func Compute(filePath string) (*Fingerprint, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("hasher: open file: %w", err)
	}
	defer f.Close()

	mimeType, err := Sniff(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("hasher: seek: %w", err)
	}

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("hasher: copy: %w", err)
	}

	return &Fingerprint{
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Size:     size,
		MIMEType: mimeType,
	}, nil
}

// ImageDimensions decodes only the image header.
func ImageDimensions(filePath string) (width, height int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("hasher: open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("hasher: decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// IsText reports whether a sniffed type is plain text.
func IsText(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}
