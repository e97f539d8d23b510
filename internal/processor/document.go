package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

type docKind int

const (
	docUnknown docKind = iota
	docPDF
	docText
	docOffice
)

func (k docKind) String() string {
	switch k {
	case docPDF:
		return "pdf"
	case docText:
		return "text"
	case docOffice:
		return "office"
	default:
		return "unknown"
	}
}

var officeTypes = []string{
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/rtf",
}

func classifyDocument(mimeType, name string) docKind {
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case mimeType == "application/pdf":
		return docPDF
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/json":
		return docText
	case slices.Contains(officeTypes, mimeType):
		return docOffice
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return docPDF
	case ".txt", ".md", ".markdown", ".csv", ".json", ".html", ".htm":
		return docText
	case ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".rtf":
		return docOffice
	}
	return docUnknown
}

// Document extracts text and page counts. PDF page counts are read natively
// so they survive a missing pdftotext.
type Document struct {
	base
}

func (d *Document) Category() media.Category { return media.CategoryDocument }

func (d *Document) Process(ctx context.Context, rec *media.Record) error {
	const op = "document.process"

	src, err := d.source(op, rec)
	if err != nil {
		return err
	}
	kind := classifyDocument(rec.MIMEType, rec.StoragePath)
	attrs := &media.DocumentAttributes{Format: media.Ptr(kind.String())}
	rec.Document = attrs

	var text string
	var haveText bool

	switch kind {
	case docPDF:
		if n, err := api.PageCountFile(src); err != nil {
			d.logger.Warn("pdf page count failed", slog.String("media_id", rec.ID), slog.String("error", err.Error()))
		} else {
			attrs.PageCount = &n
		}
		if !available(d.tools.PDFToText) {
			d.degrade(rec, "pdftotext", "pdf text extraction")
		} else {
			out, err := d.tools.PDFToText.Invoke(ctx, "-layout", "-enc", "UTF-8", src, "-")
			if err != nil {
				return resilience.Permanent(op, err)
			}
			text, haveText = string(out.Stdout), true
		}
		d.thumbnail(ctx, rec, d.tools.PDFToPPM, ".jpg", func(ctx context.Context, dst string) error {
			_, err := d.tools.PDFToPPM.Invoke(ctx,
				"-jpeg", "-f", "1", "-l", "1",
				"-scale-to", fmt.Sprint(d.opts.ThumbnailWidth),
				"-singlefile", src, strings.TrimSuffix(dst, ".jpg"),
			)
			return err
		})

	case docText:
		t, err := readCapped(src, d.opts.MaxTextBytes+1)
		if err != nil {
			return resilience.Permanent(op, err)
		}
		text, haveText = t, true
		attrs.PageCount = media.Ptr(1)

	case docOffice:
		if !available(d.tools.Pandoc) {
			d.degrade(rec, "pandoc", "office text extraction")
		} else {
			out, err := d.tools.Pandoc.Invoke(ctx, "-t", "plain", "--wrap=none", src)
			if err != nil {
				return resilience.Permanent(op, err)
			}
			text, haveText = string(out.Stdout), true
		}

	default:
		d.logger.Info("no extractor for document type",
			slog.String("media_id", rec.ID),
			slog.String("mime_type", rec.MIMEType),
		)
	}

	if haveText {
		text, attrs.Truncated = truncateUTF8(strings.TrimSpace(text), d.opts.MaxTextBytes)
		attrs.ExtractedText = &text
		attrs.WordCount = media.Ptr(len(strings.Fields(text)))
	}
	return nil
}

func readCapped(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

// truncateUTF8 cuts s to at most limit bytes on a rune boundary.
func truncateUTF8(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
