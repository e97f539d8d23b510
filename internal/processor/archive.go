package processor

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/resilience"
)

// Archive lists archive members. ZIP, TAR (optionally gzipped) and single
// gzip streams are read natively; 7z and RAR need the 7z tool.
type Archive struct {
	base
}

func (a *Archive) Category() media.Category { return media.CategoryArchive }

func (a *Archive) Process(ctx context.Context, rec *media.Record) error {
	const op = "archive.process"

	src, err := a.source(op, rec)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return resilience.Permanent(op, err)
	}

	format, err := sniffArchive(src)
	if err != nil {
		return resilience.Permanent(op, err)
	}

	var entries []media.ArchiveEntry
	switch format {
	case "zip":
		entries, err = listZip(src)
	case "tar", "tar.gz":
		entries, err = listTar(src, format == "tar.gz")
	case "gz":
		entries, err = listGzip(src, gzipMemberName(rec))
	case "7z", "rar":
		if !available(a.tools.SevenZip) {
			a.degrade(rec, "7z", format+" listing")
			rec.Archive = &media.ArchiveAttributes{Format: format, CompressedSize: info.Size(), Files: []media.ArchiveEntry{}}
			return nil
		}
		entries, err = a.list7z(ctx, src)
	default:
		err = fmt.Errorf("unrecognised archive format")
	}
	if err != nil {
		return resilience.Permanent(op, fmt.Errorf("list %s archive: %w", format, err))
	}

	rec.Archive = summarize(entries, format, info.Size(), a.opts.MaxArchiveEntries)
	return nil
}

func (a *Archive) list7z(ctx context.Context, src string) ([]media.ArchiveEntry, error) {
	out, err := a.tools.SevenZip.Invoke(ctx, "l", "-slt", src)
	if err != nil {
		return nil, err
	}
	return parse7zList(out.Stdout)
}

// summarize derives the archive attributes from a full member listing.
// Directory entries count towards FileCount.
func summarize(entries []media.ArchiveEntry, format string, archiveBytes int64, limit int) *media.ArchiveAttributes {
	attrs := &media.ArchiveAttributes{
		Format:         format,
		FileCount:      len(entries),
		CompressedSize: archiveBytes,
		FileTypes:      map[string]int{},
	}
	for _, e := range entries {
		attrs.UncompressedSize += e.Size
		if e.IsDir {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name))
		if ext == "" {
			ext = "(none)"
		}
		attrs.FileTypes[ext]++
	}
	if attrs.UncompressedSize > 0 {
		attrs.CompressionRatio = media.Ptr(float64(archiveBytes) / float64(attrs.UncompressedSize))
	}
	if limit > 0 && len(entries) > limit {
		attrs.Files = append([]media.ArchiveEntry(nil), entries[:limit]...)
		attrs.Truncated = true
	} else {
		attrs.Files = append([]media.ArchiveEntry{}, entries...)
	}
	return attrs
}

var (
	magicZip  = []byte("PK\x03\x04")
	magicZipE = []byte("PK\x05\x06")
	magicGzip = []byte{0x1f, 0x8b}
	magic7z   = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	magicRar  = []byte("Rar!\x1a\x07")
)

// sniffArchive identifies the format by magic bytes.
func sniffArchive(src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipE):
		return "zip", nil
	case bytes.HasPrefix(head, magicGzip):
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		if gzipHoldsTar(f) {
			return "tar.gz", nil
		}
		return "gz", nil
	case bytes.HasPrefix(head, magic7z):
		return "7z", nil
	case bytes.HasPrefix(head, magicRar):
		return "rar", nil
	case len(head) >= 262 && bytes.HasPrefix(head[257:], []byte("ustar")):
		return "tar", nil
	}
	return "", fmt.Errorf("unrecognised archive format")
}

// gzipHoldsTar reports whether the decompressed stream starts with a ustar header.
func gzipHoldsTar(r io.Reader) bool {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return false
	}
	defer gz.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(gz, head)
	return n >= 262 && bytes.HasPrefix(head[257:n], []byte("ustar"))
}

// gzipMemberName is the fallback member name when the gzip header has none.
func gzipMemberName(rec *media.Record) string {
	name := rec.OriginalName
	if name == "" {
		name = rec.StoragePath
	}
	name = path.Base(name)
	if trimmed := strings.TrimSuffix(name, ".gz"); trimmed != "" {
		return trimmed
	}
	return name
}

// listGzip reports a plain gzip stream as one member with its decompressed size.
func listGzip(src, fallbackName string) ([]media.ArchiveEntry, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	size, err := io.Copy(io.Discard, gz)
	if err != nil {
		return nil, err
	}
	name := gz.Name
	if name == "" {
		name = fallbackName
	}
	return []media.ArchiveEntry{{Name: name, Size: size}}, nil
}

func listZip(src string) ([]media.ArchiveEntry, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := make([]media.ArchiveEntry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, media.ArchiveEntry{
			Name:  f.Name,
			Size:  int64(f.UncompressedSize64),
			IsDir: f.FileInfo().IsDir(),
		})
	}
	return entries, nil
}

func listTar(src string, gzipped bool) ([]media.ArchiveEntry, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	var entries []media.ArchiveEntry
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		switch h.Typeflag {
		case tar.TypeDir:
			entries = append(entries, media.ArchiveEntry{Name: h.Name, IsDir: true})
		case tar.TypeReg:
			entries = append(entries, media.ArchiveEntry{Name: h.Name, Size: h.Size})
		}
	}
}

// parse7zList reads the technical listing printed by "7z l -slt". Member
// blocks follow the "----------" separator and are split by blank lines.
func parse7zList(out []byte) ([]media.ArchiveEntry, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		entries []media.ArchiveEntry
		cur     *media.ArchiveEntry
		started bool
	)
	flush := func() {
		if cur != nil && cur.Name != "" {
			entries = append(entries, *cur)
		}
		cur = nil
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !started {
			if strings.HasPrefix(line, "----------") {
				started = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, val, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		if cur == nil {
			cur = &media.ArchiveEntry{}
		}
		switch key {
		case "Path":
			cur.Name = val
		case "Size":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				cur.Size = n
			}
		case "Folder":
			cur.IsDir = val == "+"
		case "Attributes":
			if strings.HasPrefix(val, "D") {
				cur.IsDir = true
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !started {
		return nil, fmt.Errorf("7z listing has no member section")
	}
	return entries, nil
}
