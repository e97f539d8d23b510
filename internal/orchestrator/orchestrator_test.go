package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mtiwari1/gophermedia/internal/inference"
	"github.com/mtiwari1/gophermedia/internal/media"
	"github.com/mtiwari1/gophermedia/internal/processor"
	"github.com/mtiwari1/gophermedia/internal/repository"
	"github.com/mtiwari1/gophermedia/internal/resilience"
	"github.com/mtiwari1/gophermedia/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*media.Record
	updates []media.Fields
	failAll bool
}

func (s *fakeStore) Find(_ context.Context, id string) (*media.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, _ string, f media.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("database is locked")
	}
	s.updates = append(s.updates, f)
	return nil
}

func (s *fakeStore) statuses() []media.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []media.Status
	for _, f := range s.updates {
		if f.Status != nil {
			out = append(out, *f.Status)
		}
	}
	return out
}

type fakeAnalyzer struct {
	calls    int
	err      error
	image    *inference.ImageAnalysis
	video    *inference.VideoAnalysis
	document *inference.DocumentAnalysis
	audio    *inference.Transcription
}

func (f *fakeAnalyzer) AnalyzeImage(context.Context, string) (*inference.ImageAnalysis, error) {
	f.calls++
	return f.image, f.err
}

func (f *fakeAnalyzer) AnalyzeVideo(context.Context, string) (*inference.VideoAnalysis, error) {
	f.calls++
	return f.video, f.err
}

func (f *fakeAnalyzer) AnalyzeDocument(context.Context, string) (*inference.DocumentAnalysis, error) {
	f.calls++
	return f.document, f.err
}

func (f *fakeAnalyzer) TranscribeAudio(context.Context, string) (*inference.Transcription, error) {
	f.calls++
	return f.audio, f.err
}

type fakeProcessor struct {
	category media.Category
	fn       func(rec *media.Record) error
}

func (p fakeProcessor) Category() media.Category { return p.category }

func (p fakeProcessor) Process(_ context.Context, rec *media.Record) error { return p.fn(rec) }

func allEnabled(media.Category) bool { return true }

func newOrchestrator(t *testing.T, store *fakeStore, an *fakeAnalyzer, procs processor.Set) (*Orchestrator, *storage.Disk) {
	t.Helper()
	disk, err := storage.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return New(Deps{
		Store:      store,
		Analyzer:   an,
		Processors: procs,
		Locator:    disk,
		Enabled:    allEnabled,
		Logger:     discard,
	}), disk
}

func videoProcessor(fn func(rec *media.Record) error) processor.Set {
	return processor.Set{media.CategoryVideo: fakeProcessor{category: media.CategoryVideo, fn: fn}}
}

func TestProcess_VideoCompletedWithAnalysis(t *testing.T) {
	store := &fakeStore{}
	an := &fakeAnalyzer{video: &inference.VideoAnalysis{
		DurationSeconds:   99,
		FPS:               25,
		SceneDescriptions: []map[string]any{{"description": "a dog runs"}, {"description": "a dog sleeps"}},
		ObjectsDetected:   []string{"dog"},
		ThumbnailPath:     media.Ptr("public/video/thumbnails/ai.jpg"),
	}}
	procs := videoProcessor(func(rec *media.Record) error {
		rec.Video = &media.VideoAttributes{DurationSeconds: media.Ptr(12.0)}
		return nil
	})
	o, _ := newOrchestrator(t, store, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "v1", Category: media.CategoryVideo, StoragePath: "public/video/v1.mp4"})

	if rec.Status != media.StatusCompleted || rec.ProcessingError != nil {
		t.Fatalf("status = %s err = %v", rec.Status, rec.ProcessingError)
	}
	if *rec.Video.DurationSeconds != 12 {
		t.Errorf("probe duration overwritten: %v", *rec.Video.DurationSeconds)
	}
	if rec.Video.FrameRate == nil || *rec.Video.FrameRate != 25 {
		t.Errorf("FrameRate gap not filled: %v", rec.Video.FrameRate)
	}
	if rec.Analysis.Description != "a dog runs" || len(rec.Analysis.Tags) != 1 {
		t.Errorf("Analysis = %+v", rec.Analysis)
	}
	if rec.ThumbnailPath == nil || *rec.ThumbnailPath != "public/video/thumbnails/ai.jpg" {
		t.Errorf("ThumbnailPath = %v", rec.ThumbnailPath)
	}

	got := store.statuses()
	if len(got) != 2 || got[0] != media.StatusProcessing || got[1] != media.StatusCompleted {
		t.Errorf("persisted statuses = %v", got)
	}
	if !store.updates[0].ClearError {
		t.Error("processing update should clear the previous error")
	}
}

func TestProcess_ProcessorThumbnailWins(t *testing.T) {
	an := &fakeAnalyzer{video: &inference.VideoAnalysis{ThumbnailPath: media.Ptr("ai.jpg")}}
	procs := videoProcessor(func(rec *media.Record) error {
		rec.ThumbnailPath = media.Ptr("local.jpg")
		return nil
	})
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if *rec.ThumbnailPath != "local.jpg" {
		t.Errorf("ThumbnailPath = %s", *rec.ThumbnailPath)
	}
}

func TestProcess_CircuitOpen(t *testing.T) {
	an := &fakeAnalyzer{err: resilience.CircuitOpen(inference.BreakerName)}
	procs := videoProcessor(func(*media.Record) error { return nil })
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if rec.Status != media.StatusFailed {
		t.Fatalf("Status = %s", rec.Status)
	}
	if !strings.HasPrefix(*rec.ProcessingError, "inference service unavailable: ") {
		t.Errorf("ProcessingError = %q", *rec.ProcessingError)
	}
}

func TestProcess_ProcessorFailureSkipsAnalysis(t *testing.T) {
	an := &fakeAnalyzer{}
	procs := videoProcessor(func(*media.Record) error {
		return resilience.Permanent("video.process", errors.New("ffprobe failed: moov atom not found"))
	})
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if rec.Status != media.StatusFailed || !strings.Contains(*rec.ProcessingError, "moov atom") {
		t.Errorf("record = %s %v", rec.Status, rec.ProcessingError)
	}
	if an.calls != 0 {
		t.Errorf("analyzer called %d times after processor failure", an.calls)
	}
}

func TestProcess_ArchiveNeverAnalyzed(t *testing.T) {
	an := &fakeAnalyzer{}
	procs := processor.Set{media.CategoryArchive: fakeProcessor{
		category: media.CategoryArchive,
		fn: func(rec *media.Record) error {
			rec.Archive = &media.ArchiveAttributes{Format: "zip", FileCount: 3}
			return nil
		},
	}}
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	for _, c := range []media.Category{media.CategoryArchive, media.CategoryOther} {
		rec := o.Process(context.Background(), &media.Record{ID: "a", Category: c})
		if rec.Status != media.StatusCompleted {
			t.Errorf("%s: Status = %s", c, rec.Status)
		}
	}
	if an.calls != 0 {
		t.Errorf("analyzer called %d times", an.calls)
	}
}

func TestProcess_CategoryDisabled(t *testing.T) {
	an := &fakeAnalyzer{}
	o, _ := newOrchestrator(t, &fakeStore{}, an, videoProcessor(func(*media.Record) error { return nil }))
	o.enabled = func(c media.Category) bool { return c != media.CategoryVideo }

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if rec.Status != media.StatusCompleted || an.calls != 0 {
		t.Errorf("status=%s calls=%d", rec.Status, an.calls)
	}
}

func TestProcess_ImageDimensionsAndAnalysis(t *testing.T) {
	an := &fakeAnalyzer{image: &inference.ImageAnalysis{
		Description:   "two people",
		MetaTags:      []string{"people"},
		FacesDetected: 2,
		FaceLocations: [][]int{{1, 2, 3, 4}, {5, 6, 7, 8}},
		QualityTier:   media.Ptr("high"),
		ThumbnailPath: media.Ptr("public/image/thumbnails/p_thumb.jpg"),
	}}
	o, disk := newOrchestrator(t, &fakeStore{}, an, nil)

	writePNG(t, filepath.Join(disk.Root(), "public", "image", "p.png"), 40, 30)

	rec := o.Process(context.Background(), &media.Record{ID: "p", Category: media.CategoryImage, StoragePath: "public/image/p.png"})
	if rec.Status != media.StatusCompleted {
		t.Fatalf("Status = %s (%v)", rec.Status, rec.ProcessingError)
	}
	if rec.Image == nil || *rec.Image.Width != 40 || *rec.Image.Height != 30 {
		t.Errorf("Image = %+v", rec.Image)
	}
	if rec.Analysis.FaceCount != 2 || len(rec.Analysis.Faces) != 2 || rec.Analysis.Quality["tier"] != "high" {
		t.Errorf("Analysis = %+v", rec.Analysis)
	}
	if rec.ThumbnailPath == nil {
		t.Error("AI thumbnail not adopted")
	}
}

func TestProcess_ImageUndecodableIsDegraded(t *testing.T) {
	o, disk := newOrchestrator(t, &fakeStore{}, &fakeAnalyzer{image: &inference.ImageAnalysis{Description: "x"}}, nil)
	path := filepath.Join(disk.Root(), "public", "image", "h.heic")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("not an image"), 0o644)

	rec := o.Process(context.Background(), &media.Record{ID: "h", Category: media.CategoryImage, StoragePath: "public/image/h.heic"})
	if rec.Status != media.StatusCompleted || len(rec.Degraded) != 1 || rec.Image != nil {
		t.Errorf("record = %s degraded=%v image=%v", rec.Status, rec.Degraded, rec.Image)
	}
}

func TestProcess_ImageMissingFails(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeStore{}, &fakeAnalyzer{}, nil)
	rec := o.Process(context.Background(), &media.Record{ID: "m", Category: media.CategoryImage, StoragePath: "public/image/gone.png"})
	if rec.Status != media.StatusFailed {
		t.Errorf("Status = %s", rec.Status)
	}
}

func TestProcess_DocumentTextFallback(t *testing.T) {
	an := &fakeAnalyzer{document: &inference.DocumentAnalysis{
		ExtractedText: "scanned words here",
		PageCount:     media.Ptr(4),
		Summary:       media.Ptr("a scan"),
		Keywords:      []string{"scan"},
	}}
	procs := processor.Set{media.CategoryDocument: fakeProcessor{
		category: media.CategoryDocument,
		fn: func(rec *media.Record) error {
			rec.Document = &media.DocumentAttributes{PageCount: media.Ptr(3)}
			rec.Degrade("pdftotext not installed: pdf text extraction unavailable")
			return nil
		},
	}}
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "d", Category: media.CategoryDocument})
	d := rec.Document
	if d.ExtractedText == nil || *d.ExtractedText != "scanned words here" || *d.WordCount != 3 {
		t.Errorf("text fallback = %+v", d)
	}
	if *d.PageCount != 3 {
		t.Errorf("PageCount = %d, native count should win", *d.PageCount)
	}
	if rec.Analysis.Summary == nil || *rec.Analysis.Summary != "a scan" {
		t.Errorf("Analysis = %+v", rec.Analysis)
	}
	if len(rec.Degraded) != 1 {
		t.Errorf("Degraded = %v", rec.Degraded)
	}
}

func TestProcess_DocumentClassificationKeepsFormat(t *testing.T) {
	an := &fakeAnalyzer{document: &inference.DocumentAnalysis{
		Summary:                  media.Ptr("March invoice from ACME"),
		DocumentType:             media.Ptr("invoice"),
		ClassificationConfidence: media.Ptr(0.91),
		Entities:                 map[string]any{"ORG": []any{"ACME"}},
	}}
	procs := processor.Set{media.CategoryDocument: fakeProcessor{
		category: media.CategoryDocument,
		fn: func(rec *media.Record) error {
			rec.Document = &media.DocumentAttributes{Format: media.Ptr("pdf"), PageCount: media.Ptr(2)}
			return nil
		},
	}}
	o, _ := newOrchestrator(t, &fakeStore{}, an, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "inv", Category: media.CategoryDocument})
	d := rec.Document
	if d.DocumentType == nil || *d.DocumentType != "invoice" {
		t.Errorf("DocumentType = %v, want invoice", d.DocumentType)
	}
	if d.Format == nil || *d.Format != "pdf" {
		t.Errorf("Format = %v, want pdf", d.Format)
	}
	a := rec.Analysis
	if a.ClassificationConfidence == nil || *a.ClassificationConfidence != 0.91 {
		t.Errorf("ClassificationConfidence = %v", a.ClassificationConfidence)
	}
	if _, ok := a.Entities["ORG"]; !ok {
		t.Errorf("Entities = %v", a.Entities)
	}
}

func TestProcess_AudioTranscript(t *testing.T) {
	an := &fakeAnalyzer{audio: &inference.Transcription{Text: "hello there", Language: "en"}}
	o, _ := newOrchestrator(t, &fakeStore{}, an, nil)

	rec := o.Process(context.Background(), &media.Record{ID: "a", Category: media.CategoryAudio})
	if rec.Audio == nil || *rec.Audio.Transcript != "hello there" || *rec.Audio.Language != "en" {
		t.Errorf("Audio = %+v", rec.Audio)
	}
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	procs := videoProcessor(func(*media.Record) error { panic("nil map write") })
	store := &fakeStore{}
	o, _ := newOrchestrator(t, store, &fakeAnalyzer{}, procs)

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if rec.Status != media.StatusFailed || !strings.Contains(*rec.ProcessingError, "nil map write") {
		t.Errorf("record = %s %v", rec.Status, rec.ProcessingError)
	}
	got := store.statuses()
	if got[len(got)-1] != media.StatusFailed {
		t.Errorf("persisted statuses = %v", got)
	}
}

func TestProcess_PersistFailureKeepsOutcome(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeStore{failAll: true}, &fakeAnalyzer{}, videoProcessor(func(*media.Record) error { return nil }))
	o.enabled = func(media.Category) bool { return false }

	rec := o.Process(context.Background(), &media.Record{ID: "v", Category: media.CategoryVideo})
	if rec.Status != media.StatusCompleted {
		t.Errorf("Status = %s", rec.Status)
	}
}

func TestProcessByID(t *testing.T) {
	store := &fakeStore{records: map[string]*media.Record{
		"v": {ID: "v", Category: media.CategoryVideo, Status: media.StatusFailed, ProcessingError: media.Ptr("old")},
	}}
	o, _ := newOrchestrator(t, store, &fakeAnalyzer{video: &inference.VideoAnalysis{}}, videoProcessor(func(*media.Record) error { return nil }))

	rec, err := o.ProcessByID(context.Background(), "v")
	if err != nil {
		t.Fatalf("ProcessByID: %v", err)
	}
	if rec.Status != media.StatusCompleted || rec.ProcessingError != nil {
		t.Errorf("record = %s %v", rec.Status, rec.ProcessingError)
	}

	if _, err := o.ProcessByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}
