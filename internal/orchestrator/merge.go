package orchestrator

import (
	"strings"

	"github.com/mtiwari1/gophermedia/internal/inference"
	"github.com/mtiwari1/gophermedia/internal/media"
)

func mergeImage(rec *media.Record, res *inference.ImageAnalysis) {
	a := &media.Analysis{
		Description:         res.Description,
		DetailedDescription: res.DetailedDescription,
		Tags:                res.MetaTags,
		Embedding:           res.Embedding,
		FaceCount:           res.FaceTotal(),
		Faces:               res.FaceDetails(),
		Scene:               res.SceneClassification,
		DominantColors:      res.DominantColors,
		Quality:             res.ImageQuality,
		PHash:               res.PHash,
		DHash:               res.DHash,
	}
	if len(res.ObjectsDetected) > 0 {
		a.Objects = res.ObjectsDetected
	}
	if res.QualityTier != nil {
		if a.Quality == nil {
			a.Quality = map[string]any{}
		}
		a.Quality["tier"] = *res.QualityTier
	}
	rec.Analysis = a
	adoptThumbnail(rec, res.ThumbnailPath)
}

func mergeVideo(rec *media.Record, res *inference.VideoAnalysis) {
	a := &media.Analysis{
		Tags:      res.ObjectsDetected,
		Embedding: res.Embedding,
	}
	var scenes []string
	for _, s := range res.SceneDescriptions {
		if d, ok := s["description"].(string); ok && d != "" {
			scenes = append(scenes, d)
		}
	}
	if len(scenes) > 0 {
		a.Description = scenes[0]
		if len(scenes) > 1 {
			a.DetailedDescription = media.Ptr(strings.Join(scenes, "\n"))
		}
	}
	rec.Analysis = a

	// Probe results win; the service only fills what ffprobe could not.
	if rec.Video == nil {
		rec.Video = &media.VideoAttributes{}
	}
	v := rec.Video
	if v.DurationSeconds == nil && res.DurationSeconds > 0 {
		v.DurationSeconds = media.Ptr(res.DurationSeconds)
	}
	if v.FrameRate == nil && res.FPS > 0 {
		v.FrameRate = media.Ptr(res.FPS)
	}
	if v.FrameCount == nil && res.FrameCount > 0 {
		v.FrameCount = media.Ptr(res.FrameCount)
	}
	if v.Resolution == nil && res.Resolution != "" {
		v.Resolution = media.Ptr(res.Resolution)
	}
	adoptThumbnail(rec, res.ThumbnailPath)
}

func mergeDocument(rec *media.Record, res *inference.DocumentAnalysis) {
	rec.Analysis = &media.Analysis{
		Summary:                  res.Summary,
		Keywords:                 res.Keywords,
		Tags:                     res.Keywords,
		Embedding:                res.Embedding,
		ClassificationConfidence: res.ClassificationConfidence,
		Entities:                 res.Entities,
	}
	if res.Summary != nil {
		rec.Analysis.Description = *res.Summary
	}

	if rec.Document == nil {
		rec.Document = &media.DocumentAttributes{}
	}
	d := rec.Document
	if (d.ExtractedText == nil || *d.ExtractedText == "") && strings.TrimSpace(res.ExtractedText) != "" {
		text := strings.TrimSpace(res.ExtractedText)
		d.ExtractedText = &text
		d.WordCount = media.Ptr(len(strings.Fields(text)))
	}
	if d.PageCount == nil && res.PageCount != nil {
		d.PageCount = res.PageCount
	}
	if res.DocumentType != nil && *res.DocumentType != "" {
		d.DocumentType = res.DocumentType
	}
	adoptThumbnail(rec, res.ThumbnailPath)
}

func mergeAudio(rec *media.Record, res *inference.Transcription) {
	if rec.Audio == nil {
		rec.Audio = &media.AudioAttributes{}
	}
	a := &media.Analysis{Embedding: res.Embedding}
	if res.Text != "" {
		rec.Audio.Transcript = media.Ptr(res.Text)
		a.Transcript = rec.Audio.Transcript
	}
	if res.Language != "" {
		rec.Audio.Language = media.Ptr(res.Language)
		a.Language = rec.Audio.Language
	}
	rec.Analysis = a
	adoptThumbnail(rec, res.ThumbnailPath)
}

func adoptThumbnail(rec *media.Record, p *string) {
	if rec.ThumbnailPath == nil && p != nil && *p != "" {
		rec.ThumbnailPath = p
	}
}
