package media

// Nil pointer fields mean "unknown", which is distinct from zero.

type ImageAttributes struct {
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

type VideoAttributes struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	Width           *int     `json:"width"`
	Height          *int     `json:"height"`
	Resolution      *string  `json:"resolution"`
	VideoCodec      *string  `json:"video_codec"`
	AudioCodec      *string  `json:"audio_codec"`
	FrameRate       *float64 `json:"frame_rate"`
	Bitrate         *int64   `json:"bitrate"`
	Container       *string  `json:"container"`
	FrameCount      *int     `json:"frame_count,omitempty"`
}

type DocumentAttributes struct {
	PageCount     *int    `json:"page_count"`
	ExtractedText *string `json:"extracted_text"`
	WordCount     *int    `json:"word_count"`
	Truncated     bool    `json:"truncated,omitempty"`
	// Format is the file family (pdf, text, office). DocumentType is the
	// content classification from analysis (invoice, receipt, ...).
	Format       *string `json:"format,omitempty"`
	DocumentType *string `json:"document_type,omitempty"`
}

type AudioAttributes struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	Codec           *string  `json:"codec"`
	Bitrate         *int64   `json:"bitrate"`
	SampleRate      *int     `json:"sample_rate"`
	Channels        *int     `json:"channels"`
	Title           *string  `json:"title,omitempty"`
	Artist          *string  `json:"artist,omitempty"`
	Album           *string  `json:"album,omitempty"`
	Transcript      *string  `json:"transcript,omitempty"`
	Language        *string  `json:"language,omitempty"`
}

// ArchiveEntry is one member of an archive listing.
type ArchiveEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_directory"`
}

type ArchiveAttributes struct {
	Format           string         `json:"format"`
	FileCount        int            `json:"file_count"`
	UncompressedSize int64          `json:"uncompressed_size"`
	CompressedSize   int64          `json:"compressed_size"`
	CompressionRatio *float64       `json:"compression_ratio"`
	FileTypes        map[string]int `json:"file_types,omitempty"`
	Files            []ArchiveEntry `json:"files"`
	Truncated        bool           `json:"truncated,omitempty"`
}

// Analysis is the semantic result from the inference service.
type Analysis struct {
	Description         string           `json:"description,omitempty"`
	DetailedDescription *string          `json:"detailed_description,omitempty"`
	Tags                []string         `json:"tags,omitempty"`
	Embedding           []float32        `json:"embedding,omitempty"`
	FaceCount           int              `json:"face_count,omitempty"`
	Faces               []map[string]any `json:"faces,omitempty"`
	Objects             any              `json:"objects,omitempty"`
	Scene               map[string]any   `json:"scene,omitempty"`
	DominantColors      []map[string]any `json:"dominant_colors,omitempty"`
	Quality             map[string]any   `json:"quality,omitempty"`
	PHash               *string          `json:"phash,omitempty"`
	DHash               *string          `json:"dhash,omitempty"`
	Summary             *string          `json:"summary,omitempty"`
	Keywords            []string         `json:"keywords,omitempty"`
	Transcript          *string          `json:"transcript,omitempty"`
	Language            *string          `json:"language,omitempty"`

	ClassificationConfidence *float64       `json:"classification_confidence,omitempty"`
	Entities                 map[string]any `json:"entities,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
