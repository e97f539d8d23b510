package inference

import "encoding/json"

type imageRequest struct {
	ImagePath       string `json:"image_path"`
	UseOllama       bool   `json:"use_ollama"`
	DetectFaces     bool   `json:"detect_faces"`
	CaptioningModel string `json:"captioning_model"`
	EmbeddingModel  string `json:"embedding_model"`
	OllamaModel     string `json:"ollama_model"`
	DetectObjects   bool   `json:"detect_objects"`
	ExtractColors   bool   `json:"extract_colors"`
	AnalyzeQuality  bool   `json:"analyze_quality"`
	ComputeHashes   bool   `json:"compute_hashes"`
	ClassifyScene   bool   `json:"classify_scene"`
}

type videoRequest struct {
	VideoPath     string `json:"video_path"`
	ExtractFrames bool   `json:"extract_frames"`
	FrameInterval int    `json:"frame_interval"`
}

type documentRequest struct {
	DocumentPath string `json:"document_path"`
	PerformOCR   bool   `json:"perform_ocr"`
	OCREngine    string `json:"ocr_engine"`
	UseOllama    bool   `json:"use_ollama"`
	OllamaModel  string `json:"ollama_model"`
}

type audioRequest struct {
	AudioPath string  `json:"audio_path"`
	Language  *string `json:"language"`
}

type embedRequest struct {
	Query string `json:"query"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ImageAnalysis is the /analyze answer for an image.
type ImageAnalysis struct {
	Description         string           `json:"description"`
	DetailedDescription *string          `json:"detailed_description"`
	MetaTags            []string         `json:"meta_tags"`
	Embedding           []float32        `json:"embedding"`
	FaceCount           int              `json:"face_count"`
	Faces               []map[string]any `json:"faces"`
	FacesDetected       int              `json:"faces_detected"`
	FaceLocations       [][]int          `json:"face_locations"`
	FaceEncodings       [][]float32      `json:"face_encodings"`
	ThumbnailPath       *string          `json:"thumbnail_path"`
	ExtractedText       *string          `json:"extracted_text"`
	ObjectsDetected     map[string]any   `json:"objects_detected"`
	SceneClassification map[string]any   `json:"scene_classification"`
	DominantColors      []map[string]any `json:"dominant_colors"`
	ImageQuality        map[string]any   `json:"image_quality"`
	QualityTier         *string          `json:"quality_tier"`
	PHash               *string          `json:"phash"`
	DHash               *string          `json:"dhash"`
}

// FaceDetails returns per-face entries from either response shape: the
// detailed faces list, or parallel face_locations/face_encodings arrays.
func (a *ImageAnalysis) FaceDetails() []map[string]any {
	if len(a.Faces) > 0 {
		return a.Faces
	}
	var out []map[string]any
	for i, loc := range a.FaceLocations {
		face := map[string]any{"location": loc}
		if i < len(a.FaceEncodings) {
			face["encoding"] = a.FaceEncodings[i]
		}
		out = append(out, face)
	}
	return out
}

// FaceTotal is the reported face count, falling back to the number of
// face entries when the service sent none.
func (a *ImageAnalysis) FaceTotal() int {
	switch {
	case a.FaceCount > 0:
		return a.FaceCount
	case a.FacesDetected > 0:
		return a.FacesDetected
	}
	return len(a.FaceDetails())
}

// VideoAnalysis is the /analyze-video answer.
type VideoAnalysis struct {
	DurationSeconds   float64          `json:"duration_seconds"`
	FrameCount        int              `json:"frame_count"`
	FPS               float64          `json:"fps"`
	Resolution        string           `json:"resolution"`
	SceneDescriptions []map[string]any `json:"scene_descriptions"`
	Embedding         []float32        `json:"embedding"`
	ObjectsDetected   []string         `json:"objects_detected"`
	ThumbnailPath     *string          `json:"thumbnail_path"`
}

// DocumentAnalysis is the /analyze-document answer.
type DocumentAnalysis struct {
	ExtractedText            string         `json:"extracted_text"`
	PageCount                *int           `json:"page_count"`
	Summary                  *string        `json:"summary"`
	Keywords                 []string       `json:"keywords"`
	Embedding                []float32      `json:"embedding"`
	ThumbnailPath            *string        `json:"thumbnail_path"`
	DocumentType             *string        `json:"document_type"`
	ClassificationConfidence *float64       `json:"classification_confidence"`
	Entities                 map[string]any `json:"entities"`
}

// Transcription is the /transcribe-audio answer.
type Transcription struct {
	Text          string    `json:"text"`
	Language      string    `json:"language"`
	Confidence    float64   `json:"confidence"`
	Embedding     []float32 `json:"embedding"`
	ThumbnailPath *string   `json:"thumbnail_path"`
}

// Features is the service's capability set. The service reports it either
// as a list of names or as a name -> enabled map.
type Features map[string]bool

func (f *Features) UnmarshalJSON(b []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(b, &m); err == nil {
		*f = m
		return nil
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	m = make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	*f = m
	return nil
}

// HealthStatus is the /health answer.
type HealthStatus struct {
	Status       string   `json:"status"`
	ModelsLoaded bool     `json:"models_loaded"`
	Device       string   `json:"device"`
	Features     Features `json:"features"`
}

var (
	imageFields    = []field{{name: "description", nonNull: true}, {name: "embedding"}}
	videoFields    = []field{{name: "duration_seconds", nonNull: true}, {name: "embedding", nonNull: true}}
	documentFields = []field{{name: "extracted_text", nonNull: true}, {name: "embedding", nonNull: true}}
	audioFields    = []field{{name: "text", nonNull: true}, {name: "embedding", nonNull: true}}
	embedFields    = []field{{name: "embedding", nonNull: true}}
	healthFields   = []field{{name: "status"}}
)
