package media

import "testing"

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"empty video", Record{Category: CategoryVideo}, false},
		{"video with video payload", Record{Category: CategoryVideo, Video: &VideoAttributes{}}, false},
		{"video with archive payload", Record{Category: CategoryVideo, Archive: &ArchiveAttributes{}}, true},
		{"image with image payload", Record{Category: CategoryImage, Image: &ImageAttributes{}}, false},
		{"other with document payload", Record{Category: CategoryOther, Document: &DocumentAttributes{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"image", CategoryImage},
		{"archive", CategoryArchive},
		{"", CategoryOther},
		{"spreadsheet", CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRecord_UpdateSet(t *testing.T) {
	r := Record{Category: CategoryAudio, Status: StatusCompleted, Audio: &AudioAttributes{Codec: Ptr("mp3")}}
	f := r.UpdateSet()
	if f.Status == nil || *f.Status != StatusCompleted {
		t.Errorf("Status = %v", f.Status)
	}
	if !f.ClearError {
		t.Error("completed record should clear the previous error")
	}
	if f.Attributes != r.Audio {
		t.Error("Attributes should be the audio payload")
	}
	if !f.ClearDegraded || f.Degraded != nil {
		t.Errorf("clean pass should clear degraded notices, got %+v", f)
	}

	r.Degrade("ffprobe not installed")
	f = r.UpdateSet()
	if f.ClearDegraded || len(f.Degraded) != 1 {
		t.Errorf("degraded update set = %+v", f)
	}

	r.Fail("ffprobe failed: moov atom not found")
	f = r.UpdateSet()
	if f.ClearError || f.ProcessingError == nil || *f.ProcessingError == "" {
		t.Errorf("failed update set = %+v", f)
	}
}

func TestRecord_Degrade(t *testing.T) {
	var r Record
	r.Degrade("ffprobe not available")
	r.Degrade("ffprobe not available")
	r.Degrade("ffmpeg not available")
	if len(r.Degraded) != 2 {
		t.Errorf("Degraded = %v", r.Degraded)
	}
}
