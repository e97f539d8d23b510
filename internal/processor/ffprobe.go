package processor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	NbFrames     string            `json:"nb_frames"`
	SampleRate   string            `json:"sample_rate"`
	Channels     int               `json:"channels"`
	BitRate      string            `json:"bit_rate"`
	Tags         map[string]string `json:"tags"`
}

type probeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// ffprobeArgs is the fixed argument list; the input path is appended.
var ffprobeArgs = []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams"}

func parseProbe(data []byte) (*probeOutput, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 && out.Format.FormatName == "" {
		return nil, fmt.Errorf("parse ffprobe output: no streams or format")
	}
	return &out, nil
}

// stream returns the first stream of the given codec type.
func (p *probeOutput) stream(kind string) *probeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == kind {
			return &p.Streams[i]
		}
	}
	return nil
}

// tag looks a metadata tag up case-insensitively, format tags first.
func (p *probeOutput) tag(name string) *string {
	for _, tags := range []map[string]string{p.Format.Tags, streamTags(p.stream("audio"))} {
		for k, v := range tags {
			if strings.EqualFold(k, name) && strings.TrimSpace(v) != "" {
				v = strings.TrimSpace(v)
				return &v
			}
		}
	}
	return nil
}

func streamTags(s *probeStream) map[string]string {
	if s == nil {
		return nil
	}
	return s.Tags
}

func (p *probeOutput) duration() *float64 {
	return parseFloat(p.Format.Duration)
}

// bitrate prefers the container bitrate and falls back to the stream's.
func (p *probeOutput) bitrate(s *probeStream) *int64 {
	if v := parseInt64(p.Format.BitRate); v != nil {
		return v
	}
	if s != nil {
		return parseInt64(s.BitRate)
	}
	return nil
}

func parseFloat(s string) *float64 {
	if s == "" || s == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt64(s string) *int64 {
	if s == "" || s == "N/A" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	v := parseInt64(s)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// parseRate turns "30000/1001" or "25" into frames per second.
func parseRate(s string) *float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n == 0 {
		return nil
	}
	v := n / d
	return &v
}

func positive(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
