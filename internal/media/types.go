package media

import (
	"context"
	"time"

	"golang.org/x/text/language"
)

// AudioExtractor derives a speech-ready audio track from a video.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
}

// Prober inspects a media container.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// Muxer embeds subtitle tracks into a copy of a video.
type Muxer interface {
	MuxSubtitles(ctx context.Context, videoPath string, tracks []SubtitleTrack, outPath string) error
}

// Operator is everything the pipeline needs from the media toolchain.
type Operator interface {
	AudioExtractor
	Prober
	Muxer
}

// Stream is one elementary stream reported by the prober.
type Stream struct {
	Index     int          `json:"index"`
	CodecType string       `json:"codec_type"`
	CodecName string       `json:"codec_name"`
	Language  language.Tag `json:"language"`
	Title     string       `json:"title,omitempty"`
}

// ProbeResult summarizes a container.
type ProbeResult struct {
	Duration time.Duration `json:"duration"`
	Streams  []Stream      `json:"streams"`
}

// HasAudio reports whether the container has at least one audio stream.
func (r *ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// AudioLanguage is the tagged language of the first audio stream, or Und.
func (r *ProbeResult) AudioLanguage() language.Tag {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return s.Language
		}
	}
	return language.Und
}

// SubtitleTrack is an SRT file to embed with its language.
type SubtitleTrack struct {
	Path     string
	Language language.Tag
}
