package jobs

import (
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/translator"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusDownloading     Status = "downloading"
	StatusExtractingAudio Status = "extracting_audio"
	StatusTranscribing    Status = "transcribing"
	StatusTranslating     Status = "translating"
	StatusAssembling      Status = "assembling"
	StatusDone            Status = "done"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

// Stages lists the working states in execution order.
var Stages = []Status{
	StatusDownloading,
	StatusExtractingAudio,
	StatusTranscribing,
	StatusTranslating,
	StatusAssembling,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// Label is the human-readable stage name used in messages.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusDownloading:
		return "Download"
	case StatusExtractingAudio:
		return "Audio extraction"
	case StatusTranscribing:
		return "Transcription"
	case StatusTranslating:
		return "Translation"
	case StatusAssembling:
		return "Assembly"
	case StatusDone:
		return "Done"
	case StatusCancelled:
		return "Cancelled"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Params are the user supplied inputs of a job.
type Params struct {
	SourceURL      string
	LocalPath      string
	TargetLanguage language.Tag
	Service        translator.Service
	UseGPU         bool
}

// IsRemote reports whether the job has to download its source first.
func (p Params) IsRemote() bool {
	return p.SourceURL != ""
}

// Record is a point-in-time copy of a job, safe to hand to other goroutines.
type Record struct {
	ID             string     `json:"id"`
	SourceURL      string     `json:"source_url,omitempty"`
	LocalPath      string     `json:"local_path,omitempty"`
	TargetLanguage string     `json:"target_language"`
	Service        string     `json:"service"`
	UseGPU         bool       `json:"use_gpu"`
	Status         Status     `json:"status"`
	OutputFolder   string     `json:"output_folder,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Source returns whichever of URL or local path the job was started with.
func (r Record) Source() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.LocalPath
}
