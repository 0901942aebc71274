package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/subtitle"
	"github.com/MimeLyc/video-sub-translator/pkg/executor"
	"github.com/MimeLyc/video-sub-translator/pkg/file"
)

// ErrEmptyTranscript is returned when the model heard no speech.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Request is one transcription run.
type Request struct {
	AudioPath string
	Tier      ModelTier
	Device    Device
	// Language is the spoken language if known; Und lets the model detect it.
	Language language.Tag
	// WorkDir receives the engine's intermediate files.
	WorkDir string
}

// Engine turns an audio file into a subtitle document.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (*subtitle.File, error)
}

// WhisperCLI runs the openai-whisper command line tool.
type WhisperCLI struct {
	Binary string
	Exec   executor.Executor
}

func NewWhisperCLI(binary string, exec executor.Executor) *WhisperCLI {
	if binary == "" {
		binary = "whisper"
	}
	if exec == nil {
		exec = executor.New()
	}
	return &WhisperCLI{Binary: binary, Exec: exec}
}

type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *WhisperCLI) Transcribe(ctx context.Context, req Request) (*subtitle.File, error) {
	if !req.Tier.Valid() {
		return nil, fmt.Errorf("unknown whisper model %d", int(req.Tier))
	}
	if req.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	device := req.Device
	if device == "" {
		device = DeviceCPU
	}

	args := []string{
		req.AudioPath,
		"--model", req.Tier.String(),
		"--device", string(device),
		"--output_format", "json",
		"--output_dir", req.WorkDir,
		"--verbose", "False",
	}
	if device == DeviceCPU {
		args = append(args, "--fp16", "False")
	}
	if req.Language != language.Und {
		base, _ := req.Language.Base()
		args = append(args, "--language", base.String())
	}

	if _, err := w.Exec.Execute(ctx, w.Binary, args...); err != nil {
		return nil, fmt.Errorf("whisper %s on %s: %w", req.Tier, device, err)
	}

	stem := file.Stem(req.AudioPath)
	doc, err := readWhisperJSON(filepath.Join(req.WorkDir, stem+".json"))
	if errors.Is(err, os.ErrNotExist) {
		doc, err = readWhisperSRT(filepath.Join(req.WorkDir, stem+".srt"))
	}
	if err != nil {
		return nil, err
	}

	if doc.Len() == 0 {
		return nil, ErrEmptyTranscript
	}
	if doc.Language == language.Und && req.Language != language.Und {
		doc.Language = req.Language
	}
	return doc, nil
}

func readWhisperJSON(path string) (*subtitle.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	segments := make([]subtitle.Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		segments = append(segments, subtitle.Segment{
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  seg.Text,
		})
	}

	lang := language.Und
	if code := strings.TrimSpace(out.Language); code != "" {
		if tag, err := language.Parse(code); err == nil {
			lang = tag
		}
	}

	doc := subtitle.FromSegments(segments, lang)
	doc.Path = path
	return doc, nil
}

func readWhisperSRT(path string) (*subtitle.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("whisper produced no transcript: %w", err)
	}
	parsed, err := subtitle.ReadSRTBytes(data, path)
	if err != nil {
		return nil, err
	}

	segments := make([]subtitle.Segment, 0, parsed.Len())
	for _, line := range parsed.Lines {
		segments = append(segments, subtitle.Segment{Start: line.StartTime, End: line.EndTime, Text: line.Text})
	}
	doc := subtitle.FromSegments(segments, parsed.Language)
	doc.Path = path
	return doc, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second)).Round(time.Millisecond)
}
