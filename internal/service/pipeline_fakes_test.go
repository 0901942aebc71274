package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/media"
	"github.com/MimeLyc/video-sub-translator/internal/subtitle"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
)

type fakeDownloader struct {
	name string
	err  error
}

func (f *fakeDownloader) Download(_ context.Context, _ string, destDir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(destDir, f.name)
	return path, os.WriteFile(path, []byte("video"), 0o644)
}

type fakeMedia struct {
	probe      *media.ProbeResult
	probeErr   error
	extractErr error

	extractedFrom string
	extractedTo   string
}

func (f *fakeMedia) ExtractAudio(_ context.Context, videoPath string, audioPath string) error {
	f.extractedFrom, f.extractedTo = videoPath, audioPath
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(audioPath, []byte("RIFF"), 0o644)
}

func (f *fakeMedia) Probe(context.Context, string) (*media.ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if f.probe != nil {
		return f.probe, nil
	}
	return &media.ProbeResult{Streams: []media.Stream{
		{Index: 0, CodecType: "video", CodecName: "h264"},
		{Index: 1, CodecType: "audio", CodecName: "aac", Language: language.English},
	}}, nil
}

func (f *fakeMedia) MuxSubtitles(_ context.Context, _ string, _ []media.SubtitleTrack, outPath string) error {
	return os.WriteFile(outPath, []byte("muxed"), 0o644)
}

func videoOnlyProbe() *media.ProbeResult {
	return &media.ProbeResult{Streams: []media.Stream{
		{Index: 0, CodecType: "video", CodecName: "h264"},
	}}
}

// writerFunc lets a test hook into the assembling stage.
type writerFunc func(path string, doc *subtitle.File) error

func (f writerFunc) Write(path string, doc *subtitle.File) error { return f(path, doc) }

// countingBackend prefixes every text and calls after once per batch.
type countingBackend struct {
	mu      sync.Mutex
	batches int
	after   func(batch int)
}

func (b *countingBackend) Name() string                { return "counting" }
func (b *countingBackend) Service() translator.Service { return translator.ServiceChatGPT }

func (b *countingBackend) Translate(_ context.Context, texts []string, _ language.Tag) ([]string, error) {
	b.mu.Lock()
	b.batches++
	batch := b.batches
	b.mu.Unlock()

	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "x:" + text
	}
	if b.after != nil {
		b.after(batch)
	}
	return out, nil
}

func (b *countingBackend) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

type engineFunc func(ctx context.Context, req transcribe.Request) (*subtitle.File, error)

func (f engineFunc) Transcribe(ctx context.Context, req transcribe.Request) (*subtitle.File, error) {
	return f(ctx, req)
}

func englishTranscript() *subtitle.File {
	return &subtitle.File{
		Language: language.English,
		Format:   "SRT",
		Lines: []subtitle.Line{
			{Index: 1, StartTime: 0, EndTime: 1500 * time.Millisecond, Text: "Hello there."},
			{Index: 2, StartTime: 2 * time.Second, EndTime: 3500 * time.Millisecond, Text: "How are you?"},
			{Index: 3, StartTime: 4 * time.Second, EndTime: 6 * time.Second, Text: "See you tomorrow."},
		},
	}
}

func staticEngine(doc *subtitle.File) engineFunc {
	return func(context.Context, transcribe.Request) (*subtitle.File, error) {
		return doc, nil
	}
}

// newDeepLServer answers like DeepL, prefixing each text with prefix, or
// with status when it is not 200.
func newDeepLServer(t *testing.T, status int, prefix string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"Wrong endpoint or key"}`))
			return
		}
		var req struct {
			Text []string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		type translation struct {
			Text string `json:"text"`
		}
		var resp struct {
			Translations []translation `json:"translations"`
		}
		for _, text := range req.Text {
			resp.Translations = append(resp.Translations, translation{Text: prefix + text})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

type snapshotFunc func() (config.Snapshot, error)

func (f snapshotFunc) Snapshot() (config.Snapshot, error) { return f() }

func staticSnapshot(snap config.Snapshot) snapshotFunc {
	return func() (config.Snapshot, error) { return snap, nil }
}

func testSnapshot(t *testing.T, deeplURL string) config.Snapshot {
	t.Helper()
	root := t.TempDir()
	tempDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	return config.Snapshot{
		DeepLKey:        "test-key",
		DeepLURL:        deeplURL,
		OpenAIKey:       "sk-test",
		OpenAIModel:     "gpt-4o-mini",
		MaxTokens:       1024,
		TimeoutSec:      5,
		BatchSize:       2,
		WhisperModel:    transcribe.TierSmall,
		DefaultLanguage: language.English,
		DefaultService:  translator.ServiceDeepL,
		OutputDir:       filepath.Join(root, "output"),
		TempDir:         tempDir,
	}
}

type memoryHistory struct {
	mu      sync.Mutex
	records []jobs.Record
}

func (h *memoryHistory) RecordOutcome(_ context.Context, rec jobs.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func (h *memoryHistory) Last() jobs.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[len(h.records)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) statuses() []jobs.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []jobs.Status
	for _, e := range l.events {
		if e.Kind == EventStatus {
			out = append(out, e.Status)
		}
	}
	return out
}

func (l *eventLog) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Kind == EventLog && e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries, "expected %s to be empty", dir)
}
