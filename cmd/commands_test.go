package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/persistence"
	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
)

func TestRenderTable_PadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "only")
	assert.Contains(t, out, "A")
	assert.Equal(t, "", renderTable(nil, nil, nil))
}

func TestShouldColorize_NonFile(t *testing.T) {
	assert.False(t, shouldColorize(&bytes.Buffer{}))
	assert.Equal(t, "WARN", statusLabel(statusWarn, false))
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, checkDirectoryAccess("tmp", dir).Passed)

	missing := checkDirectoryAccess("missing", filepath.Join(dir, "nope"))
	assert.False(t, missing.Passed)
	assert.Contains(t, missing.Detail, "does not exist")

	filePath := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(filePath, nil, 0o644))
	assert.Contains(t, checkDirectoryAccess("file", filePath).Detail, "is not a directory")
}

func TestCheckBinary(t *testing.T) {
	missing := checkBinary("Whisper", "definitely-not-installed-vidsub", "required", false)
	assert.False(t, missing.Passed)
	assert.Equal(t, statusError, missing.kind())

	optional := checkBinary("yt-dlp", "definitely-not-installed-vidsub", "optional", true)
	assert.Equal(t, statusWarn, optional.kind())

	assert.Equal(t, "not configured", checkBinary("x", " ", "", false).Detail)
}

func TestRunPreflight_KeyOptionalityFollowsDefaultService(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.TempDir = t.TempDir()
	cfg.Translate.DefaultService = "DeepL"

	byName := map[string]checkResult{}
	for _, r := range runPreflight(&cfg) {
		byName[r.Name] = r
	}
	assert.Equal(t, statusError, byName["DeepL"].kind())
	assert.Equal(t, statusWarn, byName["ChatGPT"].kind())
	assert.True(t, byName["Output dir"].Passed)
}

func TestRenderModels_MarksCurrentAndDevice(t *testing.T) {
	out := renderModels(transcribe.TierSmall, transcribe.DeviceInfo{CUDA: true, GPUName: "RTX", VRAMGB: 4})
	assert.Contains(t, out, "small *")
	assert.Contains(t, out, string(transcribe.DeviceCUDA))
	assert.Contains(t, out, string(transcribe.DeviceCPU))
}

func TestHistory_ListAndPrune(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()

	now := time.Now().UTC()
	finished := now
	err := openHistory(&cfg, func(store *persistence.SQLiteStore) error {
		for i, id := range []string{"aaaaaaaa-1111", "bbbbbbbb-2222"} {
			rec := jobs.Record{
				ID:             id,
				SourceURL:      "https://example.com/video.mp4",
				TargetLanguage: "fr",
				Service:        "DeepL",
				Status:         jobs.StatusDone,
				OutputFolder:   "/out/video_" + id[:8],
				CreatedAt:      now.Add(-time.Duration(i) * 48 * time.Hour),
				UpdatedAt:      now,
				FinishedAt:     &finished,
			}
			if err := store.RecordOutcome(t.Context(), rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var records []jobs.Record
	require.NoError(t, openHistory(&cfg, func(store *persistence.SQLiteStore) error {
		var err error
		records, err = store.ListHistory(t.Context(), persistence.HistoryQuery{})
		return err
	}))
	require.Len(t, records, 2)

	out := renderHistory(records)
	assert.Contains(t, out, "aaaaaaaa")
	assert.Contains(t, out, "/out/video_bbbbbbbb")

	require.NoError(t, openHistory(&cfg, func(store *persistence.SQLiteStore) error {
		n, err := store.DeleteBefore(t.Context(), now.Add(-24*time.Hour))
		assert.EqualValues(t, 1, n)
		return err
	}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"process", "serve", "watch", "history", "models", "settings", "doctor"} {
		assert.True(t, names[want], want)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.OnEvent(service.Event{Kind: service.EventStatus, Status: jobs.StatusTranslating})
	p.OnEvent(service.Event{Kind: service.EventProgress, Message: "translated", Done: 2, Total: 4})
	p.OnEvent(service.Event{Kind: service.EventLog, Level: "WARN", Message: "falling back to CPU"})
	p.OnEvent(service.Event{Kind: service.EventLog, Level: "INFO", Message: "quiet"})

	out := buf.String()
	assert.Contains(t, out, "==> "+jobs.StatusTranslating.Label())
	assert.Contains(t, out, "translated 2/4")
	assert.Contains(t, out, "warning: falling back to CPU")
	assert.NotContains(t, out, "quiet")
	assert.NotContains(t, out, "\x1b[", "no color when not a terminal")
}
