package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/pkg/executor"
)

// fakeWhisper writes name+ext into --output_dir and records the args.
func fakeWhisper(t *testing.T, ext, content string, gotArgs *[]string) executor.Executor {
	t.Helper()
	return executor.Func(func(_ context.Context, name string, args ...string) (string, error) {
		assert.Equal(t, "whisper", name)
		*gotArgs = args
		idx := slices.Index(args, "--output_dir")
		require.GreaterOrEqual(t, idx, 0)
		dir := args[idx+1]
		stem := filepath.Base(args[0])
		stem = stem[:len(stem)-len(filepath.Ext(stem))]
		require.NoError(t, os.WriteFile(filepath.Join(dir, stem+ext), []byte(content), 0o644))
		return "", nil
	})
}

const whisperJSON = `{
  "text": "Hello there. General Kenobi.",
  "language": "en",
  "segments": [
    {"id": 1, "start": 2.5, "end": 4.0, "text": " General Kenobi."},
    {"id": 0, "start": 0.0, "end": 2.8, "text": " Hello there."},
    {"id": 2, "start": 4.0, "end": 4.5, "text": "   "}
  ]
}`

func TestWhisperCLI_ParsesJSONSegments(t *testing.T) {
	var args []string
	engine := NewWhisperCLI("", fakeWhisper(t, ".json", whisperJSON, &args))

	doc, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "/tmp/job/audio.wav",
		Tier:      TierSmall,
		Device:    DeviceCPU,
		WorkDir:   t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	require.Equal(t, 2, doc.Len())
	assert.Equal(t, "Hello there.", doc.Lines[0].Text)
	assert.Equal(t, doc.Lines[1].StartTime, doc.Lines[0].EndTime, "overlap is clamped")
	assert.Equal(t, language.English, doc.Language)

	assert.Equal(t, "/tmp/job/audio.wav", args[0])
	assert.Contains(t, args, "small")
	assert.Contains(t, args, "--fp16")
	assert.NotContains(t, args, "--language")
}

func TestWhisperCLI_PassesLanguageAndDevice(t *testing.T) {
	var args []string
	engine := NewWhisperCLI("", fakeWhisper(t, ".json", whisperJSON, &args))

	_, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "audio.wav",
		Tier:      TierMedium,
		Device:    DeviceCUDA,
		Language:  language.English,
		WorkDir:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Contains(t, args, "cuda")
	assert.Contains(t, args, "--language")
	assert.NotContains(t, args, "--fp16")
}

func TestWhisperCLI_FallsBackToSRT(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,000\nBonjour tout le monde\n\n"
	var args []string
	engine := NewWhisperCLI("", fakeWhisper(t, ".srt", srt, &args))

	doc, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "audio.wav",
		Tier:      TierTiny,
		WorkDir:   t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, doc.Len())
	assert.Equal(t, "Bonjour tout le monde", doc.Lines[0].Text)
}

func TestWhisperCLI_EmptyTranscript(t *testing.T) {
	var args []string
	engine := NewWhisperCLI("", fakeWhisper(t, ".json", `{"language":"en","segments":[]}`, &args))

	_, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "audio.wav",
		Tier:      TierTiny,
		WorkDir:   t.TempDir(),
	})
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestWhisperCLI_EngineFailure(t *testing.T) {
	engine := NewWhisperCLI("", executor.Func(func(context.Context, string, ...string) (string, error) {
		return "", errors.New("CUDA out of memory")
	}))

	_, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "audio.wav",
		Tier:      TierLarge,
		Device:    DeviceCUDA,
		WorkDir:   t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
	assert.Contains(t, err.Error(), "large")
}

func TestWhisperCLI_RejectsInvalidTier(t *testing.T) {
	engine := NewWhisperCLI("", executor.Func(func(context.Context, string, ...string) (string, error) {
		t.Fatal("engine must not run")
		return "", nil
	}))
	_, err := engine.Transcribe(context.Background(), Request{AudioPath: "a.wav", WorkDir: t.TempDir()})
	require.Error(t, err)
}
