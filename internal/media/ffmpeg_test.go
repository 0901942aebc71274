package media

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/pkg/executor"
)

// installMock puts a shell script called name first on PATH.
func installMock(t *testing.T, name, script string) {
	t.Helper()
	mockDir := t.TempDir()
	mock := filepath.Join(mockDir, name)
	require.NoError(t, os.WriteFile(mock, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	t.Setenv("PATH", mockDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// TestFFmpeg_Probe tests stream and duration parsing
func TestFFmpeg_Probe(t *testing.T) {
	tests := []struct {
		name          string
		mockOutput    string
		exitCode      int
		hasAudio      bool
		audioLanguage language.Tag
		duration      time.Duration
		streams       int
		expectError   bool
	}{
		{
			name: "Video with tagged audio",
			mockOutput: `{
				"format": {"duration": "62.500000"},
				"streams": [
					{"index": 0, "codec_type": "video", "codec_name": "h264"},
					{"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"language": "eng"}}
				]
			}`,
			hasAudio:      true,
			audioLanguage: language.English,
			duration:      62500 * time.Millisecond,
			streams:       2,
		},
		{
			name: "Audio without language tag",
			mockOutput: `{
				"streams": [
					{"index": 0, "codec_type": "audio", "codec_name": "opus", "tags": {"language": "und"}}
				]
			}`,
			hasAudio:      true,
			audioLanguage: language.Und,
			streams:       1,
		},
		{
			name: "Silent video",
			mockOutput: `{
				"format": {"duration": "3.0"},
				"streams": [{"index": 0, "codec_type": "video", "codec_name": "vp9"}]
			}`,
			hasAudio:      false,
			audioLanguage: language.Und,
			duration:      3 * time.Second,
			streams:       1,
		},
		{
			name:        "Invalid JSON",
			mockOutput:  `{"streams": [invalid json`,
			expectError: true,
		},
		{
			name:        "Non-zero exit",
			mockOutput:  `{}`,
			exitCode:    1,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installMock(t, "ffprobe", "echo '"+tt.mockOutput+"'\nexit "+strconv.Itoa(tt.exitCode))

			result, err := NewFFmpeg(nil).Probe(context.Background(), "dummy.mp4")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, result.Streams, tt.streams)
			assert.Equal(t, tt.hasAudio, result.HasAudio())
			assert.Equal(t, tt.audioLanguage, result.AudioLanguage())
			assert.Equal(t, tt.duration, result.Duration)
		})
	}
}

func TestFFmpeg_ExtractAudio(t *testing.T) {
	// the last argument is the output path
	installMock(t, "ffmpeg", `for last; do :; done; printf 'RIFF' > "$last"`)

	out := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, NewFFmpeg(nil).ExtractAudio(context.Background(), "in.mp4", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))
}

func TestFFmpeg_ExtractAudio_NoOutput(t *testing.T) {
	installMock(t, "ffmpeg", `exit 0`)

	err := NewFFmpeg(nil).ExtractAudio(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "audio.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio")
}

func TestFFmpeg_ExtractAudio_Failure(t *testing.T) {
	installMock(t, "ffmpeg", `echo "in.mp4: Invalid data found when processing input" >&2; exit 1`)

	err := NewFFmpeg(nil).ExtractAudio(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "audio.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data")
}

func TestFFmpeg_extractAudioArgs(t *testing.T) {
	args := NewFFmpeg(nil).extractAudioArgs("/v/in.mp4", "/tmp/out.wav")

	expected := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", "/v/in.mp4",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"/tmp/out.wav",
	}
	assert.Equal(t, expected, args)
}

func TestFFmpeg_MuxSubtitles(t *testing.T) {
	var gotArgs []string
	ff := NewFFmpeg(executor.Func(func(_ context.Context, name string, args ...string) (string, error) {
		assert.Equal(t, "ffmpeg", name)
		gotArgs = args
		return "", nil
	}))

	err := ff.MuxSubtitles(context.Background(), "in.mp4", []SubtitleTrack{
		{Path: "a.en.srt", Language: language.English},
		{Path: "a.fr.srt", Language: language.French},
	}, "out.mkv")
	require.NoError(t, err)

	assert.Equal(t, "out.mkv", gotArgs[len(gotArgs)-1])
	assert.Contains(t, gotArgs, "1:0")
	assert.Contains(t, gotArgs, "2:0")
	assert.Contains(t, gotArgs, "language=eng")
	assert.Contains(t, gotArgs, "language=fra")

	require.Error(t, ff.MuxSubtitles(context.Background(), "in.mp4", nil, "out.mkv"))
}

// TestErrorCases tests error handling when the tools are missing
func TestErrorCases(t *testing.T) {
	t.Setenv("PATH", "")

	_, err := NewFFmpeg(nil).Probe(context.Background(), "test.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe")
}
