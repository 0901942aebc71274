package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/pkg/executor"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

// FFmpeg implements Operator with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	exec       executor.Executor
}

func NewFFmpeg(exec executor.Executor) *FFmpeg {
	if exec == nil {
		exec = executor.New()
	}
	return &FFmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		exec:       exec,
	}
}

// NewOperator returns the default ffmpeg backed Operator.
func NewOperator() Operator {
	return NewFFmpeg(nil)
}

// ExtractAudio writes a 16 kHz mono PCM WAV, the input format speech models
// expect.
func (ff *FFmpeg) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if _, err := ff.exec.Execute(ctx, ff.ffmpegCmd, ff.extractAudioArgs(videoPath, audioPath)...); err != nil {
		return err
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no audio: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty audio file")
	}
	return nil
}

func (ff *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	output, err := ff.exec.Execute(ctx, ff.ffprobeCmd, ff.readProbeArgs(path)...)
	if err != nil {
		log.Error("Failed to run ffprobe: %v", err)
		return nil, err
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			Index     int    `json:"index"`
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Tags      struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
		} `json:"streams"`
	}

	if err := json.Unmarshal([]byte(output), &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{Streams: make([]Stream, 0, len(probeResult.Streams))}
	if secs, err := strconv.ParseFloat(probeResult.Format.Duration, 64); err == nil {
		result.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, stream := range probeResult.Streams {
		lang := language.Und
		if code := stream.Tags.Language; code != "" && code != "und" {
			lang = language.All.Make(code)
		}
		result.Streams = append(result.Streams, Stream{
			Index:     stream.Index,
			CodecType: stream.CodecType,
			CodecName: stream.CodecName,
			Language:  lang,
			Title:     stream.Tags.Title,
		})
	}
	return result, nil
}

// MuxSubtitles copies every video/audio stream and adds tracks as soft
// subtitles. The output container should be mkv.
func (ff *FFmpeg) MuxSubtitles(ctx context.Context, videoPath string, tracks []SubtitleTrack, outPath string) error {
	if len(tracks) == 0 {
		return fmt.Errorf("no subtitle tracks to mux")
	}
	_, err := ff.exec.Execute(ctx, ff.ffmpegCmd, ff.muxArgs(videoPath, tracks, outPath)...)
	return err
}

func (ff *FFmpeg) extractAudioArgs(videoPath, audioPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		audioPath,
	}
}

func (ff *FFmpeg) readProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

func (ff *FFmpeg) muxArgs(videoPath string, tracks []SubtitleTrack, outPath string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", videoPath}
	for _, track := range tracks {
		args = append(args, "-i", track.Path)
	}
	args = append(args, "-map", "0:v?", "-map", "0:a?")
	for i := range tracks {
		args = append(args, "-map", strconv.Itoa(i+1)+":0")
	}
	args = append(args, "-c:v", "copy", "-c:a", "copy", "-c:s", "srt")
	for i, track := range tracks {
		if track.Language == language.Und {
			continue
		}
		base, _ := track.Language.Base()
		args = append(args, fmt.Sprintf("-metadata:s:s:%d", i), "language="+strings.ToLower(base.ISO3()))
	}
	return append(args, outPath)
}
