package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/video-sub-translator/pkg/executor"
)

// YTDLP downloads video pages through yt-dlp.
type YTDLP struct {
	Binary string
	Exec   executor.Executor
}

func NewYTDLP(binary string, exec executor.Executor) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if exec == nil {
		exec = executor.New()
	}
	return &YTDLP{Binary: binary, Exec: exec}
}

func (y *YTDLP) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	if _, err := ParseURL(rawURL); err != nil {
		return "", err
	}

	out, err := y.Exec.Execute(ctx, y.Binary,
		"--no-playlist",
		"--no-progress",
		"--restrict-filenames",
		"-f", "bv*+ba/b",
		"--merge-output-format", "mkv",
		"-o", filepath.Join(destDir, "%(title).80s.%(ext)s"),
		"--print", "after_move:filepath",
		rawURL,
	)
	if err != nil {
		return "", err
	}

	dest := lastLine(out)
	if dest == "" {
		return "", fmt.Errorf("%s did not report an output file", y.Binary)
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("%s output missing: %w", y.Binary, err)
	}
	return dest, nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
