package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

type checkResult struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

func (r checkResult) kind() statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}

// checkDirectoryAccess verifies that the directory exists and is readable/writable.
func checkDirectoryAccess(name, path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return checkResult{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return checkResult{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return checkResult{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return checkResult{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func checkBinary(name, command, purpose string, optional bool) checkResult {
	result := checkResult{Name: name, Optional: optional}
	command = strings.TrimSpace(command)
	if command == "" {
		result.Detail = "not configured"
		return result
	}
	path, err := exec.LookPath(command)
	if err != nil {
		result.Detail = fmt.Sprintf("%s not found (%s)", command, purpose)
		return result
	}
	result.Passed = true
	result.Detail = path
	return result
}

func checkKey(name, key string, optional bool) checkResult {
	if strings.TrimSpace(key) == "" {
		return checkResult{Name: name, Optional: optional, Detail: "API key missing"}
	}
	return checkResult{Name: name, Passed: true, Detail: "API key set"}
}

// runPreflight lists what a job needs from the host.
func runPreflight(cfg *config.Config) []checkResult {
	results := []checkResult{
		checkDirectoryAccess("Data dir", cfg.Paths.DataDir),
		checkDirectoryAccess("Output dir", cfg.Paths.OutputDir),
		checkDirectoryAccess("Temp dir", cfg.Paths.TempDir),
		checkBinary("FFmpeg", "ffmpeg", "required for audio extraction", false),
		checkBinary("FFprobe", "ffprobe", "required for media inspection", false),
		checkBinary("Whisper", cfg.Whisper.Binary, "required for transcription", false),
		checkBinary("yt-dlp", cfg.Download.YTDLPBinary, "required for video page URLs", true),
		checkBinary("nvidia-smi", "nvidia-smi", "GPU transcription falls back to CPU", true),
	}
	if cfg.Watch.InboxDir != "" {
		results = append(results, checkDirectoryAccess("Watch dir", cfg.Watch.InboxDir))
	}

	deeplOptional := !strings.EqualFold(cfg.Translate.DefaultService, "DeepL")
	results = append(results,
		checkKey("DeepL", cfg.DeepL.APIKey, deeplOptional),
		checkKey("ChatGPT", cfg.LLM.APIKey, !deeplOptional),
	)
	return results
}

func reportPreflight(cfg *config.Config) {
	for _, r := range runPreflight(cfg) {
		switch r.kind() {
		case statusOK:
			log.Debug("Preflight %s: %s", r.Name, r.Detail)
		case statusWarn:
			log.Warn("Preflight %s: %s", r.Name, r.Detail)
		default:
			log.Error("Preflight %s: %s", r.Name, r.Detail)
		}
	}
}
