package main

import (
	"fmt"
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/download"
	"github.com/MimeLyc/video-sub-translator/internal/media"
	"github.com/MimeLyc/video-sub-translator/internal/persistence"
	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/pkg/executor"
	"github.com/MimeLyc/video-sub-translator/pkg/retry"
)

// pipeline holds the components every job-running command shares.
type pipeline struct {
	settings *config.RuntimeSettingsStore
	history  *persistence.SQLiteStore
	events   *service.Broadcaster
	prober   transcribe.Prober
	runner   *service.Runner
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	settings, err := config.NewRuntimeSettingsStore(cfg.SettingsPath(), *cfg)
	if err != nil {
		return nil, fmt.Errorf("runtime settings: %w", err)
	}

	history, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	exec := executor.New()
	events := service.NewBroadcaster()
	events.Subscribe(service.LogObserver{})
	prober := transcribe.NewNvidiaSMIProber(exec)

	downloader := &download.Auto{
		Direct: download.NewHTTPDownloader(time.Duration(cfg.Download.TimeoutSeconds)*time.Second, retry.DefaultPolicy()),
		Site:   download.NewYTDLP(cfg.Download.YTDLPBinary, exec),
	}

	runner := service.NewRunner(service.RunnerDeps{
		Downloader: downloader,
		Media:      media.NewFFmpeg(exec),
		Engine:     transcribe.NewWhisperCLI(cfg.Whisper.Binary, exec),
		Prober:     prober,
		Observer:   events,
	})

	return &pipeline{
		settings: settings,
		history:  history,
		events:   events,
		prober:   prober,
		runner:   runner,
	}, nil
}

func (p *pipeline) syncProcessor() (*service.VideoProcessor, error) {
	return service.NewVideoProcessor(p.runner, p.settings, service.WithHistory(p.history))
}

func (p *pipeline) threadedProcessor() (*service.ThreadedVideoProcessor, error) {
	return service.NewThreadedVideoProcessor(p.runner, p.settings, service.WithHistory(p.history))
}

func (p *pipeline) Close() error {
	return p.history.Close()
}
