package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/download"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
	"github.com/MimeLyc/video-sub-translator/pkg/file"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const historyTimeout = 5 * time.Second

// Request is what a caller asks for. Empty language or service fall back
// to the configured defaults.
type Request struct {
	SourceURL      string `json:"source_url,omitempty"`
	LocalPath      string `json:"local_path,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Service        string `json:"service,omitempty"`
	UseGPU         bool   `json:"use_gpu"`
}

// Validate resolves the request into job parameters. Every failure is an
// ErrInput PipelineError.
func (r Request) Validate(defaults config.Snapshot) (jobs.Params, error) {
	source := strings.TrimSpace(r.SourceURL)
	local := strings.TrimSpace(r.LocalPath)

	switch {
	case source == "" && local == "":
		return jobs.Params{}, InputError("a video URL or a local video file is required")
	case source != "" && local != "":
		return jobs.Params{}, InputError("give either a video URL or a local video file, not both")
	}

	if source != "" {
		if _, err := download.ParseURL(source); err != nil {
			return jobs.Params{}, NewErrorWithCause(ErrInput, "invalid video URL", err)
		}
	}
	if local != "" {
		if !file.IsVideoFile(local) {
			return jobs.Params{}, InputError(fmt.Sprintf("%s is not a supported video file", filepath.Base(local)))
		}
		if abs, err := filepath.Abs(local); err == nil {
			local = abs
		}
	}

	target := defaults.DefaultLanguage
	if strings.TrimSpace(r.TargetLanguage) != "" {
		tag, err := translator.ParseTarget(r.TargetLanguage)
		if err != nil {
			return jobs.Params{}, NewErrorWithCause(ErrInput, "unsupported target language", err)
		}
		target = tag
	}
	if target == language.Und {
		return jobs.Params{}, InputError("a target language is required")
	}

	service := defaults.DefaultService
	if strings.TrimSpace(r.Service) != "" {
		s, err := translator.ParseService(r.Service)
		if err != nil {
			return jobs.Params{}, NewErrorWithCause(ErrInput, "unsupported translation service", err)
		}
		service = s
	}
	if service == 0 {
		return jobs.Params{}, InputError("a translation service is required")
	}
	if !translator.SupportsTarget(service, target) {
		return jobs.Params{}, InputError(fmt.Sprintf("%s cannot translate into %s, use ChatGPT instead",
			service, translator.DisplayName(target)))
	}

	return jobs.Params{
		SourceURL:      source,
		LocalPath:      local,
		TargetLanguage: target,
		Service:        service,
		UseGPU:         r.UseGPU,
	}, nil
}

// Processor starts jobs and reports their outcome on Commands.
type Processor interface {
	ProcessVideo(ctx context.Context, req Request) (*Handle, error)
	// UpdateAPIClient re-reads credentials and model settings. Jobs
	// already running keep the snapshot they started with.
	UpdateAPIClient() error
	Cancel() error
	Current() (jobs.Record, bool)
	Commands() *CommandChannel
}

// SnapshotSource yields the current configuration.
type SnapshotSource interface {
	Snapshot() (config.Snapshot, error)
}

// HistoryRecorder stores finished jobs.
type HistoryRecorder interface {
	RecordOutcome(ctx context.Context, rec jobs.Record) error
}

type Option func(*core)

// WithHistory records every finished job before its command is published.
func WithHistory(h HistoryRecorder) Option {
	return func(c *core) { c.history = h }
}

// WithCommandChannel shares a channel between processors.
func WithCommandChannel(ch *CommandChannel) Option {
	return func(c *core) {
		if ch != nil {
			c.commands = ch
		}
	}
}

type activeJob struct {
	job      *jobs.Job
	token    *jobs.CancellationToken
	handle   *Handle
	terminal *Terminal
}

// core is the state shared by both strategies: the config snapshot and
// the single active job slot.
type core struct {
	runner   *Runner
	source   SnapshotSource
	history  HistoryRecorder
	commands *CommandChannel

	mu     sync.Mutex
	snap   config.Snapshot
	active *activeJob
}

func newCore(runner *Runner, source SnapshotSource, opts []Option) (*core, error) {
	c := &core{
		runner:   runner,
		source:   source,
		commands: NewCommandChannel(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.UpdateAPIClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *core) UpdateAPIClient() error {
	snap, err := c.source.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot configuration: %w", err)
	}
	snap.TakenAt = time.Now()

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	log.Info("API client updated: default service %s, whisper %s", snap.DefaultService, snap.WhisperModel)
	return nil
}

func (c *core) Commands() *CommandChannel {
	return c.commands
}

func (c *core) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNoActiveJob
	}
	log.Info("Cancellation requested for job %s", c.active.job.ShortID())
	c.active.token.Cancel()
	return nil
}

func (c *core) Current() (jobs.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return jobs.Record{}, false
	}
	return c.active.job.Record(), true
}

// start validates req and claims the active slot.
func (c *core) start(ctx context.Context, req Request) (*activeJob, config.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snap
	params, err := req.Validate(snap)
	if err != nil {
		return nil, config.Snapshot{}, err
	}
	if c.active != nil {
		return nil, config.Snapshot{}, ErrJobAlreadyRunning
	}

	job := jobs.New(params)
	token := jobs.NewCancellationToken(ctx)
	handle := NewHandle(job.ID, token.Cancel)
	a := &activeJob{
		job:      job,
		token:    token,
		handle:   handle,
		terminal: NewTerminal(job.ID, c.commands, handle),
	}
	c.active = a

	log.Info("Starting job %s: %s -> %s via %s", job.ShortID(), job.Record().Source(), params.TargetLanguage, params.Service)
	return a, snap, nil
}

func (c *core) run(a *activeJob, snap config.Snapshot) {
	cmd := c.runner.Run(a.token.Context(), a.job, a.token, snap)
	c.finish(a, cmd)
}

func (c *core) finish(a *activeJob, cmd Command) {
	rec := a.job.Record()
	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := c.history.RecordOutcome(ctx, rec); err != nil {
			log.Warn("Failed to record job %s: %v", a.job.ShortID(), err)
		}
		cancel()
	}

	c.mu.Lock()
	if c.active == a {
		c.active = nil
	}
	c.mu.Unlock()
	a.token.Release()

	log.Info("Job %s finished: %s", a.job.ShortID(), rec.Status)
	a.terminal.Publish(cmd)
}

// VideoProcessor runs each job on the caller's goroutine.
type VideoProcessor struct {
	*core
}

func NewVideoProcessor(runner *Runner, source SnapshotSource, opts ...Option) (*VideoProcessor, error) {
	c, err := newCore(runner, source, opts)
	if err != nil {
		return nil, err
	}
	return &VideoProcessor{core: c}, nil
}

// ProcessVideo blocks until the job's terminal command is published.
// Cancelling ctx cancels the job.
func (p *VideoProcessor) ProcessVideo(ctx context.Context, req Request) (*Handle, error) {
	a, snap, err := p.start(ctx, req)
	if err != nil {
		return nil, err
	}
	p.run(a, snap)
	return a.handle, nil
}

// ThreadedVideoProcessor runs each job on its own goroutine.
type ThreadedVideoProcessor struct {
	*core
	wg sync.WaitGroup
}

func NewThreadedVideoProcessor(runner *Runner, source SnapshotSource, opts ...Option) (*ThreadedVideoProcessor, error) {
	c, err := newCore(runner, source, opts)
	if err != nil {
		return nil, err
	}
	return &ThreadedVideoProcessor{core: c}, nil
}

// ProcessVideo returns as soon as the job is started. The job outlives
// ctx; use Cancel or the handle to stop it.
func (p *ThreadedVideoProcessor) ProcessVideo(ctx context.Context, req Request) (*Handle, error) {
	a, snap, err := p.start(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(a, snap)
	}()
	return a.handle, nil
}

// Shutdown cancels the active job and waits for it to publish.
func (p *ThreadedVideoProcessor) Shutdown(ctx context.Context) error {
	if err := p.Cancel(); err != nil && !errors.Is(err, ErrNoActiveJob) {
		return err
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Processor = (*VideoProcessor)(nil)
	_ Processor = (*ThreadedVideoProcessor)(nil)
)
