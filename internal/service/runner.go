package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/download"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/media"
	"github.com/MimeLyc/video-sub-translator/internal/subtitle"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
	"github.com/MimeLyc/video-sub-translator/pkg/file"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const (
	manifestName = "job.yaml"
	// remote videos are fetched apart from the extracted audio
	sourceDirName = "source"
	audioName     = "audio.wav"
)

var errCancelled = errors.New("job cancelled")

// BackendFactory builds the translation backend for a job.
type BackendFactory func(service translator.Service, creds translator.Credentials) (translator.Backend, error)

// RunnerDeps are the capabilities the pipeline stages call into.
type RunnerDeps struct {
	Downloader download.Downloader
	Media      media.Operator
	Engine     transcribe.Engine
	// Prober is only consulted when a job asks for the GPU.
	Prober   transcribe.Prober
	Backends BackendFactory
	Writer   subtitle.Writer
	Observer Observer
}

// Runner executes one job's stages in order on the calling goroutine.
type Runner struct {
	deps       RunnerDeps
	errHandler ErrorHandler
}

func NewRunner(deps RunnerDeps) *Runner {
	if deps.Backends == nil {
		deps.Backends = func(service translator.Service, creds translator.Credentials) (translator.Backend, error) {
			return translator.New(service, creds)
		}
	}
	if deps.Writer == nil {
		deps.Writer = subtitle.NewWriter()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Runner{deps: deps, errHandler: NewDefaultErrorHandler()}
}

// Run drives job to a terminal state and returns the command describing
// it. It never panics and never returns an empty command.
func (r *Runner) Run(ctx context.Context, job *jobs.Job, token *jobs.CancellationToken, snap config.Snapshot) Command {
	run := &jobRun{
		Runner: r,
		ctx:    ctx,
		job:    job,
		token:  token,
		snap:   snap,
	}
	err := SafeExecute(run.execute)
	return run.conclude(err)
}

// jobRun is the mutable state of one Run call.
type jobRun struct {
	*Runner
	ctx   context.Context
	job   *jobs.Job
	token *jobs.CancellationToken
	snap  config.Snapshot

	workspace   string
	videoPath   string
	audioPath   string
	audioLang   language.Tag
	device      transcribe.Device
	backendName string
	original    *subtitle.File
	translated  *subtitle.File
	folder      string
}

func (run *jobRun) execute() error {
	workspace, err := os.MkdirTemp(run.snap.TempDir, "vidsub-"+run.job.ID+"-*")
	if err != nil {
		return NewErrorWithCause(ErrUnknown, "could not create job workspace", err)
	}
	run.workspace = workspace
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("Failed to remove workspace %s: %v", workspace, err)
		}
	}()

	stages := []struct {
		status jobs.Status
		run    func() error
	}{
		{jobs.StatusDownloading, run.download},
		{jobs.StatusExtractingAudio, run.extractAudio},
		{jobs.StatusTranscribing, run.transcribe},
		{jobs.StatusTranslating, run.translate},
		{jobs.StatusAssembling, run.assemble},
	}

	for _, stage := range stages {
		if run.token.Cancelled() {
			return errCancelled
		}
		if err := run.job.Transition(stage.status); err != nil {
			return NewErrorWithCause(ErrUnknown, "invalid job state", err)
		}
		run.emitStatus(stage.status)
		if err := stage.run(); err != nil {
			return err
		}
	}
	// assemble does not take ctx, so a cancel during it lands here
	if run.token.Cancelled() {
		return errCancelled
	}
	return nil
}

func (run *jobRun) conclude(err error) Command {
	id := run.job.ID

	if err == nil {
		if cerr := run.job.Complete(run.folder); cerr != nil {
			log.Error("Failed to complete job %s: %v", id, cerr)
		}
		run.emitStatus(jobs.StatusDone)
		return DoneCommand(id, run.folder)
	}

	run.discardOutput()

	// The token decides, not the error: a stage killed by cancellation
	// fails with whatever the tool reported.
	if run.token.Cancelled() || errors.Is(err, errCancelled) {
		if cerr := run.job.Cancel(); cerr != nil {
			log.Error("Failed to cancel job %s: %v", id, cerr)
		}
		run.emitStatus(jobs.StatusCancelled)
		return CancelledCommand(id)
	}

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		pipeErr = NewErrorWithCause(ErrUnknown, "unexpected failure", err)
	}
	pipeErr.WithContext("job", run.job.ShortID()).WithContext("stage", run.job.Status())
	run.errHandler.Handle(pipeErr)

	message := pipeErr.UserMessage()
	if ferr := run.job.Fail(message); ferr != nil {
		log.Error("Failed to fail job %s: %v", id, ferr)
	}
	run.emitLog(log.LevelError, message)
	run.emitStatus(jobs.StatusFailed)
	return ErrorCommand(id, message)
}

func (run *jobRun) discardOutput() {
	if run.folder == "" {
		return
	}
	if err := os.RemoveAll(run.folder); err != nil {
		log.Warn("Failed to remove output folder %s: %v", run.folder, err)
	}
	run.folder = ""
}

func (run *jobRun) download() error {
	params := run.job.Params
	if params.IsRemote() {
		if run.deps.Downloader == nil {
			return NewError(ErrDownload, "no downloader configured")
		}
		destDir := filepath.Join(run.workspace, sourceDirName)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return NewErrorWithCause(ErrUnknown, "could not create download directory", err)
		}
		path, err := run.deps.Downloader.Download(run.ctx, params.SourceURL, destDir)
		if err != nil {
			return NewErrorWithCause(ErrDownload, "could not fetch "+params.SourceURL, err)
		}
		run.videoPath = path
		run.emitLog(log.LevelInfo, "downloaded "+filepath.Base(path))
		return nil
	}

	info, err := os.Stat(params.LocalPath)
	if err != nil {
		return NewErrorWithCause(ErrDownload, "local file is not accessible", err).
			WithContext("path", params.LocalPath)
	}
	if info.IsDir() {
		return NewError(ErrDownload, params.LocalPath+" is a directory")
	}
	run.videoPath = params.LocalPath
	return nil
}

func (run *jobRun) extractAudio() error {
	if run.deps.Media == nil {
		return NewError(ErrAudioExtraction, "no media toolchain configured")
	}

	run.audioLang = language.Und
	probe, err := run.deps.Media.Probe(run.ctx, run.videoPath)
	if err != nil {
		run.emitLog(log.LevelWarn, fmt.Sprintf("could not probe %s: %v", filepath.Base(run.videoPath), err))
	} else {
		if !probe.HasAudio() {
			return NewError(ErrAudioExtraction, "video has no audio track")
		}
		run.audioLang = probe.AudioLanguage()
	}

	run.audioPath = filepath.Join(run.workspace, audioName)
	if err := run.deps.Media.ExtractAudio(run.ctx, run.videoPath, run.audioPath); err != nil {
		return NewErrorWithCause(ErrAudioExtraction, "ffmpeg could not extract audio", err)
	}
	return nil
}

func (run *jobRun) transcribe() error {
	if run.deps.Engine == nil {
		return NewError(ErrTranscription, "no transcription engine configured")
	}

	params := run.job.Params
	tier := run.snap.WhisperModel
	var info transcribe.DeviceInfo
	if params.UseGPU && run.deps.Prober != nil {
		info = run.deps.Prober.Probe(run.ctx)
	}
	device, warning := transcribe.SelectDevice(tier, params.UseGPU, info)
	if warning != "" {
		run.emitLog(log.LevelWarn, warning)
	}
	run.device = device
	run.emitLog(log.LevelInfo, fmt.Sprintf("transcribing with whisper %s on %s", tier, device))

	doc, err := run.deps.Engine.Transcribe(run.ctx, transcribe.Request{
		AudioPath: run.audioPath,
		Tier:      tier,
		Device:    device,
		Language:  run.audioLang,
		WorkDir:   run.workspace,
	})
	if err != nil {
		return NewErrorWithCause(ErrTranscription, "speech recognition failed", err)
	}
	if doc == nil || doc.Len() == 0 {
		return NewError(ErrTranscription, "no speech was recognized")
	}
	if doc.Language == language.Und {
		doc.Language = subtitle.DetectLanguage(doc)
	}
	if err := doc.Validate(); err != nil {
		return NewErrorWithCause(ErrTranscription, "transcript is malformed", err)
	}

	run.original = doc
	run.emitLog(log.LevelInfo, fmt.Sprintf("transcribed %d entries (%s)", doc.Len(), languageCode(doc.Language)))
	return nil
}

func (run *jobRun) translate() error {
	params := run.job.Params
	backend, err := run.deps.Backends(params.Service, run.snap.Credentials())
	if err != nil {
		return NewErrorWithCause(ErrTranslation, params.Service.String()+" is not available", err)
	}
	run.backendName = backend.Name()

	batcher := &translator.Batcher{
		Backend:   backend,
		BatchSize: run.snap.BatchSize,
		Stopped:   run.token.Cancelled,
		Progress: func(done, total int) {
			run.emitProgress("translated", done, total)
		},
	}

	source := run.original.Texts()
	texts, err := batcher.Translate(run.ctx, source, params.TargetLanguage)
	if err != nil {
		if errors.Is(err, translator.ErrInterrupted) {
			return errCancelled
		}
		return NewErrorWithCause(ErrTranslation, backend.Name(), err)
	}
	if allBlank(texts) && !allBlank(source) {
		return NewError(ErrTranslation, backend.Name()+" returned no text")
	}

	translated, err := run.original.WithTexts(texts, params.TargetLanguage)
	if err != nil {
		return NewErrorWithCause(ErrTranslation, "result does not match the transcript", err)
	}
	run.translated = translated
	return nil
}

type manifest struct {
	JobID          string        `yaml:"job_id"`
	Source         string        `yaml:"source"`
	SourceLanguage string        `yaml:"source_language"`
	TargetLanguage string        `yaml:"target_language"`
	Service        string        `yaml:"service"`
	Backend        string        `yaml:"backend"`
	WhisperModel   string        `yaml:"whisper_model"`
	Device         string        `yaml:"device"`
	Entries        int           `yaml:"entries"`
	Files          manifestFiles `yaml:"files"`
	CreatedAt      time.Time     `yaml:"created_at"`
	AssembledAt    time.Time     `yaml:"assembled_at"`
}

type manifestFiles struct {
	Original   string `yaml:"original"`
	Translated string `yaml:"translated"`
	Video      string `yaml:"video,omitempty"`
}

func (run *jobRun) assemble() error {
	params := run.job.Params
	stem := file.SanitizeName(file.Stem(run.videoPath))
	folder := filepath.Join(run.snap.OutputDir, stem+"_"+run.job.ShortID())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return NewErrorWithCause(ErrAssembly, "could not create output folder", err)
	}
	run.folder = folder

	originalName := fmt.Sprintf("%s.%s.srt", stem, languageCode(run.original.Language))
	translatedName := fmt.Sprintf("%s.%s.srt", stem, languageCode(params.TargetLanguage))
	if translatedName == originalName {
		translatedName = fmt.Sprintf("%s.%s.translated.srt", stem, languageCode(params.TargetLanguage))
	}

	if err := run.deps.Writer.Write(filepath.Join(folder, originalName), run.original); err != nil {
		return NewErrorWithCause(ErrAssembly, "could not write "+originalName, err)
	}
	if err := run.deps.Writer.Write(filepath.Join(folder, translatedName), run.translated); err != nil {
		return NewErrorWithCause(ErrAssembly, "could not write "+translatedName, err)
	}

	files := manifestFiles{Original: originalName, Translated: translatedName}
	switch {
	case run.snap.MuxVideo:
		if run.deps.Media == nil {
			return NewError(ErrAssembly, "no media toolchain configured")
		}
		files.Video = stem + ".subtitled.mkv"
		tracks := []media.SubtitleTrack{
			{Path: filepath.Join(folder, translatedName), Language: params.TargetLanguage},
			{Path: filepath.Join(folder, originalName), Language: run.original.Language},
		}
		if err := run.deps.Media.MuxSubtitles(run.ctx, run.videoPath, tracks, filepath.Join(folder, files.Video)); err != nil {
			return NewErrorWithCause(ErrAssembly, "could not mux subtitles", err)
		}
	case run.snap.CopyVideo:
		files.Video = filepath.Base(run.videoPath)
		if err := copyFile(run.videoPath, filepath.Join(folder, files.Video)); err != nil {
			return NewErrorWithCause(ErrAssembly, "could not copy video", err)
		}
	}

	data, err := yaml.Marshal(manifest{
		JobID:          run.job.ID,
		Source:         run.job.Record().Source(),
		SourceLanguage: run.original.Language.String(),
		TargetLanguage: params.TargetLanguage.String(),
		Service:        params.Service.String(),
		Backend:        run.backendName,
		WhisperModel:   run.snap.WhisperModel.String(),
		Device:         string(run.device),
		Entries:        run.translated.Len(),
		Files:          files,
		CreatedAt:      run.job.CreatedAt,
		AssembledAt:    time.Now(),
	})
	if err != nil {
		return NewErrorWithCause(ErrAssembly, "could not encode manifest", err)
	}
	if err := os.WriteFile(filepath.Join(folder, manifestName), data, 0o644); err != nil {
		return NewErrorWithCause(ErrAssembly, "could not write manifest", err)
	}
	return nil
}

func (run *jobRun) emit(e Event) {
	e.JobID = run.job.ID
	e.Time = time.Now()
	run.deps.Observer.OnEvent(e)
}

func (run *jobRun) emitStatus(status jobs.Status) {
	run.emit(Event{Kind: EventStatus, Status: status})
}

func (run *jobRun) emitLog(level log.LogLevel, message string) {
	run.emit(Event{Kind: EventLog, Level: level.String(), Message: message, Status: run.job.Status()})
}

func (run *jobRun) emitProgress(message string, done, total int) {
	run.emit(Event{Kind: EventProgress, Message: message, Done: done, Total: total, Status: run.job.Status()})
}

// languageCode is the lower-case base language used in file names.
func languageCode(tag language.Tag) string {
	if tag == language.Und {
		return "und"
	}
	base, _ := tag.Base()
	return strings.ToLower(base.String())
}

func allBlank(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
