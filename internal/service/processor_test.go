package service

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/subtitle"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
)

func TestRequestValidate(t *testing.T) {
	defaults := testSnapshot(t, "")
	local := filepath.Join(t.TempDir(), "clip.mkv")

	tests := []struct {
		name    string
		req     Request
		want    jobs.Params
		wantErr string
	}{
		{
			name:    "neither source",
			req:     Request{},
			wantErr: "a video URL or a local video file is required",
		},
		{
			name:    "both sources",
			req:     Request{SourceURL: "https://host/video.mp4", LocalPath: local},
			wantErr: "not both",
		},
		{
			name:    "bad url",
			req:     Request{SourceURL: "ftp://host/video.mp4"},
			wantErr: "invalid video URL",
		},
		{
			name:    "not a video",
			req:     Request{LocalPath: "/tmp/notes.txt"},
			wantErr: "notes.txt is not a supported video file",
		},
		{
			name:    "unsupported language",
			req:     Request{SourceURL: "https://host/video.mp4", TargetLanguage: "tlh"},
			wantErr: "unsupported target language",
		},
		{
			name:    "language the service lacks",
			req:     Request{SourceURL: "https://host/video.mp4", TargetLanguage: "HI - Hindi", Service: "DeepL"},
			wantErr: "DeepL cannot translate into Hindi",
		},
		{
			name: "hindi through chatgpt",
			req:  Request{SourceURL: "https://host/video.mp4", TargetLanguage: "HI - Hindi", Service: "ChatGPT"},
			want: jobs.Params{
				SourceURL:      "https://host/video.mp4",
				TargetLanguage: language.Hindi,
				Service:        translator.ServiceChatGPT,
			},
		},
		{
			name:    "unknown service",
			req:     Request{SourceURL: "https://host/video.mp4", Service: "babelfish"},
			wantErr: "unsupported translation service",
		},
		{
			name: "defaults fill language and service",
			req:  Request{SourceURL: " https://host/video.mp4 "},
			want: jobs.Params{
				SourceURL:      "https://host/video.mp4",
				TargetLanguage: language.English,
				Service:        translator.ServiceDeepL,
			},
		},
		{
			name: "explicit values",
			req:  Request{LocalPath: local, TargetLanguage: "ES - Spanish", Service: "chatgpt", UseGPU: true},
			want: jobs.Params{
				LocalPath:      local,
				TargetLanguage: language.Spanish,
				Service:        translator.ServiceChatGPT,
				UseGPU:         true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Validate(defaults)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsErrorType(err, ErrInput))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVideoProcessor_RemoteVideoToDeepL(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "fr:")
	snap := testSnapshot(t, server.URL)
	history := &memoryHistory{}
	events := &eventLog{}

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
		Observer:   events,
	})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap), WithHistory(history))
	require.NoError(t, err)

	// History is written before the command goes out.
	proc.Commands().Tap(func(Command) {
		assert.Equal(t, 1, history.Len())
	})

	handle, err := proc.ProcessVideo(context.Background(), Request{
		SourceURL:      "https://host/video.mp4",
		TargetLanguage: "FR",
		Service:        "DeepL",
	})
	require.NoError(t, err)

	cmd, err := handle.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, CommandDone, cmd.Kind, cmd.Message)

	folder := filepath.Join(snap.OutputDir, "video_"+handle.JobID()[:8])
	assert.Equal(t, folder, cmd.VideoFolder)
	assert.Equal(t, handle.JobID(), cmd.JobID)

	original, err := subtitle.NewReader().Read(filepath.Join(folder, "video.en.srt"))
	require.NoError(t, err)
	translated, err := subtitle.NewReader().Read(filepath.Join(folder, "video.fr.srt"))
	require.NoError(t, err)
	require.Equal(t, original.Len(), translated.Len())
	for i := range original.Lines {
		assert.Equal(t, original.Lines[i].StartTime, translated.Lines[i].StartTime)
		assert.Equal(t, original.Lines[i].EndTime, translated.Lines[i].EndTime)
		assert.Equal(t, "fr:"+original.Lines[i].Text, translated.Lines[i].Text)
	}

	data, err := os.ReadFile(filepath.Join(folder, manifestName))
	require.NoError(t, err)
	var m manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, handle.JobID(), m.JobID)
	assert.Equal(t, "https://host/video.mp4", m.Source)
	assert.Equal(t, "DeepL", m.Backend)
	assert.Equal(t, "video.fr.srt", m.Files.Translated)
	assert.Equal(t, 3, m.Entries)

	got, ok := proc.Commands().TryReceive()
	require.True(t, ok)
	assert.Equal(t, cmd, got)
	_, ok = proc.Commands().TryReceive()
	assert.False(t, ok, "exactly one command per job")

	assert.Equal(t, []jobs.Status{
		jobs.StatusDownloading,
		jobs.StatusExtractingAudio,
		jobs.StatusTranscribing,
		jobs.StatusTranslating,
		jobs.StatusAssembling,
		jobs.StatusDone,
	}, events.statuses())
	assert.Equal(t, jobs.StatusDone, history.Last().Status)
	requireEmptyDir(t, snap.TempDir)

	_, running := proc.Current()
	assert.False(t, running)
}

func TestVideoProcessor_CancelDuringTranscription(t *testing.T) {
	snap := testSnapshot(t, "")
	clip := filepath.Join(t.TempDir(), "clip.mkv")
	require.NoError(t, os.WriteFile(clip, []byte("video"), 0o644))

	var proc *VideoProcessor
	engine := engineFunc(func(ctx context.Context, req transcribe.Request) (*subtitle.File, error) {
		require.NoError(t, proc.Cancel())
		<-ctx.Done()
		return nil, ctx.Err()
	})
	backends := func(translator.Service, translator.Credentials) (translator.Backend, error) {
		t.Error("translation must not start after cancellation")
		return nil, errors.New("unexpected")
	}

	runner := NewRunner(RunnerDeps{Media: &fakeMedia{}, Engine: engine, Backends: backends})
	var err error
	proc, err = NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{
		LocalPath:      clip,
		TargetLanguage: "ES",
		Service:        "ChatGPT",
	})
	require.NoError(t, err)

	cmd := <-handle.Done()
	assert.Equal(t, CommandCancelled, cmd.Kind)
	assert.Empty(t, cmd.VideoFolder)

	requireEmptyDir(t, snap.OutputDir)
	requireEmptyDir(t, snap.TempDir)
	assert.FileExists(t, clip, "local input is never removed")
	assert.ErrorIs(t, proc.Cancel(), ErrNoActiveJob)
}

func TestVideoProcessor_CancelDuringTranslation(t *testing.T) {
	snap := testSnapshot(t, "")
	snap.BatchSize = 1
	history := &memoryHistory{}

	var proc *VideoProcessor
	backend := &countingBackend{after: func(batch int) {
		if batch == 1 {
			require.NoError(t, proc.Cancel())
		}
	}}
	backends := func(translator.Service, translator.Credentials) (translator.Backend, error) {
		return backend, nil
	}

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
		Backends:   backends,
	})
	var err error
	proc, err = NewVideoProcessor(runner, staticSnapshot(snap), WithHistory(history))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{
		SourceURL:      "https://host/video.mp4",
		TargetLanguage: "DE",
		Service:        "ChatGPT",
	})
	require.NoError(t, err)

	cmd := <-handle.Done()
	assert.Equal(t, CommandCancelled, cmd.Kind)
	assert.Empty(t, cmd.VideoFolder)
	assert.Equal(t, 1, backend.Batches(), "no batch is sent after cancellation")
	assert.Equal(t, jobs.StatusCancelled, history.Last().Status)

	requireEmptyDir(t, snap.OutputDir)
	requireEmptyDir(t, snap.TempDir)
}

func TestVideoProcessor_CancelDuringAssembly(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "fr:")
	snap := testSnapshot(t, server.URL)
	events := &eventLog{}

	var proc *VideoProcessor
	writer := subtitle.NewWriter()
	hooked := writerFunc(func(path string, doc *subtitle.File) error {
		_ = proc.Cancel()
		return writer.Write(path, doc)
	})

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
		Writer:     hooked,
		Observer:   events,
	})
	var err error
	proc, err = NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{
		SourceURL:      "https://host/video.mp4",
		TargetLanguage: "FR",
		Service:        "DeepL",
	})
	require.NoError(t, err)

	cmd := <-handle.Done()
	assert.Equal(t, CommandCancelled, cmd.Kind)
	assert.Empty(t, cmd.VideoFolder)
	assert.NotContains(t, events.statuses(), jobs.StatusDone)

	requireEmptyDir(t, snap.OutputDir)
	requireEmptyDir(t, snap.TempDir)
}

func TestVideoProcessor_DownloadNamedLikeAudio(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "fr:")
	snap := testSnapshot(t, server.URL)
	mediaOps := &fakeMedia{}

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "audio.wav"},
		Media:      mediaOps,
		Engine:     staticEngine(englishTranscript()),
	})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{
		SourceURL:      "https://host/audio.wav",
		TargetLanguage: "FR",
	})
	require.NoError(t, err)

	cmd := <-handle.Done()
	require.Equal(t, CommandDone, cmd.Kind, cmd.Message)
	assert.Equal(t, "audio.wav", filepath.Base(mediaOps.extractedFrom))
	assert.NotEqual(t, mediaOps.extractedFrom, mediaOps.extractedTo)
	requireEmptyDir(t, snap.TempDir)
}

func TestVideoProcessor_NoSourceIsInputError(t *testing.T) {
	snap := testSnapshot(t, "")
	runner := NewRunner(RunnerDeps{Media: &fakeMedia{}, Engine: staticEngine(englishTranscript())})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{TargetLanguage: "FR"})
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, IsErrorType(err, ErrInput))
	assert.Equal(t, 0, proc.Commands().Len())
	_, running := proc.Current()
	assert.False(t, running)
}

func TestVideoProcessor_RejectedKeyFailsTranslation(t *testing.T) {
	server := newDeepLServer(t, http.StatusForbidden, "")
	snap := testSnapshot(t, server.URL)
	history := &memoryHistory{}

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
	})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap), WithHistory(history))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{SourceURL: "https://host/video.mp4", TargetLanguage: "FR"})
	require.NoError(t, err)

	cmd := <-handle.Done()
	require.Equal(t, CommandError, cmd.Kind)
	assert.True(t, strings.HasPrefix(cmd.Message, "Translation failed: DeepL"), cmd.Message)
	assert.Contains(t, cmd.Message, "rejected the API key")

	rec := history.Last()
	assert.Equal(t, jobs.StatusFailed, rec.Status)
	assert.Equal(t, cmd.Message, rec.Error)
	assert.Empty(t, rec.OutputFolder)
	requireEmptyDir(t, snap.OutputDir)
	requireEmptyDir(t, snap.TempDir)
}

func TestVideoProcessor_StageFailures(t *testing.T) {
	tests := []struct {
		name   string
		deps   RunnerDeps
		prefix string
	}{
		{
			name: "download",
			deps: RunnerDeps{
				Downloader: &fakeDownloader{err: errors.New("connection refused")},
				Media:      &fakeMedia{},
				Engine:     staticEngine(englishTranscript()),
			},
			prefix: "Download failed: could not fetch https://host/video.mp4: connection refused",
		},
		{
			name: "no audio track",
			deps: RunnerDeps{
				Downloader: &fakeDownloader{name: "video.mp4"},
				Media:      &fakeMedia{probe: videoOnlyProbe()},
				Engine:     staticEngine(englishTranscript()),
			},
			prefix: "Audio extraction failed: video has no audio track",
		},
		{
			name: "ffmpeg",
			deps: RunnerDeps{
				Downloader: &fakeDownloader{name: "video.mp4"},
				Media:      &fakeMedia{extractErr: errors.New("exit status 1")},
				Engine:     staticEngine(englishTranscript()),
			},
			prefix: "Audio extraction failed: ffmpeg could not extract audio",
		},
		{
			name: "whisper",
			deps: RunnerDeps{
				Downloader: &fakeDownloader{name: "video.mp4"},
				Media:      &fakeMedia{},
				Engine: engineFunc(func(context.Context, transcribe.Request) (*subtitle.File, error) {
					return nil, transcribe.ErrEmptyTranscript
				}),
			},
			prefix: "Transcription failed: speech recognition failed",
		},
		{
			name: "panic",
			deps: RunnerDeps{
				Downloader: &fakeDownloader{name: "video.mp4"},
				Media:      &fakeMedia{},
				Engine: engineFunc(func(context.Context, transcribe.Request) (*subtitle.File, error) {
					panic("model crashed")
				}),
			},
			prefix: "Processing failed: runtime error: model crashed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newDeepLServer(t, http.StatusOK, "fr:")
			snap := testSnapshot(t, server.URL)
			proc, err := NewVideoProcessor(NewRunner(tt.deps), staticSnapshot(snap))
			require.NoError(t, err)

			handle, err := proc.ProcessVideo(context.Background(), Request{SourceURL: "https://host/video.mp4", TargetLanguage: "FR"})
			require.NoError(t, err)

			cmd := <-handle.Done()
			require.Equal(t, CommandError, cmd.Kind)
			assert.True(t, strings.HasPrefix(cmd.Message, tt.prefix), cmd.Message)
			requireEmptyDir(t, snap.OutputDir)
			requireEmptyDir(t, snap.TempDir)
		})
	}
}

func TestVideoProcessor_GPUFallsBackToCPU(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "de:")
	snap := testSnapshot(t, server.URL)
	events := &eventLog{}

	var device transcribe.Device
	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "talk.webm"},
		Media:      &fakeMedia{},
		Engine: engineFunc(func(_ context.Context, req transcribe.Request) (*subtitle.File, error) {
			device = req.Device
			assert.Equal(t, language.English, req.Language)
			return englishTranscript(), nil
		}),
		Prober: transcribe.ProberFunc(func(context.Context) transcribe.DeviceInfo {
			return transcribe.DeviceInfo{}
		}),
		Observer: events,
	})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{SourceURL: "https://host/talk.webm", TargetLanguage: "DE", UseGPU: true})
	require.NoError(t, err)

	cmd := <-handle.Done()
	require.Equal(t, CommandDone, cmd.Kind, cmd.Message)
	assert.Equal(t, transcribe.DeviceCPU, device)
	assert.Contains(t, events.messages("WARN"), "GPU requested but CUDA is not available, falling back to CPU")
}

func TestVideoProcessor_SameLanguageKeepsBothFiles(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "")
	snap := testSnapshot(t, server.URL)
	snap.CopyVideo = true

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "My Talk!.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
	})
	proc, err := NewVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{SourceURL: "https://host/talk.mp4", TargetLanguage: "EN"})
	require.NoError(t, err)

	cmd := <-handle.Done()
	require.Equal(t, CommandDone, cmd.Kind, cmd.Message)

	entries, err := os.ReadDir(cmd.VideoFolder)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 4)
	assert.Contains(t, names, manifestName)
	assert.Contains(t, names, "My Talk!.mp4")
	assert.Condition(t, func() bool {
		for _, n := range names {
			if strings.HasSuffix(n, ".en.translated.srt") {
				return true
			}
		}
		return false
	}, "translated file gets its own name: %v", names)
}

func TestVideoProcessor_UpdateAPIClient(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "fr:")
	snap := testSnapshot(t, server.URL)
	snap.DeepLKey = ""

	current := snap
	source := snapshotFunc(func() (config.Snapshot, error) { return current, nil })

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine:     staticEngine(englishTranscript()),
	})
	proc, err := NewVideoProcessor(runner, source)
	require.NoError(t, err)

	req := Request{SourceURL: "https://host/video.mp4", TargetLanguage: "FR"}
	handle, err := proc.ProcessVideo(context.Background(), req)
	require.NoError(t, err)
	cmd := <-handle.Done()
	require.Equal(t, CommandError, cmd.Kind)
	assert.Contains(t, cmd.Message, "DeepL API key is not configured")

	current.DeepLKey = "test-key"
	handle, err = proc.ProcessVideo(context.Background(), req)
	require.NoError(t, err)
	cmd = <-handle.Done()
	assert.Equal(t, CommandError, cmd.Kind, "new key is not used before UpdateAPIClient")

	require.NoError(t, proc.UpdateAPIClient())
	handle, err = proc.ProcessVideo(context.Background(), req)
	require.NoError(t, err)
	cmd = <-handle.Done()
	assert.Equal(t, CommandDone, cmd.Kind, cmd.Message)
}

func TestThreadedVideoProcessor_OneActiveJob(t *testing.T) {
	server := newDeepLServer(t, http.StatusOK, "fr:")
	snap := testSnapshot(t, server.URL)
	release := make(chan struct{})

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine: engineFunc(func(ctx context.Context, _ transcribe.Request) (*subtitle.File, error) {
			select {
			case <-release:
				return englishTranscript(), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	})
	proc, err := NewThreadedVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	req := Request{SourceURL: "https://host/video.mp4", TargetLanguage: "FR"}

	// The job outlives the request context.
	reqCtx, cancelReq := context.WithCancel(context.Background())
	handle, err := proc.ProcessVideo(reqCtx, req)
	require.NoError(t, err)
	cancelReq()

	require.Eventually(t, func() bool {
		rec, ok := proc.Current()
		return ok && rec.Status == jobs.StatusTranscribing
	}, 2*time.Second, 10*time.Millisecond)

	_, err = proc.ProcessVideo(context.Background(), req)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd, err := proc.Commands().Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, CommandDone, cmd.Kind, cmd.Message)
	assert.Equal(t, handle.JobID(), cmd.JobID)

	require.Eventually(t, func() bool {
		_, ok := proc.Current()
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, proc.Commands().Len())
}

func TestThreadedVideoProcessor_ShutdownCancels(t *testing.T) {
	snap := testSnapshot(t, "")
	started := make(chan struct{})

	runner := NewRunner(RunnerDeps{
		Downloader: &fakeDownloader{name: "video.mp4"},
		Media:      &fakeMedia{},
		Engine: engineFunc(func(ctx context.Context, _ transcribe.Request) (*subtitle.File, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	proc, err := NewThreadedVideoProcessor(runner, staticSnapshot(snap))
	require.NoError(t, err)

	handle, err := proc.ProcessVideo(context.Background(), Request{SourceURL: "https://host/video.mp4", TargetLanguage: "FR"})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, proc.Shutdown(ctx))

	cmd, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, CommandCancelled, cmd.Kind)
	requireEmptyDir(t, snap.TempDir)
}
