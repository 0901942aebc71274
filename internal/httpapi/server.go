package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/persistence"
	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() config.RuntimeSettings
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type historyStore interface {
	ListHistory(ctx context.Context, q persistence.HistoryQuery) ([]jobs.Record, error)
}

type Server struct {
	processor service.Processor
	events    *service.Broadcaster
	settings  runtimeSettingsStore
	history   historyStore
	prober    transcribe.Prober

	heartbeat time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithHistory(history historyStore) Option {
	return func(s *Server) {
		s.history = history
	}
}

// WithEvents streams the broadcaster's events on /api/events/stream.
func WithEvents(events *service.Broadcaster) Option {
	return func(s *Server) {
		s.events = events
	}
}

func WithDeviceProber(prober transcribe.Prober) Option {
	return func(s *Server) {
		s.prober = prober
	}
}

func NewServer(processor service.Processor, opts ...Option) *Server {
	s := &Server{
		processor: processor,
		heartbeat: 15 * time.Second,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/current", s.handleCurrentJob)
	s.mux.HandleFunc("/api/jobs/cancel", s.handleCancelJob)
	s.mux.HandleFunc("/api/commands", s.handleCommands)
	s.mux.HandleFunc("/api/events/stream", s.handleEventStream)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/models", s.handleModels)
	s.mux.HandleFunc("/api/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/history", s.handleHistory)
}
