package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/persistence"
	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	handle, err := s.processor.ProcessVideo(r.Context(), req)
	switch {
	case err == nil:
	case service.IsErrorType(err, service.ErrInput):
		var pipeErr *service.PipelineError
		errors.As(err, &pipeErr)
		writeError(w, http.StatusBadRequest, pipeErr.UserMessage())
		return
	case errors.Is(err, service.ErrJobAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": handle.JobID(),
	})
}

func (s *Server) handleCurrentJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, ok := s.processor.Current()
	if !ok {
		writeError(w, http.StatusNotFound, service.ErrNoActiveJob.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.processor.Cancel(); err != nil {
		if errors.Is(err, service.ErrNoActiveJob) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok": true,
	})
}

// handleCommands pops one command; 204 when none is queued.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cmd, ok := s.processor.Commands().TryReceive()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.GetRuntimeSettings().Redacted())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		// A redacted key echoed back from GET means "unchanged".
		if strings.HasPrefix(req.DeepLKey, "****") {
			req.DeepLKey = ""
		}
		if strings.HasPrefix(req.OpenAIKey, "****") {
			req.OpenAIKey = ""
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.processor.UpdateAPIClient(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info("Runtime settings updated: %+v", saved.Redacted())
		writeJSON(w, http.StatusOK, saved.Redacted())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type modelResponse struct {
	Name    string  `json:"name"`
	RAMGB   float64 `json:"ram_gb"`
	VRAMGB  float64 `json:"vram_gb"`
	FitsGPU bool    `json:"fits_gpu"`
}

type modelsResponse struct {
	Device transcribe.DeviceInfo `json:"device"`
	Models []modelResponse       `json:"models"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var info transcribe.DeviceInfo
	if s.prober != nil {
		info = s.prober.Probe(r.Context())
	}

	ret := modelsResponse{Device: info}
	for _, tier := range transcribe.AllTiers() {
		res := tier.Resources()
		device, _ := transcribe.SelectDevice(tier, true, info)
		ret.Models = append(ret.Models, modelResponse{
			Name:    tier.String(),
			RAMGB:   res.RAMGB,
			VRAMGB:  res.VRAMGB,
			FitsGPU: device == transcribe.DeviceCUDA,
		})
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, translator.SupportedLanguages())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history is not configured")
		return
	}

	q := persistence.HistoryQuery{Status: jobs.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since, want RFC3339")
			return
		}
		q.Since = since
	}

	records, err := s.history.ListHistory(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
