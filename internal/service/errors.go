package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

type ErrorType int

const (
	ErrInput ErrorType = iota
	ErrDownload
	ErrAudioExtraction
	ErrTranscription
	ErrTranslation
	ErrAssembly
	ErrUnknown
)

var (
	// ErrJobAlreadyRunning is returned when a processor already owns a job.
	ErrJobAlreadyRunning = errors.New("a job is already running")
	// ErrNoActiveJob is returned by Cancel when nothing is running.
	ErrNoActiveJob = errors.New("no active job")
)

// PipelineError is a classified failure of one pipeline stage.
type PipelineError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

// InputError reports a request that was rejected before any job started.
func InputError(message string) *PipelineError {
	return NewError(ErrInput, message)
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

// UserMessage is the text carried by an error command, e.g.
// "Translation failed: DeepL rejected the API key: http status 403".
func (e *PipelineError) UserMessage() string {
	msg := e.Type.Label() + " failed"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (t ErrorType) String() string {
	switch t {
	case ErrInput:
		return "Input"
	case ErrDownload:
		return "Download"
	case ErrAudioExtraction:
		return "AudioExtraction"
	case ErrTranscription:
		return "Transcription"
	case ErrTranslation:
		return "Translation"
	case ErrAssembly:
		return "Assembly"
	default:
		return "Unknown"
	}
}

// Label is the human form used in terminal messages.
func (t ErrorType) Label() string {
	switch t {
	case ErrInput:
		return "Input validation"
	case ErrDownload:
		return "Download"
	case ErrAudioExtraction:
		return "Audio extraction"
	case ErrTranscription:
		return "Transcription"
	case ErrTranslation:
		return "Translation"
	case ErrAssembly:
		return "Assembly"
	default:
		return "Processing"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *PipelineError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(pipeErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *PipelineError) string {
	switch err.Type {
	case ErrInput:
		return "Provide either a video URL or a local file, and a supported target language"
	case ErrDownload:
		return "Check that the URL is reachable and points to a video, or that the local file exists"
	case ErrAudioExtraction:
		return "Please ensure ffmpeg is installed and the video has an audio track"
	case ErrTranscription:
		return "Please ensure whisper is installed; try a smaller model or disable the GPU if memory is short"
	case ErrTranslation:
		return "Please check the API key for the selected service, network connectivity, and the service quota"
	case ErrAssembly:
		return "Please ensure the output directory exists and has write permissions"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
