package jobs

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a transition outside the job state machine.
var ErrInvalidTransition = errors.New("invalid job transition")

var transitions = map[Status][]Status{
	StatusPending:         {StatusDownloading},
	StatusDownloading:     {StatusExtractingAudio},
	StatusExtractingAudio: {StatusTranscribing},
	StatusTranscribing:    {StatusTranslating},
	StatusTranslating:     {StatusAssembling},
	StatusAssembling:      {StatusDone},
}

// CanTransition reports whether from -> to is allowed. Every non-terminal
// state may also move to cancelled or failed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled || to == StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
