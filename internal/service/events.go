package service

import (
	"sync"
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

type EventKind string

const (
	EventStatus   EventKind = "status"
	EventLog      EventKind = "log"
	EventProgress EventKind = "progress"
)

// Event is a structured progress or log message from a running job.
type Event struct {
	JobID   string      `json:"job_id"`
	Kind    EventKind   `json:"kind"`
	Status  jobs.Status `json:"status,omitempty"`
	Level   string      `json:"level,omitempty"`
	Message string      `json:"message,omitempty"`
	Done    int         `json:"done,omitempty"`
	Total   int         `json:"total,omitempty"`
	Time    time.Time   `json:"time"`
}

// Observer receives pipeline events. OnEvent is called on the job's
// goroutine and must not block for long.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Broadcaster fans events out to any number of subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]Observer
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]Observer)}
}

// Subscribe adds o and returns a func that removes it.
func (b *Broadcaster) Subscribe(o Observer) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = o
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) OnEvent(e Event) {
	b.mu.RLock()
	subs := make([]Observer, 0, len(b.subs))
	for _, o := range b.subs {
		subs = append(subs, o)
	}
	b.mu.RUnlock()

	for _, o := range subs {
		o.OnEvent(e)
	}
}

// LogObserver mirrors events into the application log.
type LogObserver struct{}

func (LogObserver) OnEvent(e Event) {
	short := e.JobID
	if len(short) > 8 {
		short = short[:8]
	}
	logger := log.With("job " + short)
	switch e.Kind {
	case EventStatus:
		logger.Info("%s", e.Status)
	case EventProgress:
		logger.Debug("%s %d/%d", e.Message, e.Done, e.Total)
	default:
		level := log.ParseLevel(e.Level)
		if level == log.LevelFatal {
			level = log.LevelError
		}
		logger.Log(level, "%s", e.Message)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
