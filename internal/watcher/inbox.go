package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MimeLyc/video-sub-translator/pkg/file"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const queueSize = 256

// Submitter handles one settled video file. Calls are serialized.
type Submitter func(ctx context.Context, path string) error

// Inbox watches a directory and submits each video once it stops changing.
type Inbox struct {
	dir    string
	settle time.Duration
	since  time.Time
	submit Submitter

	mu   sync.Mutex
	seen map[string]time.Time
}

type Option func(*Inbox)

// WithBacklogSince also submits videos modified after t that were already
// in the directory at startup.
func WithBacklogSince(t time.Time) Option {
	return func(i *Inbox) { i.since = t }
}

func NewInbox(dir string, settle time.Duration, submit Submitter, opts ...Option) *Inbox {
	i := &Inbox{
		dir:    dir,
		settle: settle,
		submit: submit,
		seen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run blocks until ctx is done. Ending ctx also cancels the ctx handed to
// the submission in flight, and Run waits for it to return.
func (i *Inbox) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(i.dir); err != nil {
		return fmt.Errorf("add watch path: %w", err)
	}
	log.Info("Watching %s for new videos (settle %s)", i.dir, i.settle)

	ctx, cancel := context.WithCancel(ctx)
	queue := make(chan string, queueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i.work(ctx, queue)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	if !i.since.IsZero() {
		i.enqueueBacklog(ctx, queue)
	}

	fired := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !file.IsVideoFile(event.Name) {
				log.Debug("Ignoring non-video file: %s", event.Name)
				continue
			}
			// restart the settle window on every write
			if t, ok := timers[event.Name]; ok {
				t.Stop()
			}
			path := event.Name
			timers[path] = time.AfterFunc(i.settle, func() {
				select {
				case fired <- path:
				case <-ctx.Done():
				}
			})

		case path := <-fired:
			delete(timers, path)
			i.enqueue(ctx, queue, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Error("Watcher error: %v", err)
		}
	}
}

func (i *Inbox) enqueueBacklog(ctx context.Context, queue chan<- string) {
	paths, err := file.FindRecentAfter(i.dir, i.since)
	if err != nil {
		log.Warn("Failed to scan %s: %v", i.dir, err)
		return
	}
	for _, path := range paths {
		if file.IsVideoFile(path) {
			i.enqueue(ctx, queue, path)
		}
	}
}

// enqueue skips files already submitted with the same modification time.
func (i *Inbox) enqueue(ctx context.Context, queue chan<- string, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	i.mu.Lock()
	if mtime, ok := i.seen[path]; ok && mtime.Equal(info.ModTime()) {
		i.mu.Unlock()
		return
	}
	i.seen[path] = info.ModTime()
	i.mu.Unlock()

	log.Info("New video detected: %s", path)
	select {
	case queue <- path:
	case <-ctx.Done():
	}
}

func (i *Inbox) work(ctx context.Context, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-queue:
			if err := i.submit(ctx, path); err != nil {
				log.Error("Failed to process %s: %v", path, err)
			}
		}
	}
}
