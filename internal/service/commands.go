package service

import (
	"context"
	"sync"
)

// CommandKind is the "command" field of a terminal command.
type CommandKind string

const (
	CommandDone      CommandKind = "processing_done"
	CommandCancelled CommandKind = "processing_cancelled"
	CommandError     CommandKind = "error"
)

// Command is the single terminal notification of a job.
type Command struct {
	JobID       string      `json:"job_id,omitempty"`
	Kind        CommandKind `json:"command"`
	VideoFolder string      `json:"video_folder,omitempty"`
	Message     string      `json:"message,omitempty"`
}

func DoneCommand(jobID, videoFolder string) Command {
	return Command{JobID: jobID, Kind: CommandDone, VideoFolder: videoFolder}
}

func CancelledCommand(jobID string) Command {
	return Command{JobID: jobID, Kind: CommandCancelled}
}

func ErrorCommand(jobID, message string) Command {
	if message == "" {
		message = "processing failed"
	}
	return Command{JobID: jobID, Kind: CommandError, Message: message}
}

// CommandChannel is an unbounded FIFO of terminal commands. Any number of
// goroutines may publish; consumers poll, block, or register taps.
type CommandChannel struct {
	mu     sync.Mutex
	queue  []Command
	notify chan struct{}
	taps   map[int]func(Command)
	nextID int
}

func NewCommandChannel() *CommandChannel {
	return &CommandChannel{
		notify: make(chan struct{}),
		taps:   make(map[int]func(Command)),
	}
}

// Publish enqueues cmd and then calls every tap on the caller's goroutine.
func (c *CommandChannel) Publish(cmd Command) {
	c.mu.Lock()
	c.queue = append(c.queue, cmd)
	close(c.notify)
	c.notify = make(chan struct{})
	taps := make([]func(Command), 0, len(c.taps))
	for _, tap := range c.taps {
		taps = append(taps, tap)
	}
	c.mu.Unlock()

	for _, tap := range taps {
		tap(cmd)
	}
}

// TryReceive pops the oldest command without blocking.
func (c *CommandChannel) TryReceive() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

// Receive blocks until a command is available or ctx ends.
func (c *CommandChannel) Receive(ctx context.Context) (Command, error) {
	for {
		c.mu.Lock()
		if cmd, ok := c.popLocked(); ok {
			c.mu.Unlock()
			return cmd, nil
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Command{}, ctx.Err()
		case <-wait:
		}
	}
}

// Len is the number of queued commands.
func (c *CommandChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Tap registers fn to observe every published command. Taps do not consume
// from the queue. The returned func removes the tap.
func (c *CommandChannel) Tap(fn func(Command)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.taps[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.taps, id)
		c.mu.Unlock()
	}
}

func (c *CommandChannel) popLocked() (Command, bool) {
	if len(c.queue) == 0 {
		return Command{}, false
	}
	cmd := c.queue[0]
	c.queue[0] = Command{}
	c.queue = c.queue[1:]
	return cmd, true
}

// Terminal is the publish side for one job. Only the first Publish goes
// through.
type Terminal struct {
	jobID   string
	channel *CommandChannel
	handle  *Handle
	once    sync.Once
}

func NewTerminal(jobID string, channel *CommandChannel, handle *Handle) *Terminal {
	return &Terminal{jobID: jobID, channel: channel, handle: handle}
}

// Publish delivers cmd to the channel and the job's handle. It returns
// false if a command was already published for this job.
func (t *Terminal) Publish(cmd Command) bool {
	sent := false
	t.once.Do(func() {
		cmd.JobID = t.jobID
		if t.channel != nil {
			t.channel.Publish(cmd)
		}
		if t.handle != nil {
			t.handle.finish(cmd)
		}
		sent = true
	})
	return sent
}

// Handle is the caller's view of a started job.
type Handle struct {
	jobID    string
	cancel   func()
	done     chan Command
	finished chan struct{}
	result   Command
}

// NewHandle is for Processor implementations outside this package.
func NewHandle(jobID string, cancel func()) *Handle {
	return &Handle{
		jobID:    jobID,
		cancel:   cancel,
		done:     make(chan Command, 1),
		finished: make(chan struct{}),
	}
}

func (h *Handle) JobID() string { return h.jobID }

// Done yields the terminal command once. Use Wait to read it repeatedly.
func (h *Handle) Done() <-chan Command { return h.done }

// Wait blocks until the job has published its terminal command.
func (h *Handle) Wait(ctx context.Context) (Command, error) {
	select {
	case <-h.finished:
		return h.result, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Cancel requests cooperative cancellation of the job.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) finish(cmd Command) {
	h.result = cmd
	close(h.finished)
	h.done <- cmd
	close(h.done)
}
