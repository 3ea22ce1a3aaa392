// Package poller streams a task's output into a display surface.
//
// A Poller owns at most one Session at a time. Each session runs a poll
// cycle on its own goroutine: fetch output records after the cursor, write
// them, fetch the task status, then either arm a timer for the next cycle or
// finish with a status footer. Cycles of one session never overlap because
// the next one is armed only after the previous one has fully resolved.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pengelbrecht/runtask/internal/api"
	"go.uber.org/zap"
)

// HostPlaceholder in an output line is replaced with the display host.
const HostPlaceholder = "{WINDOW_HOSTNAME}"

// Defaults for Options.
const (
	DefaultInterval = time.Second
	DefaultPageSize = api.DefaultPageSize
)

// ANSI emphasis written into the display.
const (
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// ErrEmptyTaskID is returned by Start when no task id is given.
var ErrEmptyTaskID = errors.New("task id is required")

// Display is the surface task output is rendered into.
type Display interface {
	Clear()
	WriteLine(text string)
}

// Source is the read side of the task backend. *api.Client implements it.
type Source interface {
	TaskOutput(ctx context.Context, taskID api.ID, lastID int64, pageSize int) ([]api.OutputRecord, error)
	TaskDetail(ctx context.Context, taskID api.ID) (*api.Task, error)
}

// Options configures a Poller. Zero values take the defaults.
type Options struct {
	// Interval is the fixed delay between the end of one cycle and the start
	// of the next.
	Interval time.Duration

	// PageSize bounds the number of output records fetched per cycle.
	PageSize int

	// Host replaces HostPlaceholder in output lines.
	Host string

	Logger *zap.Logger

	// OnStatus, if set, receives every status observed by a live session.
	OnStatus func(taskID api.ID, status string)
}

// Outcome is how a session ended.
type Outcome struct {
	TaskID  api.ID
	Status  string
	Result  string
	Message string

	// Stopped is true when the session was cancelled before the task
	// reached a terminal status. Status then holds the last status seen.
	Stopped bool
}

// Success reports whether the task finished with status success.
func (o Outcome) Success() bool {
	return !o.Stopped && o.Status == api.StatusSuccess
}

// Poller drives polling sessions against one display.
type Poller struct {
	source  Source
	display Display
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	current *Session
}

// New creates a poller rendering into display.
func New(source Source, display Display, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:  source,
		display: display,
		opts:    opts,
		logger:  logger,
	}
}

// Start stops any running session, resets the display and begins polling
// taskID from cursor 0. The session also stops when ctx is cancelled.
func (p *Poller) Start(ctx context.Context, taskID api.ID) (*Session, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.stop("superseded")
	}

	s := &Session{
		poller:  p,
		taskID:  taskID,
		done:    make(chan struct{}),
		running: true,
	}
	p.current = s

	p.display.Clear()
	p.display.WriteLine(fmt.Sprintf("Task %s is running, output follows --->", taskID))
	p.logger.Info("poll_started",
		zap.String("task_id", taskID.String()),
		zap.Duration("interval", p.opts.Interval),
		zap.Int("page_size", p.opts.PageSize),
	)

	go func() {
		select {
		case <-ctx.Done():
			s.stop("context cancelled")
		case <-s.done:
		}
	}()
	go p.cycle(ctx, s)

	return s, nil
}

// Stop cancels the current session. It is a no-op when nothing is running.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.stop("stopped")
	}
}

// Current returns the most recently started session, or nil.
func (p *Poller) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// cycle runs one poll round for s and arms the next one.
func (p *Poller) cycle(ctx context.Context, s *Session) {
	if !s.Running() {
		return
	}
	if ctx.Err() != nil {
		s.stop("context cancelled")
		return
	}

	cursor := s.LastOutputID()
	records, err := p.source.TaskOutput(ctx, s.taskID, cursor, p.opts.PageSize)
	if err != nil {
		if ctx.Err() != nil {
			s.stop("context cancelled")
			return
		}
		p.logger.Warn("poll_output_error",
			zap.String("task_id", s.taskID.String()),
			zap.Int64("last_output_id", cursor),
			zap.Error(err),
		)
		s.write(ansiRed + "Failed to fetch task output: " + err.Error() + ansiReset)
	} else {
		s.appendRecords(records, p.opts.Host)
	}

	task, err := p.source.TaskDetail(ctx, s.taskID)
	if err != nil {
		if ctx.Err() != nil {
			s.stop("context cancelled")
			return
		}
		p.logger.Warn("poll_status_error",
			zap.String("task_id", s.taskID.String()),
			zap.Error(err),
		)
		s.write(ansiRed + "Failed to fetch task status: " + err.Error() + ansiReset)
		task = &api.Task{ID: s.taskID, Status: api.StatusError, Message: "failed to fetch task status"}
	}

	if s.observe(task.Status) && p.opts.OnStatus != nil {
		p.opts.OnStatus(s.taskID, task.Status)
	}

	if task.IsRunning() {
		s.schedule(ctx, p.opts.Interval)
		return
	}
	s.finish(task)
}

// Session is one polling run for one task.
type Session struct {
	poller *Poller
	taskID api.ID
	done   chan struct{}

	mu           sync.Mutex
	running      bool
	lastOutputID int64
	lastStatus   string
	timer        *time.Timer
	outcome      Outcome
}

// TaskID returns the task being followed.
func (s *Session) TaskID() api.ID {
	return s.taskID
}

// Running reports whether the session is still polling.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastOutputID returns the cursor: the highest output record id rendered.
func (s *Session) LastOutputID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutputID
}

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the final outcome. Only meaningful after Done is closed.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		return s.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// write appends a line unless the session has ended.
func (s *Session) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.poller.display.WriteLine(line)
}

// appendRecords writes records past the cursor in ascending id order and
// advances the cursor to the highest id written.
func (s *Session) appendRecords(records []api.OutputRecord, host string) {
	if len(records) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	for _, r := range records {
		if r.ID <= s.lastOutputID {
			continue
		}
		s.poller.display.WriteLine(strings.ReplaceAll(r.Output, HostPlaceholder, host))
		s.lastOutputID = r.ID
	}
}

// observe records status and reports whether the session is still live.
func (s *Session) observe(status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.lastStatus = status
	return true
}

// schedule arms the next cycle if the session is still running.
func (s *Session) schedule(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.timer = time.AfterFunc(interval, func() {
		s.poller.cycle(ctx, s)
	})
}

// finish ends the session on a terminal status and writes the footer.
func (s *Session) finish(task *api.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.end(Outcome{
		TaskID:  s.taskID,
		Status:  task.Status,
		Result:  task.Result,
		Message: task.Message,
	})

	d := s.poller.display
	d.WriteLine("")
	d.WriteLine("<--- end of task output")
	d.WriteLine("Task status: " + task.Status)
	switch task.Status {
	case api.StatusSuccess:
		d.WriteLine(ansiGreen + "Task succeeded" + ansiReset + ": " + task.Result)
	case api.StatusFailed:
		d.WriteLine(ansiRed + "Task failed" + ansiReset + ": " + task.Message)
	default:
		d.WriteLine(ansiRed + "Task errored" + ansiReset + ": " + task.Message)
	}

	s.poller.logger.Info("poll_finished",
		zap.String("task_id", s.taskID.String()),
		zap.String("status", task.Status),
		zap.Int64("last_output_id", s.lastOutputID),
	)
}

// stop cancels the pending cycle and writes a cancellation notice.
func (s *Session) stop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.end(Outcome{
		TaskID:  s.taskID,
		Status:  s.lastStatus,
		Stopped: true,
	})
	s.poller.display.WriteLine("")
	s.poller.display.WriteLine(ansiYellow + "Polling stopped" + ansiReset)

	s.poller.logger.Info("poll_stopped",
		zap.String("task_id", s.taskID.String()),
		zap.String("reason", reason),
		zap.Int64("last_output_id", s.lastOutputID),
	)
}

// end must be called with s.mu held.
func (s *Session) end(o Outcome) {
	s.running = false
	s.timer = nil
	s.outcome = o
	close(s.done)
}
