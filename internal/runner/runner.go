package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
)

const (
	defaultItemTimeout = 60 * time.Second

	// Logged for any failure to get an answer for an item
	transportMessage = "Error processing item"
	// Logged when the item failed without saying why
	fallbackMessage = "Processing failed"
)

var (
	ErrAlreadyRunning = errors.New("a run is already in progress")
	ErrNoItems        = errors.New("no items to process")
	ErrNotRunning     = errors.New("no run in progress")
	ErrNotPaused      = errors.New("run is not paused")
	// ErrFinishing is returned by Start while a stopped run still waits for its in-flight item
	ErrFinishing = errors.New("previous run is finishing its current item")
)

// ItemProcessor is the "process one item" operation
type ItemProcessor interface {
	Process(ctx context.Context, id uint) (models.ProcessResult, error)
}

// Runner processes a list of queue items one at a time, in order, with
// pause, resume and stop between items.
type Runner struct {
	processor   ItemProcessor
	itemTimeout time.Duration
	observers   []Observer
	logger      *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	ids     []uint
	index   int
	success int
	errors  int
	log     []LogEntry
	counts  *CounterObserver
	busy    bool
	done    chan struct{}
}

func New(processor ItemProcessor, itemTimeout time.Duration, logger *zap.Logger, observers ...Observer) *Runner {
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	r := &Runner{
		processor:   processor,
		itemTimeout: itemTimeout,
		logger:      logger,
		state:       StateIdle,
		counts:      NewCounterObserver(Counters{}),
		done:        make(chan struct{}),
	}
	close(r.done)
	r.cond = sync.NewCond(&r.mu)
	r.observers = append([]Observer{r.counts}, observers...)
	return r
}

// Counters exposes the aggregate counters kept by the runner
func (r *Runner) Counters() *CounterObserver { return r.counts }

// Start begins a run over a copy of ids. ctx bounds the whole run.
func (r *Runner) Start(ctx context.Context, ids []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning || r.state == StatePaused {
		return ErrAlreadyRunning
	}
	if r.busy {
		return ErrFinishing
	}
	if len(ids) == 0 {
		return ErrNoItems
	}

	r.ids = append([]uint(nil), ids...)
	r.index = 0
	r.success = 0
	r.errors = 0
	r.log = nil
	r.state = StateRunning
	r.busy = true
	r.done = make(chan struct{})

	r.logger.Info("Run started", zap.Int("items", len(r.ids)))

	go r.loop(ctx, r.done)
	return nil
}

func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRunning {
		return ErrNotRunning
	}
	r.state = StatePaused
	r.logger.Info("Run paused", zap.Int("index", r.index))
	return nil
}

func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return ErrNotPaused
	}
	r.state = StateRunning
	r.cond.Broadcast()
	r.logger.Info("Run resumed", zap.Int("index", r.index))
	return nil
}

// Stop ends the run. An item already being processed still finishes and is
// recorded, but no further item starts.
func (r *Runner) Stop() (Summary, error) {
	r.mu.Lock()
	if r.state != StateRunning && r.state != StatePaused {
		r.mu.Unlock()
		return Summary{}, ErrNotRunning
	}
	r.state = StateStopped
	r.cond.Broadcast()
	summary := newSummary(r.success, r.errors, len(r.ids))
	r.mu.Unlock()

	r.logger.Info("Run stopped", zap.String("summary", summary.Text))
	r.finished()
	return summary, nil
}

// Guarded reports whether leaving now would lose an active run's position
func (r *Runner) Guarded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRunning
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return newProgress(r.success+r.errors, len(r.ids))
}

// Summary returns the closing numbers of the current or last run
func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return newSummary(r.success, r.errors, len(r.ids))
}

func (r *Runner) Log() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.log...)
}

func (r *Runner) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportLocked()
}

func (r *Runner) reportLocked() Report {
	rep := Report{
		State:    r.state,
		Guarded:  r.state == StateRunning,
		Progress: newProgress(r.success+r.errors, len(r.ids)),
		Counters: r.counts.Counters(),
		Log:      append([]LogEntry(nil), r.log...),
	}
	if r.state == StateStopped || r.state == StateCompleted {
		s := newSummary(r.success, r.errors, len(r.ids))
		rep.Summary = &s
	}
	return rep
}

// Done is closed when the worker of the last started run has exited
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Wait blocks until the worker exits or ctx ends
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
		close(done)
	}()

	// Wake a paused worker when ctx ends
	stopWake := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cond.Broadcast()
	})
	defer stopWake()

	for {
		r.mu.Lock()
		for r.state == StatePaused && ctx.Err() == nil {
			r.cond.Wait()
		}
		if r.state != StateRunning && r.state != StatePaused {
			r.mu.Unlock()
			return
		}
		if r.index >= len(r.ids) {
			r.state = StateCompleted
			summary := newSummary(r.success, r.errors, len(r.ids))
			r.mu.Unlock()

			r.logger.Info("Run completed", zap.String("summary", summary.Text))
			r.finished()
			return
		}
		if ctx.Err() != nil {
			r.state = StateStopped
			r.mu.Unlock()

			r.logger.Warn("Run cancelled", zap.Error(ctx.Err()))
			r.finished()
			return
		}
		id := r.ids[r.index]
		r.mu.Unlock()

		status, message := r.processOne(ctx, id)
		r.record(id, status, message)
	}
}

func (r *Runner) record(id uint, status destination.Status, message string) {
	r.mu.Lock()
	entry := LogEntry{ItemID: id, Message: message, Time: time.Now()}
	if status == destination.StatusSuccess {
		r.success++
		entry.Type = LogSuccess
	} else {
		r.errors++
		entry.Type = LogError
	}
	r.log = append(r.log, entry)
	r.index++
	r.mu.Unlock()

	for _, o := range r.observers {
		o.ItemFinished(id, status)
	}
}

// processOne never lets a single item stall the run: a processor ignoring
// ctx is abandoned once the item timeout passes.
func (r *Runner) processOne(ctx context.Context, id uint) (destination.Status, string) {
	ictx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	defer cancel()

	type answer struct {
		res models.ProcessResult
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		res, err := r.processor.Process(ictx, id)
		ch <- answer{res: res, err: err}
	}()

	var a answer
	select {
	case a = <-ch:
	case <-ictx.Done():
		a.err = fmt.Errorf("item %d: %w", id, ictx.Err())
	}

	if a.err != nil {
		r.logger.Error("Failed to process queue item", zap.Uint("item_id", id), zap.Error(a.err))
		return destination.StatusFailed, transportMessage
	}
	if !a.res.Success {
		msg := a.res.Data.Message
		if msg == "" {
			msg = fallbackMessage
		}
		r.logger.Warn("Queue item failed", zap.Uint("item_id", id), zap.String("message", msg))
		return destination.StatusFailed, msg
	}

	msg := a.res.Data.Message
	if msg == "" {
		msg = fmt.Sprintf("Item %d processed", id)
	}
	return destination.StatusSuccess, msg
}

func (r *Runner) finished() {
	r.mu.Lock()
	rep := r.reportLocked()
	r.mu.Unlock()

	for _, o := range r.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.RunFinished(rep)
		}
	}
}
