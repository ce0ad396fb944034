package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/ifuryst/contentsync/internal/destination"
)

// State is the state of the run controller
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// LogType colors a log entry
type LogType string

const (
	LogSuccess LogType = "success"
	LogError   LogType = "error"
)

// LogEntry is the outcome of one item in a run
type LogEntry struct {
	ItemID  uint      `json:"item_id"`
	Type    LogType   `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Progress is processed/total of the current run
type Progress struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	Label     string  `json:"label"`
}

func newProgress(processed, total int) Progress {
	p := Progress{
		Processed: processed,
		Total:     total,
		Label:     fmt.Sprintf("%d of %d", processed, total),
	}
	if total > 0 {
		p.Percent = float64(processed) / float64(total) * 100
	}
	return p
}

// Summary is the closing sentence of a run and the numbers behind it
type Summary struct {
	Success   int    `json:"success"`
	Errors    int    `json:"errors"`
	Attempted int    `json:"attempted"`
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
	Text      string `json:"text"`
}

// AllSucceeded reports whether the summary uses the "all succeeded" template
func (s Summary) AllSucceeded() bool { return s.Errors == 0 }

func newSummary(success, errors, total int) Summary {
	s := Summary{
		Success:   success,
		Errors:    errors,
		Attempted: success + errors,
		Total:     total,
		Remaining: total - success - errors,
	}
	if s.AllSucceeded() {
		s.Text = fmt.Sprintf("%d of %d items were processed successfully.", s.Success, s.Total)
	} else {
		s.Text = fmt.Sprintf("%d of %d attempted items were processed successfully, %d failed, %d remaining.",
			s.Success, s.Attempted, s.Errors, s.Remaining)
	}
	return s
}

// Report is a point-in-time view of the run controller
type Report struct {
	State    State      `json:"state"`
	Guarded  bool       `json:"guarded"`
	Progress Progress   `json:"progress"`
	Summary  *Summary   `json:"summary,omitempty"`
	Counters Counters   `json:"counters"`
	Log      []LogEntry `json:"log"`
}

// Observer mirrors item outcomes outside the run controller
type Observer interface {
	ItemFinished(id uint, status destination.Status)
}

// RunObserver is implemented by observers that also want the end of a run
type RunObserver interface {
	RunFinished(report Report)
}

// Counters is the aggregate count display: scheduled, completed, failed
type Counters struct {
	Scheduled int64 `json:"scheduled"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// CounterObserver keeps Counters consistent with finished items
type CounterObserver struct {
	mu sync.Mutex
	c  Counters
}

func NewCounterObserver(initial Counters) *CounterObserver {
	return &CounterObserver{c: initial}
}

// Reset replaces the counters, typically with fresh numbers from the queue
func (o *CounterObserver) Reset(c Counters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.c = c
}

// ItemFinished decrements Scheduled (never below zero) and increments exactly
// one of Completed or Failed.
func (o *CounterObserver) ItemFinished(_ uint, status destination.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.c.Scheduled > 0 {
		o.c.Scheduled--
	}
	if status == destination.StatusSuccess {
		o.c.Completed++
	} else {
		o.c.Failed++
	}
}

func (o *CounterObserver) Counters() Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.c
}

// StatusMirror keeps the last terminal status per item, the row status view
type StatusMirror struct {
	mu   sync.RWMutex
	rows map[uint]destination.Status
}

func NewStatusMirror() *StatusMirror {
	return &StatusMirror{rows: make(map[uint]destination.Status)}
}

func (m *StatusMirror) ItemFinished(id uint, status destination.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id] = status
}

// Status returns the mirrored status of id
func (m *StatusMirror) Status(id uint) (destination.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rows[id]
	return s, ok
}

// Label is the human label shown for a terminal status
func Label(status destination.Status) string {
	if status == destination.StatusSuccess {
		return "Completed"
	}
	return "Failed"
}
