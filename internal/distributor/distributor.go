package distributor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
)

// ErrTransport marks failures to reach a destination at all, as opposed to a
// destination that answered and refused the content
var ErrTransport = errors.New("transport failure")

// Job is one queue item ready to be distributed
type Job struct {
	ItemID   uint
	Posts    models.PostsPayload
	Snapshot destination.Snapshot
}

// Outcome is what happened to one post on one blog
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeReplaced Outcome = "replaced"
	OutcomeKept     Outcome = "kept"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeTrashed  Outcome = "trashed"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeFailed   Outcome = "failed"
)

// PostResult reports a single post on a single blog
type PostResult struct {
	BlogID   int64   `json:"blog_id"`
	OriginID int64   `json:"origin_id"`
	LinkedID int64   `json:"linked_id,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Result is the outcome of distributing a job
type Result struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Posts   []PostResult `json:"posts,omitempty"`
}

// Distributor delivers jobs to one kind of destination
type Distributor interface {
	Name() string
	Supports(kind destination.Kind) bool
	Distribute(ctx context.Context, job Job) (*Result, error)
}

// Manager routes jobs to registered distributors
type Manager struct {
	distributors map[string]Distributor
	logger       *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		distributors: make(map[string]Distributor),
		logger:       logger,
	}
}

func (m *Manager) Register(d Distributor) error {
	name := d.Name()
	if _, exists := m.distributors[name]; exists {
		return fmt.Errorf("distributor %s already registered", name)
	}

	m.distributors[name] = d
	m.logger.Info("Distributor registered", zap.String("distributor", name))
	return nil
}

// For returns the distributor handling kind
func (m *Manager) For(kind destination.Kind) (Distributor, error) {
	names := make([]string, 0, len(m.distributors))
	for name := range m.distributors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if d := m.distributors[name]; d.Supports(kind) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no distributor for %s destinations", kind)
}

// Distribute hands job to the distributor for its snapshot kind
func (m *Manager) Distribute(ctx context.Context, job Job) (*Result, error) {
	d, err := m.For(job.Snapshot.Kind)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Distributing queue item",
		zap.Uint("item_id", job.ItemID),
		zap.String("distributor", d.Name()),
		zap.String("kind", string(job.Snapshot.Kind)))

	return d.Distribute(ctx, job)
}

func summarize(posts []PostResult) (bool, string) {
	counts := make(map[Outcome]int)
	for _, p := range posts {
		counts[p.Outcome]++
	}
	if len(posts) == 0 {
		return false, "nothing to distribute"
	}

	msg := fmt.Sprintf("%d post(s) distributed", len(posts)-counts[OutcomeFailed])
	outcomes := []Outcome{OutcomeCreated, OutcomeUpdated, OutcomeReplaced, OutcomeKept, OutcomeSkipped, OutcomeTrashed, OutcomeDeleted, OutcomeFailed}
	sep := ": "
	for _, o := range outcomes {
		if counts[o] > 0 {
			msg += fmt.Sprintf("%s%d %s", sep, counts[o], o)
			sep = ", "
		}
	}
	return counts[OutcomeFailed] == 0, msg
}
