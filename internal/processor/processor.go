package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/distributor"
	"github.com/ifuryst/contentsync/internal/metrics"
	"github.com/ifuryst/contentsync/internal/models"
)

const defaultLease = 5 * time.Minute

// Repository is the part of queue.Repository the processor needs
type Repository interface {
	Get(ctx context.Context, id uint) (*models.QueueItem, error)
	Claim(ctx context.Context, id uint, owner string, lease time.Duration) error
	Release(ctx context.Context, id uint, owner string) error
	MarkStarted(ctx context.Context, id uint) error
	MarkSucceeded(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, itemErr models.ItemError) error
}

// Dispatcher hands a job to the matching distributor
type Dispatcher interface {
	Distribute(ctx context.Context, job distributor.Job) (*distributor.Result, error)
}

// Processor runs the "process one item" operation against the queue
type Processor struct {
	repo       Repository
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer

	owner string
	lease time.Duration
}

func NewProcessor(repo Repository, dispatcher Dispatcher, m *metrics.Metrics, lease time.Duration, logger *zap.Logger) *Processor {
	if lease <= 0 {
		lease = defaultLease
	}
	return &Processor{
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("contentsync-processor"),
		owner:      uuid.NewString(),
		lease:      lease,
	}
}

// Owner is the lease owner prefix of this processor. Every Process call
// leases the item under its own token derived from it.
func (p *Processor) Owner() string { return p.owner }

func (p *Processor) leaseToken() string {
	return p.owner + ":" + uuid.NewString()
}

// Process distributes queue item id and records the outcome on the item.
// Distribution failures come back as an unsuccessful result; the error is
// reserved for the item being unavailable or the queue being unreachable.
func (p *Processor) Process(ctx context.Context, id uint) (models.ProcessResult, error) {
	ctx, span := p.tracer.Start(ctx, "queue.process",
		trace.WithAttributes(attribute.Int64("queue.item_id", int64(id))))
	defer span.End()

	token := p.leaseToken()
	if err := p.repo.Claim(ctx, id, token, p.lease); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.ProcessResult{}, err
	}
	defer func() {
		if err := p.repo.Release(context.WithoutCancel(ctx), id, token); err != nil {
			p.logger.Warn("Failed to release queue item", zap.Uint("item_id", id), zap.Error(err))
		}
	}()

	item, err := p.repo.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.ProcessResult{}, err
	}
	if item.Status == destination.StatusSuccess {
		return models.Succeeded("item was already distributed"), nil
	}

	if err := p.repo.MarkStarted(ctx, id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.ProcessResult{}, err
	}

	start := time.Now()
	job, err := p.decode(item)
	if err != nil {
		return p.fail(ctx, span, id, "", models.ErrorKindBusiness, fmt.Sprintf("invalid queue item: %v", err))
	}
	kind := string(job.Snapshot.Kind)
	span.SetAttributes(attribute.String("destination.kind", kind))

	result, err := p.dispatcher.Distribute(ctx, job)
	p.metrics.ItemDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		errKind := models.ErrorKindBusiness
		if isTransport(err) {
			errKind = models.ErrorKindTransport
		}
		return p.fail(ctx, span, id, kind, errKind, err.Error())
	}
	if !result.Success {
		return p.fail(ctx, span, id, kind, models.ErrorKindBusiness, result.Message)
	}

	if err := p.repo.MarkSucceeded(context.WithoutCancel(ctx), id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.ProcessResult{}, err
	}
	p.metrics.ItemsProcessed.WithLabelValues(string(destination.StatusSuccess), "").Inc()

	p.logger.Info("Queue item distributed",
		zap.Uint("item_id", id),
		zap.String("kind", kind),
		zap.String("message", result.Message))

	return models.Succeeded(result.Message), nil
}

func (p *Processor) fail(ctx context.Context, span trace.Span, id uint, kind string, errKind models.ErrorKind, message string) (models.ProcessResult, error) {
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.String("error.kind", string(errKind)))

	// The item is recorded even when ctx ran out during distribution
	if err := p.repo.MarkFailed(context.WithoutCancel(ctx), id, models.ItemError{Kind: errKind, Message: message}); err != nil {
		return models.ProcessResult{}, err
	}
	p.metrics.ItemsProcessed.WithLabelValues(string(destination.StatusFailed), string(errKind)).Inc()

	p.logger.Warn("Queue item failed",
		zap.Uint("item_id", id),
		zap.String("kind", kind),
		zap.String("error_kind", string(errKind)),
		zap.String("message", message))

	return models.Failed(message), nil
}

func (p *Processor) decode(item *models.QueueItem) (distributor.Job, error) {
	var posts models.PostsPayload
	if err := json.Unmarshal([]byte(item.Posts), &posts); err != nil {
		return distributor.Job{}, fmt.Errorf("posts: %w", err)
	}
	if len(posts.PostIDs) == 0 {
		return distributor.Job{}, errors.New("posts: no post ids")
	}

	snap, issues, err := destination.DecodeSnapshot([]byte(item.Destination))
	if err != nil {
		return distributor.Job{}, fmt.Errorf("destination: %w", err)
	}
	if len(issues) > 0 {
		p.metrics.DecodeIssues.Add(float64(len(issues)))
		for _, issue := range issues {
			p.logger.Warn("Destination decoded with issue",
				zap.Uint("item_id", item.ID),
				zap.String("issue", issue.String()))
		}
	}

	return distributor.Job{ItemID: item.ID, Posts: posts, Snapshot: snap}, nil
}

func isTransport(err error) bool {
	return errors.Is(err, distributor.ErrTransport) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
