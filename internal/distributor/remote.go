package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
)

const maxResponseBytes = 1 << 20

// TokenSource returns the bearer token for a remote network URL
type TokenSource func(networkURL string) string

// RemoteOptions configures RemoteDistributor
type RemoteOptions struct {
	ImportPath    string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	// RateLimit caps requests per second to one remote host, unlimited when zero
	RateLimit float64
}

// RemoteDistributor pushes content to remote networks over HTTP
type RemoteDistributor struct {
	opts   RemoteOptions
	client *http.Client
	store  PostStore
	tokens TokenSource
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Result]
	limiters map[string]*rate.Limiter
}

func NewRemoteDistributor(opts RemoteOptions, store PostStore, tokens TokenSource, logger *zap.Logger) *RemoteDistributor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if tokens == nil {
		tokens = func(string) string { return "" }
	}

	return &RemoteDistributor{
		opts:     opts,
		client:   &http.Client{Timeout: opts.Timeout},
		store:    store,
		tokens:   tokens,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *RemoteDistributor) Name() string { return "remote" }

func (d *RemoteDistributor) Supports(kind destination.Kind) bool {
	return kind == destination.KindRemote
}

type exportedPost struct {
	ID       uint            `json:"ID"`
	PostType string          `json:"post_type"`
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Content  string          `json:"content"`
	Excerpt  string          `json:"excerpt"`
	Status   string          `json:"status"`
	Terms    json.RawMessage `json:"terms,omitempty"`
}

type importRequest struct {
	ItemID       uint                           `json:"item_id"`
	OriginBlogID int64                          `json:"origin_blog_id"`
	Posts        []exportedPost                 `json:"posts"`
	Destination  *destination.RemoteDestination `json:"destination"`
}

func (d *RemoteDistributor) Distribute(ctx context.Context, job Job) (*Result, error) {
	remote := job.Snapshot.Remote
	if remote == nil {
		return nil, errors.New("remote snapshot without a remote destination")
	}

	endpoint, err := d.endpoint(remote.ID)
	if err != nil {
		return &Result{Success: false, Message: err.Error()}, nil
	}

	posts, err := d.store.List(ctx, job.Posts.BlogID, job.Posts.PostIDs)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return &Result{Success: false, Message: "none of the origin posts exist"}, nil
	}

	req := importRequest{
		ItemID:       job.ItemID,
		OriginBlogID: job.Posts.BlogID,
		Destination:  remote,
	}
	for _, p := range posts {
		ep := exportedPost{
			ID:       p.ID,
			PostType: p.PostType,
			Title:    p.Title,
			Slug:     p.Slug,
			Content:  p.Content,
			Excerpt:  p.Excerpt,
			Status:   p.Status,
		}
		if p.Terms != "" {
			ep.Terms = json.RawMessage(p.Terms)
		}
		req.Posts = append(req.Posts, ep)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode import request: %w", err)
	}

	cb, limiter := d.guards(endpoint.Host)
	result, err := cb.Execute(func() (*Result, error) {
		return d.send(ctx, limiter, endpoint.String(), d.tokens(remote.ID), body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, remote.ID, err)
	}

	d.logger.Info("Remote distribution finished",
		zap.Uint("item_id", job.ItemID),
		zap.String("network", remote.ID),
		zap.Bool("success", result.Success),
		zap.String("message", result.Message))

	return result, nil
}

func (d *RemoteDistributor) endpoint(networkURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(networkURL, "/") + d.opts.ImportPath)
	if err != nil {
		return nil, fmt.Errorf("invalid network url %q: %w", networkURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid network url %q: unsupported scheme", networkURL)
	}
	return u, nil
}

// send posts body and retries transport errors and 5xx answers with exponential backoff
func (d *RemoteDistributor) send(ctx context.Context, limiter *rate.Limiter, endpoint, token string, body []byte) (*Result, error) {
	var result *Result

	op := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("remote returned status %d", resp.StatusCode)
		}

		var wire models.ProcessResult
		if err := json.Unmarshal(raw, &wire); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				result = &Result{Success: false, Message: fmt.Sprintf("remote returned status %d", resp.StatusCode)}
				return nil
			}
			return backoff.Permanent(fmt.Errorf("invalid response from remote: %w", err))
		}

		result = &Result{
			Success: wire.Success && resp.StatusCode < http.StatusBadRequest,
			Message: wire.Data.Message,
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.RetryInterval
	policy.MaxElapsedTime = d.opts.Timeout

	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxRetries)), ctx),
		func(err error, next time.Duration) {
			d.logger.Warn("Remote import failed, retrying",
				zap.String("endpoint", endpoint),
				zap.Duration("next_attempt", next),
				zap.Error(err))
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// guards returns the circuit breaker and rate limiter of host
func (d *RemoteDistributor) guards(host string) (*gobreaker.CircuitBreaker[*Result], *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb, d.limiters[host]
	}

	limit := rate.Inf
	if d.opts.RateLimit > 0 {
		limit = rate.Limit(d.opts.RateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "remote:" + host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		// Opens after 60% failures with at least 5 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	d.breakers[host] = cb
	d.limiters[host] = limiter
	return cb, limiter
}
