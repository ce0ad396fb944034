package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/internal/queue"
)

const maxBodyBytes = 4 << 20

// APIError is a non-2xx answer of the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the queue API of a contentsync server
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Process asks the server to process one queue item
func (c *Client) Process(ctx context.Context, id uint) (models.ProcessResult, error) {
	var res models.ProcessResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/queue/%d/process", id), nil, &res)
	return res, err
}

// Stuck returns the ids of items that have not reached success, in queue order
func (c *Client) Stuck(ctx context.Context, limit int) ([]uint, error) {
	q := url.Values{}
	q.Set("status", queue.FilterStuck)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var body struct {
		Items []models.QueueItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(body.Items))
	for _, item := range body.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Counts returns the number of queue items per status
func (c *Client) Counts(ctx context.Context) (queue.Counts, error) {
	var body struct {
		Counts queue.Counts `json:"counts"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/queue/counts", nil, &body)
	return body.Counts, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
