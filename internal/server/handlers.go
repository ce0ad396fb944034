package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/config"
	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/internal/queue"
	"github.com/ifuryst/contentsync/internal/runner"
	"github.com/ifuryst/contentsync/internal/service"
)

// QueueStore is the part of queue.Repository the API needs
type QueueStore interface {
	Enqueue(ctx context.Context, posts models.PostsPayload, snap destination.Snapshot, origin, originID string) (*models.QueueItem, error)
	Get(ctx context.Context, id uint) (*models.QueueItem, error)
	List(ctx context.Context, f queue.Filter) ([]models.QueueItem, error)
	Counts(ctx context.Context) (queue.Counts, error)
	Delete(ctx context.Context, id uint) error
}

type distributionRequest struct {
	Posts       models.PostsPayload `json:"posts" binding:"required"`
	Destination json.RawMessage     `json:"destination" binding:"required"`
	Origin      string              `json:"origin" binding:"max=100"`
	OriginID    string              `json:"origin_id" binding:"max=255"`
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"run":    s.Runs.Runner().State(),
		})
	})

	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))

	api := s.Router.Group("/api/v1")
	{
		api.POST("/distributions", s.handleCreateDistribution)

		q := api.Group("/queue")
		{
			q.GET("", s.handleListQueue)
			q.GET("/counts", s.handleQueueCounts)
			q.GET("/:id", s.handleGetQueueItem)
			q.DELETE("/:id", s.handleDeleteQueueItem)
			q.POST("/:id/process", s.handleProcessQueueItem)
		}

		runs := api.Group("/runs")
		{
			runs.GET("", s.handleGetRun)
			runs.POST("", s.handleStartRun)
			runs.POST("/pause", s.handlePauseRun)
			runs.POST("/resume", s.handleResumeRun)
			runs.POST("/stop", s.handleStopRun)
		}
	}
}

func (s *Server) handleCreateDistribution(c *gin.Context) {
	var req distributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Posts.PostIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "posts.post_ids must not be empty"})
		return
	}

	snap, issues, err := destination.DecodeSnapshot(req.Destination)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "issues": issues})
		return
	}
	if len(issues) > 0 {
		s.Metrics.DecodeIssues.Add(float64(len(issues)))
	}

	item, err := s.Queue.Enqueue(c.Request.Context(), req.Posts, snap, req.Origin, req.OriginID)
	if err != nil {
		s.Logger.Error("Failed to enqueue distribution", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue distribution"})
		return
	}
	s.Metrics.ItemsEnqueued.WithLabelValues(string(snap.Kind)).Inc()

	s.Logger.Info("Distribution enqueued",
		zap.Uint("item_id", item.ID),
		zap.String("kind", string(snap.Kind)),
		zap.Int("issues", len(issues)))

	if issues == nil {
		issues = []destination.Issue{}
	}
	c.JSON(http.StatusCreated, gin.H{"item": item, "issues": issues})
}

func (s *Server) handleListQueue(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != queue.FilterStuck {
		if _, err := destination.ParseStatus(status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	items, err := s.Queue.List(c.Request.Context(), queue.Filter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		s.Logger.Error("Failed to list queue items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list queue items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleQueueCounts(c *gin.Context) {
	counts, err := s.Queue.Counts(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to count queue items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count queue items"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (s *Server) handleGetQueueItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	item, err := s.Queue.Get(c.Request.Context(), id)
	if err != nil {
		s.queueError(c, err, "Failed to get queue item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (s *Server) handleDeleteQueueItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	if err := s.Queue.Delete(c.Request.Context(), id); err != nil {
		s.queueError(c, err, "Failed to delete queue item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Queue item deleted"})
}

// handleProcessQueueItem answers {success, data:{message}} for every item
// that could be processed, successful or not.
func (s *Server) handleProcessQueueItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.Duration(s.Config.Queue.ItemTimeout))
	defer cancel()

	res, err := s.Processor.Process(ctx, id)
	if err != nil {
		s.queueError(c, err, "Failed to process queue item")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetRun(c *gin.Context) {
	c.JSON(http.StatusOK, s.Runs.Runner().Report())
}

func (s *Server) handleStartRun(c *gin.Context) {
	n, err := s.Runs.StartStuck(c.Request.Context(), service.TriggerAPI)
	if err != nil {
		s.runError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"items": n, "report": s.Runs.Runner().Report()})
}

func (s *Server) handlePauseRun(c *gin.Context) {
	if err := s.Runs.Runner().Pause(); err != nil {
		s.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Runs.Runner().Report())
}

func (s *Server) handleResumeRun(c *gin.Context) {
	if err := s.Runs.Runner().Resume(); err != nil {
		s.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Runs.Runner().Report())
}

func (s *Server) handleStopRun(c *gin.Context) {
	summary, err := s.Runs.Runner().Stop()
	if err != nil {
		s.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "report": s.Runs.Runner().Report()})
}

func (s *Server) queueError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrLeaseHeld):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, destination.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.Logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func (s *Server) runError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, runner.ErrNoItems):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, runner.ErrAlreadyRunning),
		errors.Is(err, runner.ErrFinishing),
		errors.Is(err, runner.ErrNotRunning),
		errors.Is(err, runner.ErrNotPaused):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("Run control failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Run control failed"})
	}
}

func itemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue item id"})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
