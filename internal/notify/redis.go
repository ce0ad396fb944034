package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/runner"
)

const publishTimeout = 5 * time.Second

// Event types published on the channel
const (
	EventItemFinished = "item_finished"
	EventRunFinished  = "run_finished"
)

// Event is the JSON message published for every finished item and run
type Event struct {
	Type    string             `json:"type"`
	ItemID  uint               `json:"item_id,omitempty"`
	Status  destination.Status `json:"status,omitempty"`
	Label   string             `json:"label,omitempty"`
	Summary *runner.Summary    `json:"summary,omitempty"`
	Time    time.Time          `json:"time"`
}

// RedisObserver mirrors run progress to a Redis pub/sub channel
type RedisObserver struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisObserver(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisObserver {
	return &RedisObserver{client: client, channel: channel, logger: logger}
}

func (o *RedisObserver) ItemFinished(id uint, status destination.Status) {
	o.publish(Event{
		Type:   EventItemFinished,
		ItemID: id,
		Status: status,
		Label:  runner.Label(status),
		Time:   time.Now().UTC(),
	})
}

func (o *RedisObserver) RunFinished(report runner.Report) {
	o.publish(Event{
		Type:    EventRunFinished,
		Summary: report.Summary,
		Time:    time.Now().UTC(),
	})
}

// publish is best effort; a lost event never fails the run
func (o *RedisObserver) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := o.client.Publish(ctx, o.channel, data).Err(); err != nil {
		o.logger.Warn("Failed to publish event",
			zap.String("channel", o.channel),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}
