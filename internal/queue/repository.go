package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
)

var (
	// ErrNotFound is returned when a queue item does not exist
	ErrNotFound = errors.New("queue item not found")
	// ErrLeaseHeld is returned when another worker holds the item's lease
	ErrLeaseHeld = errors.New("queue item is leased by another worker")
)

// FilterStuck selects every item that has not reached success and is not leased
const FilterStuck = "stuck"

// Filter narrows List. Status is a destination status or FilterStuck, empty for all.
type Filter struct {
	Status string
	Limit  int
	Offset int
}

// Counts is the number of items per status
type Counts struct {
	Scheduled int64 `json:"scheduled"`
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Repository persists queue items with gorm
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Enqueue freezes the payload and destination snapshot into a new init item
func (r *Repository) Enqueue(ctx context.Context, posts models.PostsPayload, snap destination.Snapshot, origin, originID string) (*models.QueueItem, error) {
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode posts: %w", err)
	}
	destJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode destination: %w", err)
	}

	item := &models.QueueItem{
		Status:      destination.StatusInit,
		Posts:       string(postsJSON),
		Destination: string(destJSON),
		Origin:      origin,
		OriginID:    originID,
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create queue item: %w", err)
	}
	return item, nil
}

func (r *Repository) Get(ctx context.Context, id uint) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

// List returns items in id order
func (r *Repository) List(ctx context.Context, f Filter) ([]models.QueueItem, error) {
	q := r.db.WithContext(ctx).Model(&models.QueueItem{})

	switch f.Status {
	case "":
	case FilterStuck:
		q = q.Where("status <> ? AND (locked_until IS NULL OR locked_until < ?)", destination.StatusSuccess, r.now())
	default:
		status, err := destination.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		q = q.Where("status = ?", status)
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var items []models.QueueItem
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, nil
}

// ListStuck returns the ids of stuck items in the order they should be processed
func (r *Repository) ListStuck(ctx context.Context, limit int) ([]uint, error) {
	return r.ids(ctx, Filter{Status: FilterStuck, Limit: limit})
}

// ListByStatus returns the ids of items with the given status
func (r *Repository) ListByStatus(ctx context.Context, status destination.Status, limit int) ([]uint, error) {
	return r.ids(ctx, Filter{Status: string(status), Limit: limit})
}

func (r *Repository) ids(ctx context.Context, f Filter) ([]uint, error) {
	items, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var rows []struct {
		Status destination.Status
		Total  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Select("status, count(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return Counts{}, fmt.Errorf("failed to count queue items: %w", err)
	}

	var c Counts
	for _, row := range rows {
		switch row.Status {
		case destination.StatusInit:
			c.Scheduled = row.Total
		case destination.StatusStarted:
			c.Started = row.Total
		case destination.StatusSuccess:
			c.Completed = row.Total
		case destination.StatusFailed:
			c.Failed = row.Total
		}
	}
	return c, nil
}

// Claim takes a lease on the item for owner. A lease already held by owner is extended.
func (r *Repository) Claim(ctx context.Context, id uint, owner string, lease time.Duration) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND (locked_until IS NULL OR locked_until < ? OR locked_by = ?)", id, now, owner).
		Updates(map[string]any{
			"locked_by":    owner,
			"locked_until": now.Add(lease),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim queue item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOr(ctx, id, ErrLeaseHeld)
	}
	return nil
}

// Release drops owner's lease, a no-op when owner does not hold it
func (r *Repository) Release(ctx context.Context, id uint, owner string) error {
	err := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND locked_by = ?", id, owner).
		Updates(map[string]any{
			"locked_by":    nil,
			"locked_until": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release queue item: %w", err)
	}
	return nil
}

// MarkStarted resets a non-successful item and moves it to started
func (r *Repository) MarkStarted(ctx context.Context, id uint) error {
	return r.transition(ctx, id,
		[]destination.Status{destination.StatusInit, destination.StatusStarted, destination.StatusFailed},
		map[string]any{
			"status":   destination.StatusStarted,
			"error":    nil,
			"attempts": gorm.Expr("attempts + 1"),
		})
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uint) error {
	return r.transition(ctx, id,
		[]destination.Status{destination.StatusStarted},
		map[string]any{
			"status": destination.StatusSuccess,
			"error":  nil,
		})
}

func (r *Repository) MarkFailed(ctx context.Context, id uint, itemErr models.ItemError) error {
	data, err := json.Marshal(itemErr)
	if err != nil {
		return fmt.Errorf("failed to encode item error: %w", err)
	}
	return r.transition(ctx, id,
		[]destination.Status{destination.StatusStarted},
		map[string]any{
			"status": destination.StatusFailed,
			"error":  string(data),
		})
}

func (r *Repository) transition(ctx context.Context, id uint, from []destination.Status, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update queue item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOr(ctx, id, fmt.Errorf("%w: item %d to %v", destination.ErrInvalidTransition, id, updates["status"]))
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.QueueItem{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete queue item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeSucceeded deletes successful items created before cutoff
func (r *Repository) PurgeSucceeded(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND time < ?", destination.StatusSuccess, cutoff).
		Delete(&models.QueueItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge queue items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) missingOr(ctx context.Context, id uint, err error) error {
	var n int64
	if cerr := r.db.WithContext(ctx).Model(&models.QueueItem{}).Where("id = ?", id).Count(&n).Error; cerr != nil {
		return fmt.Errorf("failed to check queue item: %w", cerr)
	}
	if n == 0 {
		return ErrNotFound
	}
	return err
}
