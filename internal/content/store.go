package content

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ifuryst/contentsync/internal/models"
)

// ErrNotFound is returned when a post does not exist on the requested blog
var ErrNotFound = errors.New("post not found")

// Store reads and writes posts of the local network
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the post with id on blog
func (s *Store) Get(ctx context.Context, blogID int64, id uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Where("blog_id = ? AND id = ?", blogID, id).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// List returns the posts with the given ids on blog, in id order. Missing ids are ignored.
func (s *Store) List(ctx context.Context, blogID int64, ids []int64) ([]models.Post, error) {
	var posts []models.Post
	if len(ids) == 0 {
		return posts, nil
	}
	err := s.db.WithContext(ctx).
		Where("blog_id = ? AND id IN ?", blogID, ids).
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// ListByType returns every non-trashed post of postType on blog
func (s *Store) ListByType(ctx context.Context, blogID int64, postType string) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("blog_id = ? AND post_type = ? AND status <> ?", blogID, postType, models.PostStatusTrash).
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by type: %w", err)
	}
	return posts, nil
}

// FindLinked returns the copy of an origin post on blog
func (s *Store) FindLinked(ctx context.Context, blogID, originBlogID, originPostID int64) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Where("blog_id = ? AND origin_blog_id = ? AND origin_post_id = ?", blogID, originBlogID, originPostID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find linked post: %w", err)
	}
	return &post, nil
}

// Save inserts or updates post
func (s *Store) Save(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Save(post).Error; err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}
	return nil
}

// Delete removes the post permanently
func (s *Store) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Unscoped().Delete(&models.Post{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}
