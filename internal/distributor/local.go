package distributor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/content"
	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/pkg/util"
)

// PostStore is the part of content.Store the local distributor needs
type PostStore interface {
	Get(ctx context.Context, blogID int64, id uint) (*models.Post, error)
	List(ctx context.Context, blogID int64, ids []int64) ([]models.Post, error)
	ListByType(ctx context.Context, blogID int64, postType string) ([]models.Post, error)
	FindLinked(ctx context.Context, blogID, originBlogID, originPostID int64) (*models.Post, error)
	Save(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

// LocalDistributor copies posts between blogs of the local network
type LocalDistributor struct {
	store  PostStore
	logger *zap.Logger
}

func NewLocalDistributor(store PostStore, logger *zap.Logger) *LocalDistributor {
	return &LocalDistributor{store: store, logger: logger}
}

func (d *LocalDistributor) Name() string { return "local" }

func (d *LocalDistributor) Supports(kind destination.Kind) bool {
	return kind == destination.KindBlog || kind == destination.KindPost
}

type exportEntry struct {
	post     models.Post
	settings destination.Resolved
}

func (d *LocalDistributor) Distribute(ctx context.Context, job Job) (*Result, error) {
	origin, err := d.store.List(ctx, job.Posts.BlogID, job.Posts.PostIDs)
	if err != nil {
		return nil, err
	}

	var results []PostResult
	found := make(map[int64]bool, len(origin))
	for _, p := range origin {
		found[int64(p.ID)] = true
	}
	for _, id := range job.Posts.PostIDs {
		if !found[id] {
			results = append(results, PostResult{
				OriginID: id,
				Outcome:  OutcomeFailed,
				Error:    fmt.Sprintf("origin post %d not found on blog %d", id, job.Posts.BlogID),
			})
		}
	}

	inherited := job.Snapshot.Inherited()
	for _, blog := range job.Snapshot.Blogs() {
		if blog.ID == job.Posts.BlogID {
			for _, p := range origin {
				results = append(results, PostResult{
					BlogID:   blog.ID,
					OriginID: int64(p.ID),
					Outcome:  OutcomeFailed,
					Error:    "destination blog is the origin blog",
				})
			}
			continue
		}

		entries, err := d.exportSet(ctx, job.Posts.BlogID, blog, inherited, origin)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			results = append(results, d.apply(ctx, job.Posts.BlogID, blog, e))
		}
	}

	success, msg := summarize(results)
	d.logger.Info("Local distribution finished",
		zap.Uint("item_id", job.ItemID),
		zap.Bool("success", success),
		zap.String("summary", msg))

	return &Result{Success: success, Message: msg, Posts: results}, nil
}

// exportSet resolves settings for every origin post on blog and expands
// whole_posttype exports.
func (d *LocalDistributor) exportSet(ctx context.Context, originBlogID int64, blog *destination.BlogDestination, inherited destination.Settings, origin []models.Post) ([]exportEntry, error) {
	seen := make(map[uint]bool)
	var entries []exportEntry

	for _, p := range origin {
		leaf := destination.Settings{}
		if pd, ok := blog.Post(int64(p.ID)); ok {
			leaf = pd.Settings
		}
		resolved := destination.ResolveChain(leaf, blog.Settings, inherited)

		if !seen[p.ID] {
			seen[p.ID] = true
			entries = append(entries, exportEntry{post: p, settings: resolved})
		}

		if !resolved.WholePosttype {
			continue
		}
		siblings, err := d.store.ListByType(ctx, originBlogID, p.PostType)
		if err != nil {
			return nil, err
		}
		for _, s := range siblings {
			if !seen[s.ID] {
				seen[s.ID] = true
				entries = append(entries, exportEntry{post: s, settings: resolved})
			}
		}
	}
	return entries, nil
}

func (d *LocalDistributor) apply(ctx context.Context, originBlogID int64, blog *destination.BlogDestination, e exportEntry) PostResult {
	originID := int64(e.post.ID)
	res := PostResult{BlogID: blog.ID, OriginID: originID}
	fail := func(err error) PostResult {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		d.logger.Warn("Failed to distribute post",
			zap.Int64("blog_id", blog.ID),
			zap.Int64("origin_id", originID),
			zap.Error(err))
		return res
	}

	existing, linked, err := d.findExisting(ctx, originBlogID, blog, originID)
	if err != nil {
		return fail(err)
	}

	target := existing
	switch {
	case existing != nil && linked:
		// The copy made by an earlier run is the sync target, not a conflict
		res.LinkedID = int64(existing.ID)
		copyContent(target, &e.post, e.settings.AllTerms)
		res.Outcome = OutcomeUpdated
	case existing != nil:
		res.LinkedID = int64(existing.ID)
		switch e.settings.ConflictAction {
		case destination.ConflictSkip:
			res.Outcome = OutcomeSkipped
			return res
		case destination.ConflictKeep:
			link(target, originBlogID, originID)
			if err := d.store.Save(ctx, target); err != nil {
				return fail(err)
			}
			res.Outcome = OutcomeKept
			return res
		default:
			link(target, originBlogID, originID)
			copyContent(target, &e.post, e.settings.AllTerms)
			res.Outcome = OutcomeReplaced
		}
	default:
		if e.settings.ImportAction == destination.ImportDelete {
			res.Outcome = OutcomeSkipped
			return res
		}
		target = &models.Post{BlogID: blog.ID}
		link(target, originBlogID, originID)
		copyContent(target, &e.post, e.settings.AllTerms)
		res.Outcome = OutcomeCreated
	}

	switch e.settings.ImportAction {
	case destination.ImportDelete:
		if err := d.store.Delete(ctx, target.ID); err != nil {
			return fail(err)
		}
		res.Outcome = OutcomeDeleted
		return res
	case destination.ImportTrash:
		target.Status = models.PostStatusTrash
		res.Outcome = OutcomeTrashed
	case destination.ImportDraft:
		target.Status = models.PostStatusDraft
	default:
		target.Status = models.PostStatusPublish
	}

	if err := d.store.Save(ctx, target); err != nil {
		return fail(err)
	}
	res.LinkedID = int64(target.ID)
	return res
}

// findExisting looks up the linked copy first and falls back to the explicit
// destination post ID carried by the snapshot. linked reports which one matched.
func (d *LocalDistributor) findExisting(ctx context.Context, originBlogID int64, blog *destination.BlogDestination, originID int64) (*models.Post, bool, error) {
	post, err := d.store.FindLinked(ctx, blog.ID, originBlogID, originID)
	if err == nil {
		return post, true, nil
	}
	if !errors.Is(err, content.ErrNotFound) {
		return nil, false, err
	}

	pd, ok := blog.Post(originID)
	if !ok || pd.ID == 0 {
		return nil, false, nil
	}
	post, err = d.store.Get(ctx, blog.ID, uint(pd.ID))
	if errors.Is(err, content.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return post, false, nil
}

func link(dst *models.Post, originBlogID, originID int64) {
	dst.OriginBlogID = &originBlogID
	dst.OriginPostID = &originID
}

func copyContent(dst, src *models.Post, withTerms bool) {
	dst.PostType = src.PostType
	dst.Title = src.Title
	dst.Content = src.Content
	dst.Excerpt = src.Excerpt
	dst.Slug = src.Slug
	if dst.Slug == "" {
		dst.Slug = util.GenerateSlug(src.Title)
	}
	if withTerms {
		dst.Terms = src.Terms
	}
	if dst.Terms == "" {
		dst.Terms = "[]"
	}
}
