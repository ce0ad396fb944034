package destination_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/contentsync/internal/destination"
)

func TestStatusTransitions(t *testing.T) {
	testCases := []struct {
		name string
		from destination.Status
		to   destination.Status
		want bool
	}{
		{"init to started", destination.StatusInit, destination.StatusStarted, true},
		{"started to success", destination.StatusStarted, destination.StatusSuccess, true},
		{"started to failed", destination.StatusStarted, destination.StatusFailed, true},
		{"init to success skips started", destination.StatusInit, destination.StatusSuccess, false},
		{"success back to started", destination.StatusSuccess, destination.StatusStarted, false},
		{"failed to success", destination.StatusFailed, destination.StatusSuccess, false},
		{"started to init", destination.StatusStarted, destination.StatusInit, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransition(tc.to))
		})
	}
}

func TestBaseLifecycle(t *testing.T) {
	p := destination.NewPostDestination(10, 0, destination.Settings{})
	assert.Equal(t, destination.StatusInit, p.Status())
	assert.False(t, p.Timestamp().IsZero())

	err := p.Succeed()
	assert.True(t, errors.Is(err, destination.ErrInvalidTransition))

	require.NoError(t, p.Start())
	require.NoError(t, p.Fail(&destination.Error{Code: "conflict", Message: "post exists"}))
	assert.Equal(t, destination.StatusFailed, p.Status())
	require.NotNil(t, p.Err())
	assert.Equal(t, "conflict: post exists", p.Err().Error())

	p.Reset()
	assert.Equal(t, destination.StatusInit, p.Status())
	assert.Nil(t, p.Err())
}

func TestRemoteInheritPropertiesToPosts(t *testing.T) {
	remote := destination.NewRemoteDestination("https://network.example", destination.Settings{})
	b1 := remote.AddBlog(1, destination.Settings{})
	b1.AddPost(100, 0, destination.Settings{ConflictAction: destination.Conflict(destination.ConflictSkip)})
	b1.AddPost(101, 5, destination.Settings{})
	b2 := remote.AddBlog(2, destination.Settings{})
	b2.AddPost(100, 7, destination.Settings{ConflictAction: destination.Conflict(destination.ConflictKeep)})

	remote.InheritPropertiesToPosts(destination.Settings{
		ConflictAction: destination.Conflict(destination.ConflictReplace),
		Export:         destination.ExportArguments{AllTerms: destination.Bool(true)},
	})

	for _, b := range remote.Blogs() {
		for _, p := range b.Posts() {
			r := p.Resolved()
			assert.Equal(t, destination.ConflictReplace, r.ConflictAction, "blog %d post %d", b.ID, p.OriginID)
			assert.True(t, r.AllTerms)
			assert.Equal(t, destination.ImportUpdate, r.ImportAction)
		}
	}
	assert.Equal(t, 3, remote.PostCount())
}

func TestBlogInheritOrderDecidesPrecedence(t *testing.T) {
	blog := destination.NewBlogDestination(3, destination.Settings{})
	p := blog.AddPost(1, 0, destination.Settings{})

	blog.InheritPropertiesToPosts(destination.Settings{ImportAction: destination.Import(destination.ImportDraft)})
	p.SetProperties(destination.Settings{ImportAction: destination.Import(destination.ImportTrash)})
	assert.Equal(t, destination.ImportTrash, p.Resolved().ImportAction)

	blog.InheritPropertiesToPosts(destination.Settings{ImportAction: destination.Import(destination.ImportDraft)})
	assert.Equal(t, destination.ImportDraft, p.Resolved().ImportAction)
}

func TestSetPostIsIdempotentOnOriginID(t *testing.T) {
	blog := destination.NewBlogDestination(1, destination.Settings{})
	blog.SetPost(42, 7, destination.Settings{})
	got := blog.SetPost(42, 9, destination.Settings{ConflictAction: destination.Conflict(destination.ConflictReplace)})

	assert.Equal(t, 1, blog.Len())
	p, ok := blog.Post(42)
	require.True(t, ok)
	assert.Same(t, got, p)
	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, destination.ConflictReplace, p.Resolved().ConflictAction)
}

func TestSetPostKeepsUntouchedFields(t *testing.T) {
	blog := destination.NewBlogDestination(1, destination.Settings{})
	blog.SetPost(42, 7, destination.Settings{ImportAction: destination.Import(destination.ImportDraft)})
	blog.SetPost(42, 7, destination.Settings{ConflictAction: destination.Conflict(destination.ConflictSkip)})

	r, ok := blog.ResolvePost(42)
	require.True(t, ok)
	assert.Equal(t, destination.ImportDraft, r.ImportAction)
	assert.Equal(t, destination.ConflictSkip, r.ConflictAction)
}

func TestAddPostOverwrites(t *testing.T) {
	blog := destination.NewBlogDestination(1, destination.Settings{})
	blog.AddPost(42, 7, destination.Settings{ImportAction: destination.Import(destination.ImportDraft)})
	blog.AddPost(42, 8, destination.Settings{})

	p, ok := blog.Post(42)
	require.True(t, ok)
	assert.Equal(t, int64(8), p.ID)
	assert.Equal(t, destination.ImportUpdate, p.Resolved().ImportAction)
}

func TestGetMissingChild(t *testing.T) {
	remote := destination.NewRemoteDestination("https://network.example", destination.Settings{})
	_, ok := remote.Blog(9)
	assert.False(t, ok)

	blog := remote.SetBlog(9, destination.Settings{})
	_, ok = blog.Post(1)
	assert.False(t, ok)

	_, ok = remote.ResolvePost(9, 1)
	assert.False(t, ok)
}

func TestResolvePostLeafWins(t *testing.T) {
	remote := destination.NewRemoteDestination("https://network.example", destination.Settings{
		ConflictAction: destination.Conflict(destination.ConflictReplace),
		ImportAction:   destination.Import(destination.ImportDraft),
		Export:         destination.ExportArguments{Translations: destination.Bool(true)},
	})
	blog := remote.AddBlog(2, destination.Settings{ImportAction: destination.Import(destination.ImportTrash)})
	blog.AddPost(5, 0, destination.Settings{ConflictAction: destination.Conflict(destination.ConflictSkip)})
	blog.AddPost(6, 0, destination.Settings{Export: destination.ExportArguments{Translations: destination.Bool(false)}})

	r5, ok := remote.ResolvePost(2, 5)
	require.True(t, ok)
	assert.Equal(t, destination.ConflictSkip, r5.ConflictAction)
	assert.Equal(t, destination.ImportTrash, r5.ImportAction)
	assert.True(t, r5.Translations)

	r6, ok := remote.ResolvePost(2, 6)
	require.True(t, ok)
	assert.Equal(t, destination.ConflictReplace, r6.ConflictAction)
	assert.False(t, r6.Translations)
}

func TestSettingsMergeDoesNotAlias(t *testing.T) {
	base := destination.Settings{Export: destination.ExportArguments{QueryArgs: map[string]any{"post_type": "page"}}}
	merged := destination.Settings{}.Merge(base)
	merged.Export.QueryArgs["post_type"] = "post"
	assert.Equal(t, "page", base.Export.QueryArgs["post_type"])
	assert.True(t, destination.Settings{}.IsZero())
	assert.False(t, base.IsZero())
}
