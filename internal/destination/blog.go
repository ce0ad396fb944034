package destination

import (
	"maps"
	"slices"
)

// BlogDestination is a site within a network and owns its post destinations
type BlogDestination struct {
	Base
	ID       int64
	Settings Settings
	posts    map[int64]*PostDestination
}

// NewBlogDestination creates an empty blog destination in the init state
func NewBlogDestination(id int64, settings Settings) *BlogDestination {
	return &BlogDestination{
		Base:     newBase(),
		ID:       id,
		Settings: Settings{}.Merge(settings),
		posts:    make(map[int64]*PostDestination),
	}
}

// AddPost stores a fresh post destination under originID, replacing any previous one
func (b *BlogDestination) AddPost(originID, linkedID int64, s Settings) *PostDestination {
	p := NewPostDestination(originID, linkedID, s)
	b.posts[originID] = p
	return p
}

// SetPost updates the post under originID in place, or adds it when absent
func (b *BlogDestination) SetPost(originID, linkedID int64, s Settings) *PostDestination {
	p, ok := b.posts[originID]
	if !ok {
		return b.AddPost(originID, linkedID, s)
	}
	p.ID = linkedID
	p.SetProperties(s)
	return p
}

// Post returns the post destination for originID
func (b *BlogDestination) Post(originID int64) (*PostDestination, bool) {
	p, ok := b.posts[originID]
	return p, ok
}

// RemovePost drops the post destination for originID
func (b *BlogDestination) RemovePost(originID int64) {
	delete(b.posts, originID)
}

// Posts returns the post destinations ordered by origin ID
func (b *BlogDestination) Posts() []*PostDestination {
	keys := slices.Sorted(maps.Keys(b.posts))
	out := make([]*PostDestination, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.posts[k])
	}
	return out
}

// Len returns the number of post destinations
func (b *BlogDestination) Len() int { return len(b.posts) }

// SetProperties overwrites every blog-level field present in s
func (b *BlogDestination) SetProperties(s Settings) {
	b.Settings = b.Settings.Merge(s)
}

// InheritPropertiesToPosts writes s onto every post. Present fields replace whatever
// the post had, so the call order decides precedence.
func (b *BlogDestination) InheritPropertiesToPosts(s Settings) {
	for _, p := range b.posts {
		p.SetProperties(s)
	}
}

// ResolvePost resolves a post's settings leaf-first through the blog and any
// inherited ancestor settings.
func (b *BlogDestination) ResolvePost(originID int64, ancestors ...Settings) (Resolved, bool) {
	p, ok := b.posts[originID]
	if !ok {
		return Resolved{}, false
	}
	chain := append([]Settings{p.Settings, b.Settings}, ancestors...)
	return ResolveChain(chain...), true
}
