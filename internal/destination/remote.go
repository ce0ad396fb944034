package destination

import (
	"maps"
	"slices"
)

// RemoteDestination is a remote network identified by its URL
type RemoteDestination struct {
	Base
	ID       string
	Settings Settings
	blogs    map[int64]*BlogDestination
}

// NewRemoteDestination creates an empty remote destination for the network at url
func NewRemoteDestination(url string, settings Settings) *RemoteDestination {
	r := &RemoteDestination{
		Base:     newBase(),
		ID:       url,
		Settings: Settings{}.Merge(settings),
		blogs:    make(map[int64]*BlogDestination),
	}
	r.URL = url
	return r
}

// AddBlog stores a fresh blog destination under blogID, replacing any previous one
func (r *RemoteDestination) AddBlog(blogID int64, s Settings) *BlogDestination {
	b := NewBlogDestination(blogID, s)
	r.blogs[blogID] = b
	return b
}

// SetBlog updates the blog under blogID in place, or adds it when absent
func (r *RemoteDestination) SetBlog(blogID int64, s Settings) *BlogDestination {
	b, ok := r.blogs[blogID]
	if !ok {
		return r.AddBlog(blogID, s)
	}
	b.SetProperties(s)
	return b
}

// Blog returns the blog destination for blogID
func (r *RemoteDestination) Blog(blogID int64) (*BlogDestination, bool) {
	b, ok := r.blogs[blogID]
	return b, ok
}

// Blogs returns the blog destinations ordered by ID
func (r *RemoteDestination) Blogs() []*BlogDestination {
	keys := slices.Sorted(maps.Keys(r.blogs))
	out := make([]*BlogDestination, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.blogs[k])
	}
	return out
}

// SetProperties overwrites every network-level field present in s
func (r *RemoteDestination) SetProperties(s Settings) {
	r.Settings = r.Settings.Merge(s)
}

// InheritPropertiesToPosts writes s onto every post of every blog
func (r *RemoteDestination) InheritPropertiesToPosts(s Settings) {
	for _, b := range r.blogs {
		b.InheritPropertiesToPosts(s)
	}
}

// ResolvePost resolves post -> blog -> network, first present value wins
func (r *RemoteDestination) ResolvePost(blogID, originID int64) (Resolved, bool) {
	b, ok := r.blogs[blogID]
	if !ok {
		return Resolved{}, false
	}
	return b.ResolvePost(originID, r.Settings)
}

// PostCount returns the number of post destinations across all blogs
func (r *RemoteDestination) PostCount() int {
	n := 0
	for _, b := range r.blogs {
		n += b.Len()
	}
	return n
}
