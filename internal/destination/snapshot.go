package destination

import (
	"encoding/json"
	"fmt"
)

// Kind names the root level of a snapshot
type Kind string

const (
	KindRemote Kind = "remote"
	KindBlog   Kind = "blog"
	KindPost   Kind = "post"
)

// Snapshot is the frozen destination payload stored on a queue item.
// Exactly one of Remote, Blog or Post is set, matching Kind.
type Snapshot struct {
	Kind   Kind
	Remote *RemoteDestination
	Blog   *BlogDestination
	// BlogID locates Post when Kind is KindPost
	BlogID int64
	Post   *PostDestination
}

type snapshotWire struct {
	Kind     Kind            `json:"kind"`
	Remote   json.RawMessage `json:"remote,omitempty"`
	Blog     json.RawMessage `json:"blog,omitempty"`
	BlogID   int64           `json:"blog_id,omitempty"`
	OriginID int64           `json:"origin_id,omitempty"`
	Post     json.RawMessage `json:"post,omitempty"`
}

// RemoteSnapshot wraps a remote tree
func RemoteSnapshot(r *RemoteDestination) Snapshot {
	return Snapshot{Kind: KindRemote, Remote: r}
}

// BlogSnapshot wraps a local blog tree
func BlogSnapshot(b *BlogDestination) Snapshot {
	return Snapshot{Kind: KindBlog, Blog: b}
}

// PostSnapshot wraps a single post on a local blog
func PostSnapshot(blogID int64, p *PostDestination) Snapshot {
	return Snapshot{Kind: KindPost, BlogID: blogID, Post: p}
}

// Blogs flattens the snapshot into the blogs it targets. A post snapshot is
// returned as a one-post blog inheriting nothing.
func (s Snapshot) Blogs() []*BlogDestination {
	switch s.Kind {
	case KindRemote:
		if s.Remote != nil {
			return s.Remote.Blogs()
		}
	case KindBlog:
		if s.Blog != nil {
			return []*BlogDestination{s.Blog}
		}
	case KindPost:
		if s.Post != nil {
			b := NewBlogDestination(s.BlogID, Settings{})
			b.posts[s.Post.OriginID] = s.Post
			return []*BlogDestination{b}
		}
	}
	return nil
}

// Inherited returns the settings above blog level, only non-empty for remote snapshots
func (s Snapshot) Inherited() Settings {
	if s.Kind == KindRemote && s.Remote != nil {
		return s.Remote.Settings
	}
	return Settings{}
}

// MarshalJSON encodes the snapshot envelope
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotWire{Kind: s.Kind}
	var err error
	switch s.Kind {
	case KindRemote:
		w.Remote, err = json.Marshal(s.Remote)
	case KindBlog:
		w.Blog, err = json.Marshal(s.Blog)
	case KindPost:
		w.BlogID = s.BlogID
		if s.Post != nil {
			w.OriginID = s.Post.OriginID
		}
		w.Post, err = json.Marshal(s.Post)
	default:
		return nil, fmt.Errorf("destination: unknown snapshot kind %q", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes tolerantly, dropping issues
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	out, _, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// DecodeSnapshot decodes a snapshot envelope and reports every skipped or repaired entry
func DecodeSnapshot(data []byte) (Snapshot, []Issue, error) {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, nil, fmt.Errorf("destination: decode snapshot: %w", err)
	}
	var d decoder
	s := Snapshot{Kind: w.Kind}
	switch w.Kind {
	case KindRemote:
		r, ok := d.remote("remote", w.Remote)
		if !ok {
			return Snapshot{}, d.issues, d.fatal()
		}
		s.Remote = r
	case KindBlog:
		b, ok := d.blog("blog", 0, w.Blog)
		if !ok {
			return Snapshot{}, d.issues, d.fatal()
		}
		s.Blog = b
	case KindPost:
		p, ok := d.post("post", w.OriginID, w.Post)
		if !ok {
			return Snapshot{}, d.issues, d.fatal()
		}
		s.BlogID = w.BlogID
		s.Post = p
	default:
		return Snapshot{}, nil, fmt.Errorf("destination: unknown snapshot kind %q", w.Kind)
	}
	return s, d.issues, nil
}
