package destination

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Issue describes one problem found while decoding a destination tree.
// Skipped entries were dropped from the result, other issues were repaired.
type Issue struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Skipped bool   `json:"skipped"`
}

func (i Issue) String() string {
	if i.Skipped {
		return fmt.Sprintf("%s: %s (skipped)", i.Path, i.Reason)
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

type baseWire struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Status    Status     `json:"status,omitempty"`
	Error     *Error     `json:"error,omitempty"`
	URL       string     `json:"url,omitempty"`
}

type postWire struct {
	ID *int64 `json:"ID"`
	baseWire
	Settings
}

type blogWire struct {
	ID *int64 `json:"ID"`
	baseWire
	Settings
	Posts map[string]json.RawMessage `json:"posts,omitempty"`
}

type remoteWire struct {
	ID *string `json:"ID"`
	baseWire
	Settings
	Blogs map[string]json.RawMessage `json:"blogs,omitempty"`
}

var (
	commonKeys = []string{"ID", "timestamp", "status", "error", "url", "conflict_action", "import_action", "export_arguments"}
	postKeys   = keySet(commonKeys...)
	blogKeys   = keySet(append(commonKeys, "posts")...)
	remoteKeys = keySet(append(commonKeys, "blogs")...)
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func (b *Base) wire() baseWire {
	ts := b.timestamp
	return baseWire{
		Timestamp: &ts,
		Status:    b.status,
		Error:     b.err,
		URL:       b.URL,
	}
}

func (p PostDestination) toWire() postWire {
	id := p.ID
	return postWire{ID: &id, baseWire: p.Base.wire(), Settings: p.Settings}
}

// MarshalJSON encodes the post as a flat property object
func (p PostDestination) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

func (b BlogDestination) toWire() (blogWire, error) {
	id := b.ID
	w := blogWire{ID: &id, baseWire: b.Base.wire(), Settings: b.Settings}
	if len(b.posts) > 0 {
		w.Posts = make(map[string]json.RawMessage, len(b.posts))
		for originID, p := range b.posts {
			raw, err := json.Marshal(p.toWire())
			if err != nil {
				return w, err
			}
			w.Posts[strconv.FormatInt(originID, 10)] = raw
		}
	}
	return w, nil
}

// MarshalJSON encodes the blog and its posts keyed by origin post ID
func (b BlogDestination) MarshalJSON() ([]byte, error) {
	w, err := b.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// MarshalJSON encodes the network, its blogs and their posts
func (r RemoteDestination) MarshalJSON() ([]byte, error) {
	id := r.ID
	w := remoteWire{ID: &id, baseWire: r.Base.wire(), Settings: r.Settings}
	if len(r.blogs) > 0 {
		w.Blogs = make(map[string]json.RawMessage, len(r.blogs))
		for blogID, b := range r.blogs {
			bw, err := b.toWire()
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(bw)
			if err != nil {
				return nil, err
			}
			w.Blogs[strconv.FormatInt(blogID, 10)] = raw
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes tolerantly; entries without an ID are dropped
func (p *PostDestination) UnmarshalJSON(data []byte) error {
	var d decoder
	out, ok := d.post("post", 0, data)
	if !ok {
		return d.fatal()
	}
	*p = *out
	return nil
}

// UnmarshalJSON decodes tolerantly; entries without an ID are dropped
func (b *BlogDestination) UnmarshalJSON(data []byte) error {
	var d decoder
	out, ok := d.blog("blog", 0, data)
	if !ok {
		return d.fatal()
	}
	*b = *out
	return nil
}

// UnmarshalJSON decodes tolerantly; entries without an ID are dropped
func (r *RemoteDestination) UnmarshalJSON(data []byte) error {
	var d decoder
	out, ok := d.remote("remote", data)
	if !ok {
		return d.fatal()
	}
	*r = *out
	return nil
}

// DecodeRemote decodes a remote tree and reports every skipped or repaired entry.
// An error is returned only when the root itself cannot be decoded.
func DecodeRemote(data []byte) (*RemoteDestination, []Issue, error) {
	var d decoder
	r, ok := d.remote("remote", data)
	if !ok {
		return nil, d.issues, d.fatal()
	}
	return r, d.issues, nil
}

// DecodeBlog decodes a blog tree and reports every skipped or repaired entry
func DecodeBlog(data []byte) (*BlogDestination, []Issue, error) {
	var d decoder
	b, ok := d.blog("blog", 0, data)
	if !ok {
		return nil, d.issues, d.fatal()
	}
	return b, d.issues, nil
}

type decoder struct {
	issues []Issue
}

func (d *decoder) skip(path, reason string) {
	d.issues = append(d.issues, Issue{Path: path, Reason: reason, Skipped: true})
}

func (d *decoder) repair(path, reason string) {
	d.issues = append(d.issues, Issue{Path: path, Reason: reason})
}

func (d *decoder) fatal() error {
	if len(d.issues) == 0 {
		return errors.New("destination: invalid payload")
	}
	return fmt.Errorf("destination: %s", d.issues[len(d.issues)-1].String())
}

func (d *decoder) checkKeys(path string, data []byte, known map[string]struct{}) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		d.skip(path, "not an object: "+err.Error())
		return false
	}
	if _, ok := fields["ID"]; !ok {
		d.skip(path, "missing ID")
		return false
	}
	for k := range fields {
		if _, ok := known[k]; !ok {
			d.repair(path, fmt.Sprintf("unknown field %q ignored", k))
		}
	}
	return true
}

func (d *decoder) base(path string, w baseWire) Base {
	b := newBase()
	if w.Timestamp != nil {
		b.timestamp = *w.Timestamp
	}
	if w.Status != "" {
		if s, err := ParseStatus(string(w.Status)); err == nil {
			b.status = s
		} else {
			d.repair(path, err.Error()+", reset to init")
		}
	}
	if b.status == StatusFailed {
		b.err = w.Error
	}
	b.URL = w.URL
	return b
}

func (d *decoder) settings(path string, s Settings) Settings {
	if s.ConflictAction != nil {
		if _, err := ParseConflictAction(string(*s.ConflictAction)); err != nil {
			d.repair(path, err.Error()+", dropped")
			s.ConflictAction = nil
		}
	}
	if s.ImportAction != nil {
		if _, err := ParseImportAction(string(*s.ImportAction)); err != nil {
			d.repair(path, err.Error()+", dropped")
			s.ImportAction = nil
		}
	}
	return s
}

func (d *decoder) post(path string, originID int64, data []byte) (*PostDestination, bool) {
	if !d.checkKeys(path, data, postKeys) {
		return nil, false
	}
	var w postWire
	if err := json.Unmarshal(data, &w); err != nil {
		d.skip(path, err.Error())
		return nil, false
	}
	if w.ID == nil {
		d.skip(path, "ID is null")
		return nil, false
	}
	return &PostDestination{
		Base:     d.base(path, w.baseWire),
		OriginID: originID,
		ID:       *w.ID,
		Settings: d.settings(path, w.Settings),
	}, true
}

func (d *decoder) blog(path string, key int64, data []byte) (*BlogDestination, bool) {
	if !d.checkKeys(path, data, blogKeys) {
		return nil, false
	}
	var w blogWire
	if err := json.Unmarshal(data, &w); err != nil {
		d.skip(path, err.Error())
		return nil, false
	}
	if w.ID == nil {
		d.skip(path, "ID is null")
		return nil, false
	}
	if key != 0 && *w.ID != key {
		d.repair(path, fmt.Sprintf("ID %d does not match key, key wins", *w.ID))
		w.ID = &key
	}
	b := &BlogDestination{
		Base:     d.base(path, w.baseWire),
		ID:       *w.ID,
		Settings: d.settings(path, w.Settings),
		posts:    make(map[int64]*PostDestination, len(w.Posts)),
	}
	for k, raw := range w.Posts {
		postPath := path + ".posts." + k
		originID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			d.skip(postPath, "origin post ID is not an integer")
			continue
		}
		if p, ok := d.post(postPath, originID, raw); ok {
			b.posts[originID] = p
		}
	}
	return b, true
}

func (d *decoder) remote(path string, data []byte) (*RemoteDestination, bool) {
	if !d.checkKeys(path, data, remoteKeys) {
		return nil, false
	}
	var w remoteWire
	if err := json.Unmarshal(data, &w); err != nil {
		d.skip(path, err.Error())
		return nil, false
	}
	if w.ID == nil || *w.ID == "" {
		d.skip(path, "ID is empty")
		return nil, false
	}
	r := &RemoteDestination{
		Base:     d.base(path, w.baseWire),
		ID:       *w.ID,
		Settings: d.settings(path, w.Settings),
		blogs:    make(map[int64]*BlogDestination, len(w.Blogs)),
	}
	if r.URL == "" {
		r.URL = r.ID
	}
	for k, raw := range w.Blogs {
		blogPath := path + ".blogs." + k
		blogID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			d.skip(blogPath, "blog ID is not an integer")
			continue
		}
		if b, ok := d.blog(blogPath, blogID, raw); ok {
			r.blogs[blogID] = b
		}
	}
	return r, true
}
