package destination

// PostDestination is a single target post, keyed inside its blog by the origin post ID
type PostDestination struct {
	Base
	// OriginID is the post ID on the origin site
	OriginID int64
	// ID is the linked post ID on the destination, 0 until the post exists there
	ID       int64
	Settings Settings
}

// NewPostDestination creates a post destination in the init state
func NewPostDestination(originID, linkedID int64, settings Settings) *PostDestination {
	return &PostDestination{
		Base:     newBase(),
		OriginID: originID,
		ID:       linkedID,
		Settings: Settings{}.Merge(settings),
	}
}

// SetProperties overwrites every field present in s
func (p *PostDestination) SetProperties(s Settings) {
	p.Settings = p.Settings.Merge(s)
}

// Resolved returns the post's own settings with defaults applied
func (p *PostDestination) Resolved() Resolved {
	return p.Settings.Resolve()
}
