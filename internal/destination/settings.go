package destination

import (
	"fmt"
	"maps"
)

// ConflictAction decides what happens when the destination already has a matching post
type ConflictAction string

const (
	ConflictKeep    ConflictAction = "keep"
	ConflictReplace ConflictAction = "replace"
	ConflictSkip    ConflictAction = "skip"
)

// ParseConflictAction validates a conflict action tag
func ParseConflictAction(s string) (ConflictAction, error) {
	switch ConflictAction(s) {
	case ConflictKeep, ConflictReplace, ConflictSkip:
		return ConflictAction(s), nil
	}
	return "", fmt.Errorf("unknown conflict action %q", s)
}

// ImportAction decides the destination-side post state after distribution
type ImportAction string

const (
	ImportUpdate ImportAction = "update"
	ImportDraft  ImportAction = "draft"
	ImportTrash  ImportAction = "trash"
	ImportDelete ImportAction = "delete"
)

// ParseImportAction validates an import action tag
func ParseImportAction(s string) (ImportAction, error) {
	switch ImportAction(s) {
	case ImportUpdate, ImportDraft, ImportTrash, ImportDelete:
		return ImportAction(s), nil
	}
	return "", fmt.Errorf("unknown import action %q", s)
}

// ExportArguments controls what is exported alongside a post.
// A nil field means "not set at this level".
type ExportArguments struct {
	AppendNested  *bool          `json:"append_nested,omitempty"`
	WholePosttype *bool          `json:"whole_posttype,omitempty"`
	AllTerms      *bool          `json:"all_terms,omitempty"`
	ResolveMenus  *bool          `json:"resolve_menus,omitempty"`
	Translations  *bool          `json:"translations,omitempty"`
	QueryArgs     map[string]any `json:"query_args,omitempty"`
}

// Settings is a partial configuration that can live on any level of the tree.
// Absent fields never overwrite present ones.
type Settings struct {
	ConflictAction *ConflictAction `json:"conflict_action,omitempty"`
	ImportAction   *ImportAction   `json:"import_action,omitempty"`
	Export         ExportArguments `json:"export_arguments"`
}

// Bool returns a pointer to v, for building Settings literals
func Bool(v bool) *bool { return &v }

// Conflict returns a pointer to a, for building Settings literals
func Conflict(a ConflictAction) *ConflictAction { return &a }

// Import returns a pointer to a, for building Settings literals
func Import(a ImportAction) *ImportAction { return &a }

// IsZero reports whether no field is present
func (s Settings) IsZero() bool {
	e := s.Export
	return s.ConflictAction == nil && s.ImportAction == nil &&
		e.AppendNested == nil && e.WholePosttype == nil && e.AllTerms == nil &&
		e.ResolveMenus == nil && e.Translations == nil && e.QueryArgs == nil
}

// Merge returns s with every field present in over written on top
func (s Settings) Merge(over Settings) Settings {
	out := s
	if over.ConflictAction != nil {
		out.ConflictAction = Conflict(*over.ConflictAction)
	}
	if over.ImportAction != nil {
		out.ImportAction = Import(*over.ImportAction)
	}
	out.Export.AppendNested = pickBool(s.Export.AppendNested, over.Export.AppendNested)
	out.Export.WholePosttype = pickBool(s.Export.WholePosttype, over.Export.WholePosttype)
	out.Export.AllTerms = pickBool(s.Export.AllTerms, over.Export.AllTerms)
	out.Export.ResolveMenus = pickBool(s.Export.ResolveMenus, over.Export.ResolveMenus)
	out.Export.Translations = pickBool(s.Export.Translations, over.Export.Translations)
	if over.Export.QueryArgs != nil {
		out.Export.QueryArgs = maps.Clone(over.Export.QueryArgs)
	} else if s.Export.QueryArgs != nil {
		out.Export.QueryArgs = maps.Clone(s.Export.QueryArgs)
	}
	return out
}

func pickBool(base, over *bool) *bool {
	if over != nil {
		return Bool(*over)
	}
	if base != nil {
		return Bool(*base)
	}
	return nil
}

// Resolved is a fully populated configuration for a single post
type Resolved struct {
	ConflictAction ConflictAction `json:"conflict_action"`
	ImportAction   ImportAction   `json:"import_action"`
	AppendNested   bool           `json:"append_nested"`
	WholePosttype  bool           `json:"whole_posttype"`
	AllTerms       bool           `json:"all_terms"`
	ResolveMenus   bool           `json:"resolve_menus"`
	Translations   bool           `json:"translations"`
	QueryArgs      map[string]any `json:"query_args,omitempty"`
}

// Resolve fills absent fields with defaults (keep, update, false)
func (s Settings) Resolve() Resolved {
	r := Resolved{
		ConflictAction: ConflictKeep,
		ImportAction:   ImportUpdate,
		QueryArgs:      maps.Clone(s.Export.QueryArgs),
	}
	if s.ConflictAction != nil {
		r.ConflictAction = *s.ConflictAction
	}
	if s.ImportAction != nil {
		r.ImportAction = *s.ImportAction
	}
	r.AppendNested = deref(s.Export.AppendNested)
	r.WholePosttype = deref(s.Export.WholePosttype)
	r.AllTerms = deref(s.Export.AllTerms)
	r.ResolveMenus = deref(s.Export.ResolveMenus)
	r.Translations = deref(s.Export.Translations)
	return r
}

func deref(b *bool) bool {
	return b != nil && *b
}

// ResolveChain walks from the leaf (first argument) to the root and takes the
// first present value of every field.
func ResolveChain(levels ...Settings) Resolved {
	var acc Settings
	for i := len(levels) - 1; i >= 0; i-- {
		acc = acc.Merge(levels[i])
	}
	return acc.Resolve()
}
