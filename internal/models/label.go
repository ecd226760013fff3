package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
)

// Label is a user-defined tag. Only genres may have a parent, and the parent must be a genre.
type Label struct {
	ID        int64     `db:"id" json:"id"`
	Type      LabelType `db:"type" json:"type"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	Verbose   *string   `db:"verbose" json:"verbose,omitempty"`
	Suffix    *string   `db:"suffix" json:"suffix,omitempty"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks fields that don't need the store. Parent existence and type are checked by the engine.
func (l *Label) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: label name is required", shared.ErrInvalidInput)
	}
	if !l.Type.Valid() {
		return fmt.Errorf("%w: unknown label type %q", shared.ErrInvalidInput, l.Type)
	}
	if l.ParentID != nil {
		if l.Type != LabelGenre {
			return fmt.Errorf("%w: only genres may have a parent", shared.ErrInvalidLabel)
		}
		if l.ID != 0 && *l.ParentID == l.ID {
			return fmt.Errorf("%w: label cannot be its own parent", shared.ErrInvalidLabel)
		}
	}
	return nil
}

// LabelPatch is a partial label update. ClearParent detaches a subgenre from its parent.
type LabelPatch struct {
	Name        *string    `json:"name,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Type        *LabelType `json:"type,omitempty"`
	Verbose     *string    `json:"verbose,omitempty"`
	Suffix      *string    `json:"suffix,omitempty"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	ClearParent bool       `json:"clear_parent,omitempty"`
}

func (p LabelPatch) Apply(l *Label) {
	if p.Name != nil {
		l.Name = strings.TrimSpace(*p.Name)
	}
	if p.Color != nil {
		l.Color = *p.Color
	}
	if p.Type != nil {
		l.Type = *p.Type
	}
	if p.Verbose != nil {
		v := *p.Verbose
		l.Verbose = &v
	}
	if p.Suffix != nil {
		s := *p.Suffix
		l.Suffix = &s
	}
	if p.ParentID != nil {
		id := *p.ParentID
		l.ParentID = &id
	}
	if p.ClearParent {
		l.ParentID = nil
	}
}

// LabelTracks names a label and the tracks to tag or untag.
type LabelTracks struct {
	LabelID  int64    `json:"label_id"`
	TrackIDs []string `json:"track_ids"`
}
