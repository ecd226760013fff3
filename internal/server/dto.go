package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, rule))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return shared.ErrInvalidInput
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %v", shared.ErrInvalidInput, err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: malformed JSON: %v", shared.ErrInvalidInput, err)
		}
	}

	err = getValidator().Struct(dst)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			fields[fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:]] = rule
		}
		return &ValidationError{Fields: fields}
	}
	return err
}

type createPlaylistRequest struct {
	Name        string   `json:"name" validate:"max=100"`
	Description string   `json:"description" validate:"max=300"`
	Type        string   `json:"type" validate:"required,oneof=label mix"`
	LabelID     *int64   `json:"label_id" validate:"required_if=Type label,excluded_if=Type mix"`
	TrackIDs    []string `json:"track_ids" validate:"omitempty,dive,required"`
}

func (req createPlaylistRequest) model() models.NewPlaylist {
	return models.NewPlaylist{
		Name:        req.Name,
		Description: req.Description,
		Type:        models.PlaylistType(req.Type),
		LabelID:     req.LabelID,
		TrackIDs:    req.TrackIDs,
	}
}

type updatePlaylistRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=300"`
	Type        *string `json:"type" validate:"omitempty,oneof=untracked label mix deleted"`
	LabelID     *int64  `json:"label_id"`
}

func (req updatePlaylistRequest) model() models.PlaylistPatch {
	patch := models.PlaylistPatch{Name: req.Name, Description: req.Description, LabelID: req.LabelID}
	if req.Type != nil {
		t := models.PlaylistType(*req.Type)
		patch.Type = &t
	}
	return patch
}

type playlistTracksRequest struct {
	PlaylistID string   `json:"playlist_id" validate:"required"`
	TrackIDs   []string `json:"track_ids" validate:"required,min=1,dive,required"`
}

type bulkTracksRequest struct {
	Playlists []playlistTracksRequest `json:"playlists" validate:"required,min=1,dive"`
}

func (req bulkTracksRequest) model() []models.PlaylistTracks {
	out := make([]models.PlaylistTracks, len(req.Playlists))
	for i, p := range req.Playlists {
		out[i] = models.PlaylistTracks{PlaylistID: p.PlaylistID, TrackIDs: p.TrackIDs}
	}
	return out
}

type createLabelRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Type     string  `json:"type" validate:"required,oneof=genre mood"`
	Color    string  `json:"color" validate:"omitempty,hexcolor"`
	Verbose  *string `json:"verbose" validate:"omitempty,max=300"`
	Suffix   *string `json:"suffix" validate:"omitempty,max=50"`
	ParentID *int64  `json:"parent_id" validate:"excluded_unless=Type genre"`
}

func (req createLabelRequest) model() *models.Label {
	return &models.Label{
		Name:     req.Name,
		Type:     models.LabelType(req.Type),
		Color:    req.Color,
		Verbose:  req.Verbose,
		Suffix:   req.Suffix,
		ParentID: req.ParentID,
	}
}

type updateLabelRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Type        *string `json:"type" validate:"omitempty,oneof=genre mood"`
	Verbose     *string `json:"verbose" validate:"omitempty,max=300"`
	Suffix      *string `json:"suffix" validate:"omitempty,max=50"`
	ParentID    *int64  `json:"parent_id"`
	ClearParent bool    `json:"clear_parent"`
}

func (req updateLabelRequest) model() models.LabelPatch {
	patch := models.LabelPatch{
		Name:        req.Name,
		Color:       req.Color,
		Verbose:     req.Verbose,
		Suffix:      req.Suffix,
		ParentID:    req.ParentID,
		ClearParent: req.ClearParent,
	}
	if req.Type != nil {
		t := models.LabelType(*req.Type)
		patch.Type = &t
	}
	return patch
}

type labelTracksRequest struct {
	TrackIDs []string `json:"track_ids" validate:"required,min=1,dive,required"`
}

// outcomeResponse is one playlist's result in a bulk write response.
type outcomeResponse struct {
	PlaylistID string                 `json:"playlist_id"`
	Changes    models.PlaylistChanges `json:"changes"`
	Status     int                    `json:"status"`
	Error      *ErrorDetail           `json:"error,omitempty"`
}
