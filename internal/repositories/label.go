package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/jmoiron/sqlx"
)

const labelColumns = "id, type, name, color, verbose, suffix, parent_id, created_at, updated_at"

// LabelRepository persists [models.Label] rows.
type LabelRepository struct {
	q sqlx.Ext
}

// Create inserts label and sets its generated ID and timestamps.
func (r *LabelRepository) Create(label *models.Label) error {
	if err := label.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	label.CreatedAt = now
	label.UpdatedAt = now

	query := `
		INSERT INTO labels (type, name, color, verbose, suffix, parent_id, created_at, updated_at)
		VALUES (:type, :name, :color, :verbose, :suffix, :parent_id, :created_at, :updated_at)
	`
	res, err := sqlx.NamedExec(r.q, query, label)
	if err != nil {
		return fmt.Errorf("failed to insert label: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read label id: %w", err)
	}
	label.ID = id
	return nil
}

// Get retrieves a label by ID
func (r *LabelRepository) Get(id int64) (*models.Label, error) {
	var label models.Label
	err := sqlx.Get(r.q, &label, "SELECT "+labelColumns+" FROM labels WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", shared.ErrLabelNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query label: %w", err)
	}
	return &label, nil
}

// GetByName retrieves a label by its unique name.
func (r *LabelRepository) GetByName(name string) (*models.Label, error) {
	var label models.Label
	err := sqlx.Get(r.q, &label, "SELECT "+labelColumns+" FROM labels WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrLabelNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query label: %w", err)
	}
	return &label, nil
}

// List returns every label grouped by type, with subgenres following their parent.
func (r *LabelRepository) List() ([]models.Label, error) {
	var labels []models.Label
	query := "SELECT " + labelColumns + " FROM labels ORDER BY type, COALESCE(parent_id, id), parent_id IS NOT NULL, name"
	if err := sqlx.Select(r.q, &labels, query); err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	return labels, nil
}

// Children returns the direct subgenres of a label.
func (r *LabelRepository) Children(id int64) ([]models.Label, error) {
	var labels []models.Label
	if err := sqlx.Select(r.q, &labels, "SELECT "+labelColumns+" FROM labels WHERE parent_id = ? ORDER BY name", id); err != nil {
		return nil, fmt.Errorf("failed to query child labels: %w", err)
	}
	return labels, nil
}

// Subtree returns id and the ids of every label nested below it.
func (r *LabelRepository) Subtree(id int64) ([]int64, error) {
	query := `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM labels WHERE id = ?
			UNION
			SELECT l.id FROM labels l JOIN subtree s ON l.parent_id = s.id
		)
		SELECT id FROM subtree
	`
	var ids []int64
	if err := sqlx.Select(r.q, &ids, query, id); err != nil {
		return nil, fmt.Errorf("failed to query label subtree: %w", err)
	}
	return ids, nil
}

// Update writes every mutable field of label and bumps its updated_at.
func (r *LabelRepository) Update(label *models.Label) error {
	if err := label.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	label.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE labels
		SET type = :type, name = :name, color = :color, verbose = :verbose, suffix = :suffix,
			parent_id = :parent_id, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExec(r.q, query, label)
	if err != nil {
		return fmt.Errorf("failed to update label: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrLabelNotFound, label.ID)
	}
	return nil
}

// Delete removes a label and its subgenres.
//
// Playlists generated for any removed label become mixes; track tags cascade away with the labels.
func (r *LabelRepository) Delete(id int64) error {
	ids, err := r.Subtree(id)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %d", shared.ErrLabelNotFound, id)
	}

	playlists := &PlaylistRepository{q: r.q}
	if _, err := playlists.DetachLabels(ids); err != nil {
		return err
	}

	res, err := r.q.Exec("DELETE FROM labels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrLabelNotFound, id)
	}
	return nil
}
