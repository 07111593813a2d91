package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// holdMusicRepo implements HoldMusicRepository.
type holdMusicRepo struct {
	db *DB
}

// NewHoldMusicRepository creates a new HoldMusicRepository.
func NewHoldMusicRepository(db *DB) HoldMusicRepository {
	return &holdMusicRepo{db: db}
}

const holdMusicColumns = `id, name, server_id, data, filename, file_size,
	 duration, format, volume, loop, fade_in, fade_out, sequence,
	 is_default, active, created_at`

// Create inserts a new hold-music track.
func (r *holdMusicRepo) Create(ctx context.Context, hm *models.HoldMusic) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO hold_music (name, server_id, data, filename, file_size,
		 duration, format, volume, loop, fade_in, fade_out, sequence,
		 is_default, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hm.Name, hm.ServerID, hm.Data, hm.Filename, hm.FileSize,
		hm.Duration, hm.Format, hm.Volume, hm.Loop, hm.FadeIn, hm.FadeOut,
		hm.Sequence, hm.IsDefault, hm.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting hold music: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	hm.ID = id
	return nil
}

// GetByID returns a track by ID, including the audio blob.
func (r *holdMusicRepo) GetByID(ctx context.Context, id int64) (*models.HoldMusic, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+holdMusicColumns+` FROM hold_music WHERE id = ?`, id)

	var hm models.HoldMusic
	err := row.Scan(&hm.ID, &hm.Name, &hm.ServerID, &hm.Data, &hm.Filename,
		&hm.FileSize, &hm.Duration, &hm.Format, &hm.Volume, &hm.Loop,
		&hm.FadeIn, &hm.FadeOut, &hm.Sequence, &hm.IsDefault, &hm.Active,
		&hm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning hold music: %w", err)
	}
	return &hm, nil
}

// ListActive returns active tracks for a server plus server-agnostic tracks,
// ordered by sequence. The audio blob is omitted; fetch it via GetByID.
func (r *holdMusicRepo) ListActive(ctx context.Context, serverID *int64) ([]models.HoldMusic, error) {
	query := `SELECT id, name, server_id, filename, file_size, duration,
		 format, volume, loop, fade_in, fade_out, sequence, is_default,
		 active, created_at FROM hold_music WHERE active = 1`
	args := []any{}
	if serverID != nil {
		query += ` AND (server_id IS NULL OR server_id = ?)`
		args = append(args, *serverID)
	}
	query += ` ORDER BY sequence, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing hold music: %w", err)
	}
	defer rows.Close()

	var tracks []models.HoldMusic
	for rows.Next() {
		var hm models.HoldMusic
		if err := rows.Scan(&hm.ID, &hm.Name, &hm.ServerID, &hm.Filename,
			&hm.FileSize, &hm.Duration, &hm.Format, &hm.Volume, &hm.Loop,
			&hm.FadeIn, &hm.FadeOut, &hm.Sequence, &hm.IsDefault,
			&hm.Active, &hm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning hold music row: %w", err)
		}
		tracks = append(tracks, hm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hold music rows: %w", err)
	}
	return tracks, nil
}

// Update modifies an existing track.
func (r *holdMusicRepo) Update(ctx context.Context, hm *models.HoldMusic) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE hold_music SET name = ?, server_id = ?, data = ?,
		 filename = ?, file_size = ?, duration = ?, format = ?, volume = ?,
		 loop = ?, fade_in = ?, fade_out = ?, sequence = ?, is_default = ?,
		 active = ? WHERE id = ?`,
		hm.Name, hm.ServerID, hm.Data, hm.Filename, hm.FileSize,
		hm.Duration, hm.Format, hm.Volume, hm.Loop, hm.FadeIn, hm.FadeOut,
		hm.Sequence, hm.IsDefault, hm.Active, hm.ID,
	)
	if err != nil {
		return fmt.Errorf("updating hold music: %w", err)
	}
	return nil
}

// Delete removes a track.
func (r *holdMusicRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM hold_music WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting hold music: %w", err)
	}
	return nil
}

// ClearDefault unsets is_default for all tracks in the server scope.
func (r *holdMusicRepo) ClearDefault(ctx context.Context, serverID *int64) error {
	var err error
	if serverID == nil {
		_, err = r.db.ExecContext(ctx,
			`UPDATE hold_music SET is_default = 0 WHERE server_id IS NULL`)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE hold_music SET is_default = 0 WHERE server_id = ?`, *serverID)
	}
	if err != nil {
		return fmt.Errorf("clearing default hold music: %w", err)
	}
	return nil
}
