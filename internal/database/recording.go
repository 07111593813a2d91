package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// recordingRepo implements RecordingRepository.
type recordingRepo struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) RecordingRepository {
	return &recordingRepo{db: db}
}

const recordingColumns = `id, name, call_id, sip_session_id,
	 caller_user_id, caller_contact_id, caller_display,
	 callee_user_id, callee_contact_id, callee_display,
	 data, filename, file_size, duration, format, state, created_at`

// Create inserts a new recording.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (name, call_id, sip_session_id,
		 caller_user_id, caller_contact_id, caller_display,
		 callee_user_id, callee_contact_id, callee_display,
		 data, filename, file_size, duration, format, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.CallID, rec.SIPSessionID,
		rec.CallerUserID, rec.CallerContactID, rec.CallerDisplay,
		rec.CalleeUserID, rec.CalleeContactID, rec.CalleeDisplay,
		rec.Data, rec.Filename, rec.FileSize, rec.Duration, rec.Format, rec.State,
	)
	if err != nil {
		return fmt.Errorf("inserting recording: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByID returns a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id int64) (*models.Recording, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id,
	))
}

// LatestByCallID returns the newest recording attached to a call, or nil.
func (r *recordingRepo) LatestByCallID(ctx context.Context, callID int64) (*models.Recording, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE call_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, callID,
	))
}

// Update modifies an existing recording.
func (r *recordingRepo) Update(ctx context.Context, rec *models.Recording) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET name = ?, call_id = ?, sip_session_id = ?,
		 caller_user_id = ?, caller_contact_id = ?, caller_display = ?,
		 callee_user_id = ?, callee_contact_id = ?, callee_display = ?,
		 data = ?, filename = ?, file_size = ?, duration = ?, format = ?,
		 state = ? WHERE id = ?`,
		rec.Name, rec.CallID, rec.SIPSessionID,
		rec.CallerUserID, rec.CallerContactID, rec.CallerDisplay,
		rec.CalleeUserID, rec.CalleeContactID, rec.CalleeDisplay,
		rec.Data, rec.Filename, rec.FileSize, rec.Duration, rec.Format,
		rec.State, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

// List returns a page of recordings (without blob data) plus the total count.
func (r *recordingRepo) List(ctx context.Context, limit, offset int) ([]models.Recording, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting recordings: %w", err)
	}

	// The blob is omitted from list queries; fetch it via GetByID.
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, call_id, sip_session_id,
		 caller_user_id, caller_contact_id, caller_display,
		 callee_user_id, callee_contact_id, callee_display,
		 filename, file_size, duration, format, state, created_at
		 FROM recordings ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CallID, &rec.SIPSessionID,
			&rec.CallerUserID, &rec.CallerContactID, &rec.CallerDisplay,
			&rec.CalleeUserID, &rec.CalleeContactID, &rec.CalleeDisplay,
			&rec.Filename, &rec.FileSize, &rec.Duration, &rec.Format,
			&rec.State, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning recording row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating recording rows: %w", err)
	}

	return recs, total, nil
}

// Delete removes a recording.
func (r *recordingRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}

// Count returns the number of stored recordings.
func (r *recordingRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting recordings: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes recordings created more than the given number of
// days ago. Used by the retention ticker.
func (r *recordingRepo) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM recordings
		 WHERE created_at < datetime('now', '-' || ? || ' days')`, days)
	if err != nil {
		return 0, fmt.Errorf("deleting expired recordings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted recordings: %w", err)
	}
	return n, nil
}

func (r *recordingRepo) scanOne(row *sql.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.Name, &rec.CallID, &rec.SIPSessionID,
		&rec.CallerUserID, &rec.CallerContactID, &rec.CallerDisplay,
		&rec.CalleeUserID, &rec.CalleeContactID, &rec.CalleeDisplay,
		&rec.Data, &rec.Filename, &rec.FileSize, &rec.Duration, &rec.Format,
		&rec.State, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recording: %w", err)
	}
	return &rec, nil
}
