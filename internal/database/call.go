package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// callRepo implements CallRepository.
type callRepo struct {
	db *DB
}

// NewCallRepository creates a new CallRepository.
func NewCallRepository(db *DB) CallRepository {
	return &callRepo{db: db}
}

const callColumns = `id, name, user_id, contact_id, direction, state,
	 from_number, to_number, sip_call_id, start_time, answer_time, end_time,
	 hangup_reason, created_at`

// Create inserts a new call. When no reference name is supplied, a
// CALL/NNNNNN reference is generated from the row id.
func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (name, user_id, contact_id, direction, state,
		 from_number, to_number, sip_call_id, start_time, answer_time,
		 end_time, hangup_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.Name, call.UserID, call.ContactID, call.Direction, call.State,
		call.FromNumber, call.ToNumber, call.SIPCallID, call.StartTime,
		call.AnswerTime, call.EndTime, call.HangupReason,
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id

	if call.Name == "" {
		call.Name = fmt.Sprintf("CALL/%06d", id)
		if _, err := r.db.ExecContext(ctx,
			`UPDATE calls SET name = ? WHERE id = ?`, call.Name, id); err != nil {
			return fmt.Errorf("setting call reference: %w", err)
		}
	}
	return nil
}

// GetByID returns a call by ID.
func (r *callRepo) GetByID(ctx context.Context, id int64) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = ?`, id,
	))
}

// LatestBySIPCallID returns the most recently created call with the given
// SIP call id, or nil when none exists.
func (r *callRepo) LatestBySIPCallID(ctx context.Context, sipCallID string) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE sip_call_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, sipCallID,
	))
}

// Update modifies an existing call.
func (r *callRepo) Update(ctx context.Context, call *models.Call) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET name = ?, user_id = ?, contact_id = ?, direction = ?,
		 state = ?, from_number = ?, to_number = ?, sip_call_id = ?,
		 start_time = ?, answer_time = ?, end_time = ?, hangup_reason = ?
		 WHERE id = ?`,
		call.Name, call.UserID, call.ContactID, call.Direction, call.State,
		call.FromNumber, call.ToNumber, call.SIPCallID, call.StartTime,
		call.AnswerTime, call.EndTime, call.HangupReason, call.ID,
	)
	if err != nil {
		return fmt.Errorf("updating call: %w", err)
	}
	return nil
}

// ListVisible returns the page of calls visible to the filter's user along
// with the total filtered count. Visibility is a single authorized query:
// the user owns the call, or the user's SIP username equals or is contained
// in either number. A filter without a principal (zero user id, empty SIP
// username) lists everything; the admin API uses that form.
func (r *callRepo) ListVisible(ctx context.Context, filter CallListFilter) ([]models.Call, int, error) {
	// Only present principal fields contribute clauses: an empty SIP
	// username must not degrade to a match-everything LIKE.
	where := "1=1"
	var args []any

	switch {
	case filter.UserID != 0 && filter.SIPUsername != "":
		where = `(user_id = ? OR from_number = ? OR to_number = ?
		 OR from_number LIKE ? OR to_number LIKE ?)`
		sub := "%" + filter.SIPUsername + "%"
		args = []any{filter.UserID, filter.SIPUsername, filter.SIPUsername, sub, sub}
	case filter.UserID != 0:
		where = "user_id = ?"
		args = []any{filter.UserID}
	case filter.SIPUsername != "":
		where = `(from_number = ? OR to_number = ?
		 OR from_number LIKE ? OR to_number LIKE ?)`
		sub := "%" + filter.SIPUsername + "%"
		args = []any{filter.SIPUsername, filter.SIPUsername, sub, sub}
	}

	if filter.State != "" {
		where += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}

	// Count total matching rows before paging.
	var total int
	countQuery := "SELECT COUNT(*) FROM calls WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	query := `SELECT ` + callColumns + ` FROM calls WHERE ` + where +
		` ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		var c models.Call
		if err := scanCall(rows, &c); err != nil {
			return nil, 0, fmt.Errorf("scanning call row: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call rows: %w", err)
	}

	return calls, total, nil
}

// CountByDirection returns call counts grouped by direction.
func (r *callRepo) CountByDirection(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT direction, COUNT(*) FROM calls GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("counting calls by direction: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var dir string
		var n int64
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, fmt.Errorf("scanning direction count: %w", err)
		}
		counts[dir] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating direction counts: %w", err)
	}
	return counts, nil
}

// CountActive returns the number of calls still ringing or in progress.
func (r *callRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE state IN (?, ?)`,
		models.CallStateRinging, models.CallStateInProgress).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active calls: %w", err)
	}
	return n, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanCall(s scanner, c *models.Call) error {
	return s.Scan(&c.ID, &c.Name, &c.UserID, &c.ContactID, &c.Direction,
		&c.State, &c.FromNumber, &c.ToNumber, &c.SIPCallID, &c.StartTime,
		&c.AnswerTime, &c.EndTime, &c.HangupReason, &c.CreatedAt)
}

func (r *callRepo) scanOne(row *sql.Row) (*models.Call, error) {
	var c models.Call
	err := scanCall(row, &c)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call: %w", err)
	}
	return &c, nil
}
