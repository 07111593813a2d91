package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// voipUserRepo implements VoIPUserRepository.
type voipUserRepo struct {
	db *DB
}

// NewVoIPUserRepository creates a new VoIPUserRepository.
func NewVoIPUserRepository(db *DB) VoIPUserRepository {
	return &voipUserRepo{db: db}
}

const voipUserColumns = `id, server_id, sip_username, extension, password_hash,
	 display_name, status, auto_answer, ring_tone, enable_recording,
	 auto_recording, recording_format, active, last_login, created_at, updated_at`

// Create inserts a new VoIP user.
func (r *voipUserRepo) Create(ctx context.Context, u *models.VoIPUser) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO voip_users (server_id, sip_username, extension,
		 password_hash, display_name, status, auto_answer, ring_tone,
		 enable_recording, auto_recording, recording_format, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ServerID, u.SIPUsername, u.Extension, u.PasswordHash,
		u.DisplayName, u.Status, u.AutoAnswer, u.RingTone,
		u.EnableRecord, u.AutoRecord, u.RecordFormat, u.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting voip user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	u.ID = id
	return nil
}

// GetByID returns a user by ID.
func (r *voipUserRepo) GetByID(ctx context.Context, id int64) (*models.VoIPUser, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+voipUserColumns+` FROM voip_users WHERE id = ?`, id,
	))
}

// GetBySIPUsername returns the active user with the exact SIP username.
func (r *voipUserRepo) GetBySIPUsername(ctx context.Context, sipUsername string) (*models.VoIPUser, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+voipUserColumns+` FROM voip_users
		 WHERE sip_username = ? AND active = 1 LIMIT 1`, sipUsername,
	))
}

// FindByExtension resolves a PBX extension to a user. Lookup order: exact
// extension, exact SIP username, SIP username substring. Only active users
// are considered.
func (r *voipUserRepo) FindByExtension(ctx context.Context, extension string) (*models.VoIPUser, error) {
	u, err := r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+voipUserColumns+` FROM voip_users
		 WHERE extension = ? AND active = 1 LIMIT 1`, extension,
	))
	if err != nil || u != nil {
		return u, err
	}

	u, err = r.GetBySIPUsername(ctx, extension)
	if err != nil || u != nil {
		return u, err
	}

	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+voipUserColumns+` FROM voip_users
		 WHERE sip_username LIKE ? AND active = 1 LIMIT 1`,
		"%"+extension+"%",
	))
}

// Update modifies an existing user.
func (r *voipUserRepo) Update(ctx context.Context, u *models.VoIPUser) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voip_users SET server_id = ?, sip_username = ?, extension = ?,
		 password_hash = ?, display_name = ?, status = ?, auto_answer = ?,
		 ring_tone = ?, enable_recording = ?, auto_recording = ?,
		 recording_format = ?, active = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		u.ServerID, u.SIPUsername, u.Extension, u.PasswordHash,
		u.DisplayName, u.Status, u.AutoAnswer, u.RingTone,
		u.EnableRecord, u.AutoRecord, u.RecordFormat, u.Active, u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating voip user: %w", err)
	}
	return nil
}

// UpdateStatus writes a new presence status.
func (r *voipUserRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voip_users SET status = ?, updated_at = datetime('now')
		 WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating voip user status: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the user's last successful login.
func (r *voipUserRepo) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voip_users SET last_login = datetime('now'),
		 updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating voip user last login: %w", err)
	}
	return nil
}

// List returns all active users ordered by SIP username.
func (r *voipUserRepo) List(ctx context.Context) ([]models.VoIPUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+voipUserColumns+` FROM voip_users
		 WHERE active = 1 ORDER BY sip_username`)
	if err != nil {
		return nil, fmt.Errorf("listing voip users: %w", err)
	}
	defer rows.Close()

	var users []models.VoIPUser
	for rows.Next() {
		var u models.VoIPUser
		if err := scanVoIPUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning voip user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voip user rows: %w", err)
	}
	return users, nil
}

// CountByStatus returns active user counts grouped by presence status.
func (r *voipUserRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM voip_users WHERE active = 1 GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting users by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

func scanVoIPUser(s scanner, u *models.VoIPUser) error {
	return s.Scan(&u.ID, &u.ServerID, &u.SIPUsername, &u.Extension,
		&u.PasswordHash, &u.DisplayName, &u.Status, &u.AutoAnswer,
		&u.RingTone, &u.EnableRecord, &u.AutoRecord, &u.RecordFormat,
		&u.Active, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
}

func (r *voipUserRepo) scanOne(row *sql.Row) (*models.VoIPUser, error) {
	var u models.VoIPUser
	err := scanVoIPUser(row, &u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning voip user: %w", err)
	}
	return &u, nil
}
