package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// serverRepo implements ServerRepository.
type serverRepo struct {
	db *DB
}

// NewServerRepository creates a new ServerRepository.
func NewServerRepository(db *DB) ServerRepository {
	return &serverRepo{db: db}
}

const serverColumns = `id, name, host, port, use_tls, websocket_url, realm,
	 api_key, recording_enabled, max_recording_mb, active, created_at, updated_at`

// Create inserts a new PBX server registration.
func (r *serverRepo) Create(ctx context.Context, s *models.Server) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO servers (name, host, port, use_tls, websocket_url,
		 realm, api_key, recording_enabled, max_recording_mb, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Host, s.Port, s.UseTLS, s.WebsocketURL, s.Realm,
		s.APIKey, s.RecordingEnabled, s.MaxRecordingMB, s.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// GetByID returns a server by ID.
func (r *serverRepo) GetByID(ctx context.Context, id int64) (*models.Server, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id,
	))
}

// GetByAPIKey returns the active server holding the webhook API key, or nil.
func (r *serverRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.Server, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers
		 WHERE api_key = ? AND active = 1 LIMIT 1`, apiKey,
	))
}

// Update modifies an existing server.
func (r *serverRepo) Update(ctx context.Context, s *models.Server) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE servers SET name = ?, host = ?, port = ?, use_tls = ?,
		 websocket_url = ?, realm = ?, api_key = ?, recording_enabled = ?,
		 max_recording_mb = ?, active = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		s.Name, s.Host, s.Port, s.UseTLS, s.WebsocketURL, s.Realm,
		s.APIKey, s.RecordingEnabled, s.MaxRecordingMB, s.Active, s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating server: %w", err)
	}
	return nil
}

// List returns all servers ordered by name.
func (r *serverRepo) List(ctx context.Context) ([]models.Server, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		var s models.Server
		if err := scanServer(rows, &s); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server rows: %w", err)
	}
	return servers, nil
}

func scanServer(s scanner, srv *models.Server) error {
	return s.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.UseTLS,
		&srv.WebsocketURL, &srv.Realm, &srv.APIKey, &srv.RecordingEnabled,
		&srv.MaxRecordingMB, &srv.Active, &srv.CreatedAt, &srv.UpdatedAt)
}

func (r *serverRepo) scanOne(row *sql.Row) (*models.Server, error) {
	var s models.Server
	err := scanServer(row, &s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning server: %w", err)
	}
	return &s, nil
}
