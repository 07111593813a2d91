package database

import (
	"context"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// eventRepo implements EventRepository.
type eventRepo struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) EventRepository {
	return &eventRepo{db: db}
}

const eventColumns = `id, server_id, event_type, channel, caller_id_num,
	 caller_id_name, connected_line_num, exten, context, unique_id,
	 linked_id, peer, peer_status, channel_state, raw, processed, created_at`

// Create inserts a journal row for a PBX event.
func (r *eventRepo) Create(ctx context.Context, ev *models.Event) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO events (server_id, event_type, channel, caller_id_num,
		 caller_id_name, connected_line_num, exten, context, unique_id,
		 linked_id, peer, peer_status, channel_state, raw, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ServerID, ev.EventType, ev.Channel, ev.CallerIDNum,
		ev.CallerIDName, ev.ConnectedLineNum, ev.Exten, ev.Context,
		ev.UniqueID, ev.LinkedID, ev.Peer, ev.PeerStatus, ev.ChannelState,
		ev.Raw, ev.Processed,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	ev.ID = id
	return nil
}

// List returns journal rows matching the filter plus the total count.
func (r *eventRepo) List(ctx context.Context, filter EventListFilter) ([]models.Event, int, error) {
	where := "1=1"
	args := []any{}

	if filter.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, filter.EventType)
	}
	if filter.ServerID != 0 {
		where += " AND server_id = ?"
		args = append(args, filter.ServerID)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM events WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.ServerID, &ev.EventType, &ev.Channel,
			&ev.CallerIDNum, &ev.CallerIDName, &ev.ConnectedLineNum,
			&ev.Exten, &ev.Context, &ev.UniqueID, &ev.LinkedID, &ev.Peer,
			&ev.PeerStatus, &ev.ChannelState, &ev.Raw, &ev.Processed,
			&ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, total, nil
}

// MarkProcessed flags an event as consumed by the presence engine.
func (r *eventRepo) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}

// Count returns the journal size.
func (r *eventRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}
