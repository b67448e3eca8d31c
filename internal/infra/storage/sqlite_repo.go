package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event GameEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, target_id, payload, game_day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.GameDay,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]GameEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []GameEvent
	for rows.Next() {
		var e GameEvent
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.GameDay,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetAll(ctx context.Context) ([]GameEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day FROM events ORDER BY timestamp ASC`
	return r.getMany(ctx, query)
}

func (r *SQLiteEventRepository) GetByActorID(ctx context.Context, actorID string) ([]GameEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day FROM events WHERE actor_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, actorID)
}

func (r *SQLiteEventRepository) GetByGameDay(ctx context.Context, day int) ([]GameEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day FROM events WHERE game_day = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, day)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string) ([]GameEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day FROM events WHERE event_type = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, eventType)
}

var _ EventRepository = (*SQLiteEventRepository)(nil)

// ---------------------------------------------------------
// SQLiteSnapshotRepository
// ---------------------------------------------------------

type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) Upsert(ctx context.Context, snapshot CompanySnapshot) error {
	query := `
		INSERT INTO company_saves (save_id, saved_at, game_day, funds, reputation, state_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(save_id) DO UPDATE SET
			saved_at=excluded.saved_at,
			game_day=excluded.game_day,
			funds=excluded.funds,
			reputation=excluded.reputation,
			state_json=excluded.state_json
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.SaveID, snapshot.SavedAt, snapshot.GameDay,
		snapshot.Funds, snapshot.Reputation, string(snapshot.StateJSON),
	)
	return err
}

func (r *SQLiteSnapshotRepository) Get(ctx context.Context, saveID string) (*CompanySnapshot, error) {
	query := `SELECT save_id, saved_at, game_day, funds, reputation, state_json FROM company_saves WHERE save_id = ?`
	var s CompanySnapshot
	var stateStr string
	err := r.db.QueryRowContext(ctx, query, saveID).Scan(
		&s.SaveID, &s.SavedAt, &s.GameDay, &s.Funds, &s.Reputation, &stateStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.StateJSON = []byte(stateStr)
	return &s, nil
}

func (r *SQLiteSnapshotRepository) List(ctx context.Context) ([]CompanySnapshot, error) {
	query := `SELECT save_id, saved_at, game_day, funds, reputation FROM company_saves ORDER BY saved_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var saves []CompanySnapshot
	for rows.Next() {
		var s CompanySnapshot
		if err := rows.Scan(&s.SaveID, &s.SavedAt, &s.GameDay, &s.Funds, &s.Reputation); err != nil {
			return nil, err
		}
		saves = append(saves, s)
	}
	return saves, rows.Err()
}

func (r *SQLiteSnapshotRepository) Delete(ctx context.Context, saveID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM company_saves WHERE save_id = ?`, saveID)
	return err
}

var _ SnapshotRepository = (*SQLiteSnapshotRepository)(nil)
