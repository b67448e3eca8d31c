// Package storage - mysql.go
// MySQL implementation of EventRepository and SnapshotRepository for
// deployments where the save file outlives a single machine.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// InitMySQL opens a MySQL connection and creates the necessary schemas.
// The DSN must include parseTime=true so DATETIME columns scan into time.Time.
func InitMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS company_saves (
			save_id VARCHAR(64) PRIMARY KEY,
			saved_at DATETIME NOT NULL,
			game_day INT NOT NULL DEFAULT 0,
			funds BIGINT NOT NULL DEFAULT 0,
			reputation DOUBLE NOT NULL DEFAULT 1.0,
			state_json MEDIUMTEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			timestamp DATETIME(3) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			actor_id VARCHAR(64) NOT NULL,
			target_id VARCHAR(64) NOT NULL,
			payload TEXT NOT NULL,
			game_day INT NOT NULL,
			INDEX idx_events_actor_id (actor_id),
			INDEX idx_events_game_day (game_day),
			INDEX idx_events_event_type (event_type)
		)`,
	}
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("failed to create mysql schema: %w", err)
		}
	}

	return db, nil
}

// MySQLEventRepository implements EventRepository using MySQL.
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQL event repository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{db: db}
}

// Append inserts a new event into the immutable ledger.
func (r *MySQLEventRepository) Append(ctx context.Context, event GameEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, target_id, payload, game_day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		event.TargetID,
		payloadJSON,
		event.GameDay,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetAll retrieves the full event history.
func (r *MySQLEventRepository) GetAll(ctx context.Context) ([]GameEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day
		FROM events
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query)
}

// GetByActorID retrieves all events performed by an actor.
func (r *MySQLEventRepository) GetByActorID(ctx context.Context, actorID string) ([]GameEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day
		FROM events
		WHERE actor_id = ?
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query, actorID)
}

// GetByGameDay retrieves all events from a specific in-game day.
func (r *MySQLEventRepository) GetByGameDay(ctx context.Context, day int) ([]GameEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day
		FROM events
		WHERE game_day = ?
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query, day)
}

// GetByEventType retrieves all events of a specific type.
func (r *MySQLEventRepository) GetByEventType(ctx context.Context, eventType string) ([]GameEvent, error) {
	query := `
		SELECT id, timestamp, event_type, actor_id, target_id, payload, game_day
		FROM events
		WHERE event_type = ?
		ORDER BY timestamp ASC
	`

	return r.queryEvents(ctx, query, eventType)
}

// queryEvents is a helper to execute queries and scan results.
func (r *MySQLEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]GameEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []GameEvent
	for rows.Next() {
		var e GameEvent
		var payloadJSON []byte
		var targetID sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.EventType,
			&e.ActorID,
			&targetID,
			&payloadJSON,
			&e.GameDay,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if targetID.Valid {
			e.TargetID = targetID.String
		}

		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Ensure MySQLEventRepository implements EventRepository
var _ EventRepository = (*MySQLEventRepository)(nil)

// MySQLSnapshotRepository implements SnapshotRepository using MySQL.
type MySQLSnapshotRepository struct {
	db *sql.DB
}

// NewMySQLSnapshotRepository creates a new MySQL snapshot repository.
func NewMySQLSnapshotRepository(db *sql.DB) *MySQLSnapshotRepository {
	return &MySQLSnapshotRepository{db: db}
}

// Upsert writes or replaces a save slot.
func (r *MySQLSnapshotRepository) Upsert(ctx context.Context, snapshot CompanySnapshot) error {
	query := `
		INSERT INTO company_saves (save_id, saved_at, game_day, funds, reputation, state_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			saved_at=VALUES(saved_at),
			game_day=VALUES(game_day),
			funds=VALUES(funds),
			reputation=VALUES(reputation),
			state_json=VALUES(state_json)
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.SaveID, snapshot.SavedAt, snapshot.GameDay,
		snapshot.Funds, snapshot.Reputation, string(snapshot.StateJSON),
	)
	return err
}

// Get retrieves a save slot. Returns nil when the slot is empty.
func (r *MySQLSnapshotRepository) Get(ctx context.Context, saveID string) (*CompanySnapshot, error) {
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

// List retrieves metadata for all save slots.
func (r *MySQLSnapshotRepository) List(ctx context.Context) ([]CompanySnapshot, error) {
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

// Delete removes a save slot.
func (r *MySQLSnapshotRepository) Delete(ctx context.Context, saveID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM company_saves WHERE save_id = ?`, saveID)
	return err
}

var _ SnapshotRepository = (*MySQLSnapshotRepository)(nil)
