package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db  *sql.DB
	cap int
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/worldmorse.db"
func NewSQLiteStore(ctx context.Context, dbPath string, channelCap int) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/worldmorse.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite free of "database is locked" errors.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if channelCap <= 0 {
		channelCap = DefaultChannelCap
	}
	store := &SQLiteStore{db: db, cap: channelCap}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stations (
		callsign TEXT PRIMARY KEY,
		channel TEXT,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		channel TEXT NOT NULL,
		ts INTEGER NOT NULL,
		from_callsign TEXT NOT NULL,
		to_callsign TEXT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_stations_channel ON stations(channel);
	CREATE INDEX IF NOT EXISTS idx_stations_last_seen ON stations(last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Name returns the backend name.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) getStation(ctx context.Context, callsign string) (*models.Station, error) {
	st := &models.Station{}
	var channel sql.NullString
	var lastSeen int64
	err := s.db.QueryRowContext(ctx, `
		SELECT callsign, channel, last_seen_at
		FROM stations WHERE callsign = ?
	`, callsign).Scan(&st.Callsign, &channel, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if channel.Valid {
		st.Channel = &channel.String
	}
	st.LastSeenAt = time.UnixMilli(lastSeen).UTC()
	return st, nil
}

// RegisterStation creates or refreshes a station.
func (s *SQLiteStore) RegisterStation(ctx context.Context, callsign string, now time.Time) (*models.Station, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (callsign, channel, last_seen_at)
		VALUES (?, NULL, ?)
		ON CONFLICT(callsign) DO UPDATE SET last_seen_at = excluded.last_seen_at
	`, callsign, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	return s.getStation(ctx, callsign)
}

// JoinStation creates or refreshes a station and tunes it to channel.
func (s *SQLiteStore) JoinStation(ctx context.Context, callsign, channel string, now time.Time) (*models.Station, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (callsign, channel, last_seen_at)
		VALUES (?, NULLIF(?, ''), ?)
		ON CONFLICT(callsign) DO UPDATE SET
			channel = COALESCE(excluded.channel, stations.channel),
			last_seen_at = excluded.last_seen_at
	`, callsign, channel, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	return s.getStation(ctx, callsign)
}

// TouchStation refreshes a known station.
func (s *SQLiteStore) TouchStation(ctx context.Context, callsign string, channel *string, now time.Time) (bool, error) {
	var res sql.Result
	var err error
	if channel != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE stations SET last_seen_at = ?, channel = ? WHERE callsign = ?
		`, now.UnixMilli(), *channel, callsign)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE stations SET last_seen_at = ? WHERE callsign = ?
		`, now.UnixMilli(), callsign)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListStations prunes stale stations and lists a channel.
func (s *SQLiteStore) ListStations(ctx context.Context, channel string, cutoff time.Time) ([]models.Station, int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stations WHERE last_seen_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return nil, 0, err
	}
	pruned, _ := res.RowsAffected()

	rows, err := s.db.QueryContext(ctx, `
		SELECT callsign, channel, last_seen_at
		FROM stations WHERE channel = ?
		ORDER BY callsign
	`, channel)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]models.Station, 0)
	for rows.Next() {
		var st models.Station
		var ch sql.NullString
		var lastSeen int64
		if err := rows.Scan(&st.Callsign, &ch, &lastSeen); err != nil {
			return nil, 0, err
		}
		if ch.Valid {
			st.Channel = &ch.String
		}
		st.LastSeenAt = time.UnixMilli(lastSeen).UTC()
		list = append(list, st)
	}
	return list, int(pruned), rows.Err()
}

// AppendMessage inserts a message and trims the channel to the cap.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, channel, ts, from_callsign, to_callsign, type, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Channel, msg.Timestamp.UnixMilli(), msg.FromCallsign, msg.ToCallsign, msg.Type, string(payload))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages WHERE channel = ? AND seq <= (
			SELECT seq FROM messages WHERE channel = ?
			ORDER BY seq DESC LIMIT 1 OFFSET ?
		)
	`, msg.Channel, msg.Channel, s.cap)
	if err != nil {
		return fmt.Errorf("trim channel: %w", err)
	}

	return tx.Commit()
}

// RecentMessages returns the tail of a channel in arrival order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.cap
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, ts, from_callsign, to_callsign, type, payload FROM (
			SELECT * FROM messages WHERE channel = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var ts int64
		var to sql.NullString
		var payload string
		if err := rows.Scan(&msg.ID, &msg.Channel, &ts, &msg.FromCallsign, &to, &msg.Type, &payload); err != nil {
			return nil, err
		}
		msg.Timestamp = time.UnixMilli(ts).UTC()
		if to.Valid {
			msg.ToCallsign = &to.String
		}
		if err := json.Unmarshal([]byte(payload), &msg.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
