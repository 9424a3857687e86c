package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	cap  int
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, channelCap int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if channelCap <= 0 {
		channelCap = DefaultChannelCap
	}
	s := &PostgresStore{pool: pool, cap: channelCap}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stations (
			callsign TEXT PRIMARY KEY,
			channel TEXT,
			last_seen_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT UNIQUE NOT NULL,
			channel TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			from_callsign TEXT NOT NULL,
			to_callsign TEXT,
			type TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_stations_channel ON stations(channel);
		CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel, seq);
	`)
	return err
}

// Name returns the backend name.
func (s *PostgresStore) Name() string { return "postgres" }

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanStation(row pgx.Row) (*models.Station, error) {
	st := &models.Station{}
	if err := row.Scan(&st.Callsign, &st.Channel, &st.LastSeenAt); err != nil {
		return nil, err
	}
	st.LastSeenAt = st.LastSeenAt.UTC()
	return st, nil
}

// RegisterStation creates or refreshes a station.
func (s *PostgresStore) RegisterStation(ctx context.Context, callsign string, now time.Time) (*models.Station, error) {
	return scanStation(s.pool.QueryRow(ctx, `
		INSERT INTO stations (callsign, channel, last_seen_at)
		VALUES ($1, NULL, $2)
		ON CONFLICT (callsign) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
		RETURNING callsign, channel, last_seen_at
	`, callsign, now))
}

// JoinStation creates or refreshes a station and tunes it to channel.
func (s *PostgresStore) JoinStation(ctx context.Context, callsign, channel string, now time.Time) (*models.Station, error) {
	return scanStation(s.pool.QueryRow(ctx, `
		INSERT INTO stations (callsign, channel, last_seen_at)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (callsign) DO UPDATE SET
			channel = COALESCE(EXCLUDED.channel, stations.channel),
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING callsign, channel, last_seen_at
	`, callsign, channel, now))
}

// TouchStation refreshes a known station.
func (s *PostgresStore) TouchStation(ctx context.Context, callsign string, channel *string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stations
		SET last_seen_at = $2, channel = COALESCE($3, channel)
		WHERE callsign = $1
	`, callsign, now, channel)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStations prunes stale stations and lists a channel.
func (s *PostgresStore) ListStations(ctx context.Context, channel string, cutoff time.Time) ([]models.Station, int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stations WHERE last_seen_at < $1`, cutoff)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT callsign, channel, last_seen_at
		FROM stations WHERE channel = $1
		ORDER BY callsign
	`, channel)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]models.Station, 0)
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *st)
	}
	return list, int(tag.RowsAffected()), rows.Err()
}

// AppendMessage inserts a message and trims the channel to the cap.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, channel, ts, from_callsign, to_callsign, type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.Channel, msg.Timestamp, msg.FromCallsign, msg.ToCallsign, msg.Type, payload)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM messages WHERE channel = $1 AND seq <= (
			SELECT seq FROM messages WHERE channel = $1
			ORDER BY seq DESC LIMIT 1 OFFSET $2
		)
	`, msg.Channel, s.cap)
	if err != nil {
		return fmt.Errorf("trim channel: %w", err)
	}

	return tx.Commit(ctx)
}

// RecentMessages returns the tail of a channel in arrival order.
func (s *PostgresStore) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.cap
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, channel, ts, from_callsign, to_callsign, type, payload FROM (
			SELECT * FROM messages WHERE channel = $1
			ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC
	`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var payload []byte
		if err := rows.Scan(&msg.ID, &msg.Channel, &msg.Timestamp, &msg.FromCallsign, &msg.ToCallsign, &msg.Type, &payload); err != nil {
			return nil, err
		}
		msg.Timestamp = msg.Timestamp.UTC()
		if err := json.Unmarshal(payload, &msg.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

