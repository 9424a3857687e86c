package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

const stationsKey = "stations"

// RedisStore keeps stations in a hash and each channel's messages in a
// sorted set scored by arrival sequence.
type RedisStore struct {
	client *redis.Client
	cap    int
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, channelCap int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if channelCap <= 0 {
		channelCap = DefaultChannelCap
	}
	return &RedisStore{client: client, cap: channelCap}, nil
}

// Client exposes the underlying connection for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Name returns the backend name.
func (s *RedisStore) Name() string { return "redis" }

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// channelMessagesKey returns the key for a channel's message sorted set.
func channelMessagesKey(channel string) string {
	return fmt.Sprintf("channel:%s:messages", channel)
}

// channelSeqKey returns the key for a channel's arrival counter.
func channelSeqKey(channel string) string {
	return fmt.Sprintf("channel:%s:seq", channel)
}

func (s *RedisStore) getStation(ctx context.Context, callsign string) (*models.Station, error) {
	data, err := s.client.HGet(ctx, stationsKey, callsign).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st models.Station
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decode station %s: %w", callsign, err)
	}
	return &st, nil
}

func (s *RedisStore) putStation(ctx context.Context, st *models.Station) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, stationsKey, st.Callsign, string(data)).Err()
}

// RegisterStation creates or refreshes a station.
func (s *RedisStore) RegisterStation(ctx context.Context, callsign string, now time.Time) (*models.Station, error) {
	st, err := s.getStation(ctx, callsign)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &models.Station{Callsign: callsign}
	}
	st.LastSeenAt = now
	if err := s.putStation(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// JoinStation creates or refreshes a station and tunes it to channel.
func (s *RedisStore) JoinStation(ctx context.Context, callsign, channel string, now time.Time) (*models.Station, error) {
	st, err := s.getStation(ctx, callsign)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &models.Station{Callsign: callsign}
	}
	if channel != "" {
		st.Channel = &channel
	}
	st.LastSeenAt = now
	if err := s.putStation(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// TouchStation refreshes a known station.
func (s *RedisStore) TouchStation(ctx context.Context, callsign string, channel *string, now time.Time) (bool, error) {
	st, err := s.getStation(ctx, callsign)
	if err != nil || st == nil {
		return false, err
	}
	st.LastSeenAt = now
	if channel != nil {
		st.Channel = channel
	}
	return true, s.putStation(ctx, st)
}

// ListStations prunes stale stations and lists a channel.
func (s *RedisStore) ListStations(ctx context.Context, channel string, cutoff time.Time) ([]models.Station, int, error) {
	all, err := s.client.HGetAll(ctx, stationsKey).Result()
	if err != nil {
		return nil, 0, err
	}

	var stale []string
	list := make([]models.Station, 0)
	for callsign, data := range all {
		var st models.Station
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			// Unreadable entries are treated as stale
			stale = append(stale, callsign)
			continue
		}
		if st.LastSeenAt.Before(cutoff) {
			stale = append(stale, callsign)
			continue
		}
		if st.OnChannel(channel) {
			list = append(list, st)
		}
	}

	if len(stale) > 0 {
		if err := s.client.HDel(ctx, stationsKey, stale...).Err(); err != nil {
			return nil, 0, err
		}
	}

	sortStations(list)
	return list, len(stale), nil
}

// AppendMessage stores a message in Redis. Channel logs carry no TTL; the
// cap alone bounds them.
func (s *RedisStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, channelSeqKey(msg.Channel)).Result()
	if err != nil {
		return err
	}

	key := channelMessagesKey(msg.Channel)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(seq),
		Member: string(data),
	})
	// Keep only the newest cap entries
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.cap-1))
	_, err = pipe.Exec(ctx)
	return err
}

// RecentMessages returns the tail of a channel in arrival order.
func (s *RedisStore) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	results, err := s.client.ZRange(ctx, channelMessagesKey(channel), start, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
