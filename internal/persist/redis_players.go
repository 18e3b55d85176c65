package persist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldID           = "id"
	fieldKey          = "key"
	fieldName         = "name"
	fieldCreatedAt    = "created_at"
	fieldPlayed       = "played"
	fieldWins         = "wins"
	fieldLosses       = "losses"
	fieldDraws        = "draws"
	fieldScoreFor     = "score_for"
	fieldScoreAgainst = "score_against"
)

// RedisPlayers keeps player records as hashes with an identity-key index.
type RedisPlayers struct{ rdb *redis.Client }

func NewRedisPlayers(rdb *redis.Client) *RedisPlayers { return &RedisPlayers{rdb: rdb} }

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisPlayers) keyPlayer(id string) string { return "lb:player:" + id }
func (s *RedisPlayers) keyIndex(key string) string { return "lb:player:key:" + key }

func (s *RedisPlayers) FindOrCreatePlayer(ctx context.Context, key, name string) (*Player, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}
	id := uuid.NewString()
	created, err := s.rdb.SetNX(ctx, s.keyIndex(key), id, 0).Result()
	if err != nil {
		return nil, err
	}
	if created {
		fields := map[string]any{
			fieldID:        id,
			fieldKey:       key,
			fieldName:      strings.TrimSpace(name),
			fieldCreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := s.rdb.HSet(ctx, s.keyPlayer(id), fields).Err(); err != nil {
			return nil, err
		}
	}
	return s.FindPlayer(ctx, key)
}

func (s *RedisPlayers) FindPlayer(ctx context.Context, key string) (*Player, error) {
	id, err := s.rdb.Get(ctx, s.keyIndex(strings.TrimSpace(key))).Result()
	if err == redis.Nil {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *RedisPlayers) IncrementStatistics(ctx context.Context, playerID string, d StatsDelta) error {
	n, err := s.rdb.Exists(ctx, s.keyPlayer(playerID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlayerNotFound
	}
	k := s.keyPlayer(playerID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, k, fieldPlayed, int64(d.Played))
		p.HIncrBy(ctx, k, fieldWins, int64(d.Wins))
		p.HIncrBy(ctx, k, fieldLosses, int64(d.Losses))
		p.HIncrBy(ctx, k, fieldDraws, int64(d.Draws))
		p.HIncrBy(ctx, k, fieldScoreFor, int64(d.ScoreFor))
		p.HIncrBy(ctx, k, fieldScoreAgainst, int64(d.ScoreAgainst))
		return nil
	})
	return err
}

func (s *RedisPlayers) load(ctx context.Context, id string) (*Player, error) {
	h, err := s.rdb.HGetAll(ctx, s.keyPlayer(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, ErrPlayerNotFound
	}
	p := &Player{ID: h[fieldID], Key: h[fieldKey], Name: h[fieldName]}
	if ts, err := time.Parse(time.RFC3339Nano, h[fieldCreatedAt]); err == nil {
		p.CreatedAt = ts
	}
	p.Stats = Stats{
		Played:       atoi(h[fieldPlayed]),
		Wins:         atoi(h[fieldWins]),
		Losses:       atoi(h[fieldLosses]),
		Draws:        atoi(h[fieldDraws]),
		ScoreFor:     atoi(h[fieldScoreFor]),
		ScoreAgainst: atoi(h[fieldScoreAgainst]),
	}
	return p, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
