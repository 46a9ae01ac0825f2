package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisPresence 把在线状态镜像到 Redis，供 REST 服务等其他进程读取。
// key: im:presence:<userId>，value 为上线时间戳，TTL 到期即视为离线。
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(c Config, ttl time.Duration) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", c.Addr)
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}, nil
}

func presenceKey(userID uint) string { return "im:presence:" + strconv.FormatUint(uint64(userID), 10) }

// SetUserOnline 上线写 key 并设置 TTL，下线删除 key。
func (p *RedisPresence) SetUserOnline(ctx context.Context, userID uint, online bool, at time.Time) error {
	if online {
		return p.rdb.Set(ctx, presenceKey(userID), at.Unix(), p.ttl).Err()
	}
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Refresh 为仍在线的用户续期。
func (p *RedisPresence) Refresh(ctx context.Context, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, id := range userIDs {
		pipe.Expire(ctx, presenceKey(id), p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "refresh %d presence keys", len(userIDs))
	}
	return nil
}

// KeepAlive 每 ttl/3 续期一次，直到 ctx 结束。
func (p *RedisPresence) KeepAlive(ctx context.Context, online func() []uint) {
	interval := p.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx, online()); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("refresh redis presence")
			}
		}
	}
}

func (p *RedisPresence) Close() error { return p.rdb.Close() }
