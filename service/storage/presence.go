// Package storage mirrors gateway-local online state into Redis so the
// rest of the application (profile pages, the CRUD API's "online now"
// badges) can read presence without touching the gateway process. The
// mirror is best effort: it never gates or fails a connection.
package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "amora:presence:"

type PresenceMirrorConf struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // online-key validity; refreshed on pong
}

// PresenceMirror writes the online flag for a user. The value is the
// connection handle, the TTL bounds staleness if the gateway dies
// without cleaning up.
type PresenceMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceMirror(ctx context.Context, conf PresenceMirrorConf) (*PresenceMirror, error) {
	if conf.TTL <= 0 {
		conf.TTL = 2 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "presence mirror: redis ping")
	}
	return &PresenceMirror{rdb: rdb, ttl: conf.TTL}, nil
}

func presenceKey(externalID string) string { return presenceKeyPrefix + externalID }

// Online marks the user online for the mirror TTL.
func (m *PresenceMirror) Online(ctx context.Context, externalID, connID string) error {
	return m.rdb.Set(ctx, presenceKey(externalID), connID, m.ttl).Err()
}

// Refresh renews the TTL; called from the pong handler.
func (m *PresenceMirror) Refresh(ctx context.Context, externalID string) error {
	ok, err := m.rdb.Expire(ctx, presenceKey(externalID), m.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("presence mirror: key expired before refresh")
	}
	return nil
}

// Offline clears the user's online flag.
func (m *PresenceMirror) Offline(ctx context.Context, externalID string) error {
	return m.rdb.Del(ctx, presenceKey(externalID)).Err()
}

// IsOnline answers from the mirror, for callers outside the gateway
// process. The gateway itself always consults its in-memory registry.
func (m *PresenceMirror) IsOnline(ctx context.Context, externalID string) (bool, error) {
	_, err := m.rdb.Get(ctx, presenceKey(externalID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *PresenceMirror) Close() error { return m.rdb.Close() }
