package presence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	OnlineKey      = "presence:online"
	UpdatesChannel = "presence:updates"
	mirrorTimeout  = 1500 * time.Millisecond
)

// Mirror receives full snapshots of the registry so processes other than
// this one (the CRUD layer, other realtime nodes) can read presence.
type Mirror interface {
	Sync(ctx context.Context, users []User) error
}

// RedisMirror keeps the snapshot in a hash (user id -> JSON user) and
// announces the online count on UpdatesChannel.
type RedisMirror struct {
	rdc *redis.Client
	ttl time.Duration
}

func NewRedisMirror(rdc *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdc: rdc, ttl: ttl}
}

func (m *RedisMirror) Sync(ctx context.Context, users []User) error {
	fields := make([]any, 0, len(users)*2)
	for _, u := range users {
		b, err := json.Marshal(u)
		if err != nil {
			return err
		}
		fields = append(fields, u.UserID, string(b))
	}

	_, err := m.rdc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, OnlineKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, OnlineKey, fields...)
			pipe.Expire(ctx, OnlineKey, m.ttl)
		}
		pipe.Publish(ctx, UpdatesChannel, strconv.Itoa(len(users)))
		return nil
	})
	return err
}

// RunMirror pushes the registry snapshot to m after every change and on each
// tick, so a key lost to expiry or a Redis restart heals itself. It is the
// only writer of the mirror.
func RunMirror(ctx context.Context, reg *Registry, m Mirror, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reg.Changed():
			case <-tk.C:
			}
			syncOnce(ctx, reg, m)
		}
	}()
}

func syncOnce(ctx context.Context, reg *Registry, m Mirror) {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	users := reg.List()
	if err := m.Sync(ctx, users); err != nil {
		zap.L().Warn("presence.mirror_sync", zap.Int("online", len(users)), zap.Error(err))
	}
}
