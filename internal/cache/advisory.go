package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/redis/go-redis/v9"
)

// turnKeyTTL bounds how long an abandoned match's turn key lingers.
const turnKeyTTL = 2 * time.Hour

// RedisTurnAdvisory shares the current-turn seat between peers. The key holds the last
// announced seat and every announcement is also published on a channel of the same name.
// Last write wins; nothing here is authoritative.
type RedisTurnAdvisory struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTurnAdvisory wraps rdb. A nil rdb falls back to the global client.
func NewRedisTurnAdvisory(rdb *redis.Client) *RedisTurnAdvisory {
	if rdb == nil {
		rdb = Rdb
	}
	return &RedisTurnAdvisory{rdb: rdb, prefix: config.GetEnv("TURN_ADVISORY_PREFIX", "zerou:turn:")}
}

func (a *RedisTurnAdvisory) key(matchID uuid.UUID) string {
	return a.prefix + matchID.String()
}

// Announce records seat as the current turn for matchID.
func (a *RedisTurnAdvisory) Announce(ctx context.Context, matchID uuid.UUID, seat models.Seat) error {
	key := a.key(matchID)
	pipe := a.rdb.TxPipeline()
	pipe.Set(ctx, key, string(seat), turnKeyTTL)
	pipe.Publish(ctx, key, string(seat))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce turn for %s: %w", matchID, err)
	}
	return nil
}

// Current returns the last announced seat, or "" if nothing was announced.
func (a *RedisTurnAdvisory) Current(ctx context.Context, matchID uuid.UUID) (models.Seat, error) {
	v, err := a.rdb.Get(ctx, a.key(matchID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read turn for %s: %w", matchID, err)
	}
	return models.ParseSeat(v)
}

// Watch streams announcements for matchID until ctx is done. Unparseable payloads are skipped.
func (a *RedisTurnAdvisory) Watch(ctx context.Context, matchID uuid.UUID) (<-chan models.Seat, error) {
	sub := a.rdb.Subscribe(ctx, a.key(matchID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe turn for %s: %w", matchID, err)
	}
	out := make(chan models.Seat, 4)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				seat, err := models.ParseSeat(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- seat:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
