// internal/historian/historian.go is an asynchronous historian that pops match action
// records from a Redis queue and persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sink stores action records. *database.MatchStore satisfies it.
type Sink interface {
	WriteActions(ctx context.Context, recs []cache.MatchActionRecord) error
	MarkAbandoned(ctx context.Context, matchID uuid.UUID) error
}

// Source yields raw queued records. Next returns nil, nil when nothing arrived before its
// own timeout.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// RedisSource pops from a Redis list with BLPOP.
type RedisSource struct {
	rdb     redis.Cmdable
	queue   string
	timeout time.Duration
}

// NewRedisSource reads queue on rdb. BLPOP waits at most 3s so cancellation is noticed.
func NewRedisSource(rdb redis.Cmdable, queue string) *RedisSource {
	return &RedisSource{rdb: rdb, queue: queue, timeout: 3 * time.Second}
}

func (s *RedisSource) Next(ctx context.Context) ([]byte, error) {
	res, err := s.rdb.BLPop(ctx, s.timeout, s.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Config tunes batching and the inactivity sweep.
type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a match may go without actions before it is marked abandoned.
	Inactivity time.Duration
	SweepEvery time.Duration
}

// ConfigFromEnv reads HISTORIAN_BATCH_SIZE, HISTORIAN_FLUSH_MS and
// MATCH_INACTIVITY_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		BatchSize:  config.GetEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushDelay: time.Duration(config.GetEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		Inactivity: config.GetEnvDuration("MATCH_INACTIVITY_TIMEOUT", 10*time.Minute),
		SweepEvery: time.Minute,
	}
}

// Service moves records from a Source into a Sink.
type Service struct {
	source Source
	sink   Sink
	cfg    Config
	logger *logrus.Entry
	now    func() time.Time

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []cache.MatchActionRecord
}

// NewService builds a historian. Zero config fields take the env defaults.
func NewService(source Source, sink Sink, cfg Config, logger *logrus.Entry) *Service {
	def := ConfigFromEnv()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = def.FlushDelay
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = def.Inactivity
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = def.SweepEvery
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logger.WithField("component", "historian"),
		now:    time.Now,
		batch:  make([]cache.MatchActionRecord, 0, cfg.BatchSize),
	}
}

// Run reads, flushes and sweeps until ctx is done, then flushes what is left.
func (hs *Service) Run(ctx context.Context) error {
	hs.logger.Info("historian started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hs.readLoop(gctx) })
	g.Go(func() error { return hs.flushLoop(gctx) })
	g.Go(func() error { return hs.inactivityLoop(gctx) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Flush(flushCtx)
	hs.logger.Info("historian stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (hs *Service) readLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := hs.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			hs.logger.WithError(err).Error("queue read failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if data == nil {
			continue
		}
		if err := hs.Ingest(ctx, data); err != nil {
			hs.logger.WithError(err).Warn("invalid action record")
		}
	}
}

// Ingest decodes one queued record, tracks its match's activity and batches it.
func (hs *Service) Ingest(ctx context.Context, data []byte) error {
	var rec cache.MatchActionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if rec.MatchID == uuid.Nil {
		return fmt.Errorf("record without match id")
	}
	if status, _ := database.FinalStatus(rec); status != "" {
		hs.lastActivity.Delete(rec.MatchID)
	} else {
		hs.lastActivity.Store(rec.MatchID, hs.now())
	}

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.cfg.BatchSize
	hs.batchMu.Unlock()
	if full {
		hs.Flush(ctx)
	}
	return nil
}

func (hs *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(hs.cfg.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hs.Flush(ctx)
		}
	}
}

// Flush writes the pending batch in one call to the sink. A failed batch is put back in
// front of newer records.
func (hs *Service) Flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := make([]cache.MatchActionRecord, len(hs.batch))
	copy(pending, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := hs.sink.WriteActions(ctx, pending); err != nil {
		hs.logger.WithError(err).WithField("count", len(pending)).Error("flush failed")
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return
	}
	hs.logger.WithField("count", len(pending)).Debug("flushed actions")
}

func (hs *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(hs.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hs.Sweep(ctx)
		}
	}
}

// Sweep marks every match idle for longer than the inactivity threshold as abandoned.
func (hs *Service) Sweep(ctx context.Context) {
	now := hs.now()
	hs.lastActivity.Range(func(key, val interface{}) bool {
		matchID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= hs.cfg.Inactivity {
			return true
		}
		// actions still batched must land before the match row is closed
		hs.Flush(ctx)
		if err := hs.sink.MarkAbandoned(ctx, matchID); err != nil {
			hs.logger.WithError(err).WithField("match", matchID).Error("failed to mark match abandoned")
			return true
		}
		hs.lastActivity.Delete(matchID)
		hs.logger.WithField("match", matchID).Info("marked match abandoned after inactivity")
		return true
	})
}
