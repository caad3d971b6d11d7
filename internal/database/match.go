// internal/database/match.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/models"
)

// schema is applied by EnsureSchema. Both peers publish every action, so the action
// key dedupes the second copy.
const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id          UUID PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'in_progress',
	winner_seat TEXT,
	start_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS match_actions (
	match_id       UUID NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	action_index   BIGINT NOT NULL,
	action_type    TEXT NOT NULL,
	actor_seat     TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}',
	recorded_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (match_id, action_index, action_type)
);
`

// MatchStore persists match action logs.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore wraps pool. A nil pool falls back to DB.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	if pool == nil {
		pool = DB
	}
	return &MatchStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *MatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// WriteActions inserts a batch of action records in one transaction.
func (s *MatchStore) WriteActions(ctx context.Context, recs []cache.MatchActionRecord) error {
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertMatchActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertMatchActionTx: %w", err)
			}
		}
		return nil
	})
}

// MarkAbandoned closes a match that is still in progress.
func (s *MatchStore) MarkAbandoned(ctx context.Context, matchID uuid.UUID) error {
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE matches
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, matchID)
		return err
	})
}

// MatchStatus returns the recorded status and winner seat of a match.
func (s *MatchStore) MatchStatus(ctx context.Context, matchID uuid.UUID) (status string, winner string, err error) {
	var w *string
	err = s.pool.QueryRow(ctx, `SELECT status, winner_seat FROM matches WHERE id = $1`, matchID).Scan(&status, &w)
	if err != nil {
		return "", "", err
	}
	if w != nil {
		winner = *w
	}
	return status, winner, nil
}

// insertMatchActionTx upserts the match row, inserts rec, and finalizes the match when
// rec ends it.
func insertMatchActionTx(ctx context.Context, tx pgx.Tx, rec cache.MatchActionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO matches (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`, rec.MatchID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO match_actions (
			match_id, action_index, action_type, actor_seat, action_payload, recorded_at
		) VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
		ON CONFLICT DO NOTHING
	`, rec.MatchID, int64(rec.ActionIndex), rec.ActionType, rec.ActorSeat, payload, rec.Timestamp)
	if err != nil {
		return err
	}

	switch status, winner := FinalStatus(rec); status {
	case "completed":
		_, err = tx.Exec(ctx, `
			UPDATE matches
			SET status = 'completed', winner_seat = $2, end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, rec.MatchID, winner)
	case "abandoned":
		_, err = tx.Exec(ctx, `
			UPDATE matches
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, rec.MatchID)
	}
	return err
}

// FinalStatus reports whether rec ends its match: "completed" with the winner's seat for
// a winning play, "abandoned" for an abandon, "" otherwise.
func FinalStatus(rec cache.MatchActionRecord) (status string, winner string) {
	switch models.ActionType(rec.ActionType) {
	case models.ActionAbandon:
		return "abandoned", ""
	case models.ActionPlay:
		if w, ok := rec.ActionPayload["winner"].(string); ok && w != "" {
			return "completed", w
		}
	}
	return "", ""
}
