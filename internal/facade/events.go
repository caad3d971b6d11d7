// internal/facade/events.go
package facade

import (
	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
)

// GameEventType is an enum-like type for presentation notifications.
type GameEventType string

const (
	EventMatchStarted      GameEventType = "match_started"
	EventHandChanged       GameEventType = "hand_changed"
	EventDiscardChanged    GameEventType = "discard_changed"
	EventTurnChanged       GameEventType = "turn_changed"
	EventEffectTriggered   GameEventType = "effect_triggered"
	EventMinigameRequested GameEventType = "minigame_requested"
	EventMatchOver         GameEventType = "match_over"
	EventIllegalMove       GameEventType = "illegal_move"
	EventCardPlayed        GameEventType = "card_played"
	EventCardDrawn         GameEventType = "card_drawn"
	EventUnoCalled         GameEventType = "uno_called"
	EventDeckReshuffled    GameEventType = "deck_reshuffled"
	EventSyncGap           GameEventType = "sync_gap"
)

// GameEvent is one notification for the presentation layer.
type GameEvent struct {
	Type GameEventType `json:"type"`
	Seq  uint64        `json:"seq"`
	Seat models.Seat   `json:"seat,omitempty"`
	Card *models.Card  `json:"card,omitempty"`

	// Hand is only set when the seat's cards are visible on this device; HandSize always is.
	Hand     []models.Card `json:"hand,omitempty"`
	HandSize int           `json:"handSize,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
	View    *game.TableView        `json:"view,omitempty"`
}

// BroadcastFn receives events after the facade has released its lock, so it may call
// back into the facade.
type BroadcastFn func(ev GameEvent)
