// internal/game/sync_state.go
package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/models"
)

// InitialState is the host's dealt match as carried by INIT_GAME. Hands are keyed by
// canonical seat so the client loads them without swapping.
type InitialState struct {
	MatchID       uuid.UUID                     `json:"matchId"`
	Deck          []models.Card                 `json:"deck"`
	Hands         map[models.Seat][]models.Card `json:"hands"`
	DiscardPile   []models.Card                 `json:"discardPile"`
	ActiveColor   models.Color                  `json:"activeColor"`
	ActiveValue   string                        `json:"activeValue"`
	CurrentPlayer models.Seat                   `json:"currentPlayer"`
	Rules         HouseRules                    `json:"rules"`
	ReshuffleSeed int64                         `json:"reshuffleSeed"`
	Seq           uint64                        `json:"seq"`
}

func (init InitialState) validate() error {
	if init.MatchID == uuid.Nil {
		return fmt.Errorf("%w: missing match id", ErrBadInitialState)
	}
	if len(init.Hands) != 2 {
		return fmt.Errorf("%w: want 2 hands, got %d", ErrBadInitialState, len(init.Hands))
	}
	for _, seat := range models.Seats {
		if _, ok := init.Hands[seat]; !ok {
			return fmt.Errorf("%w: no hand for %s", ErrBadInitialState, seat)
		}
	}
	if len(init.DiscardPile) == 0 {
		return fmt.Errorf("%w: empty discard pile", ErrBadInitialState)
	}
	if !init.ActiveColor.Valid() {
		return fmt.Errorf("%w: active color %q", ErrBadInitialState, init.ActiveColor)
	}
	if !init.CurrentPlayer.Valid() {
		return fmt.Errorf("%w: current player %q", ErrBadInitialState, init.CurrentPlayer)
	}
	if err := init.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInitialState, err)
	}
	return nil
}

// SeatView is one seat's slice of the table as the presentation layer sees it.
type SeatView struct {
	Seat      models.Seat   `json:"seat"`
	HandSize  int           `json:"handSize"`
	Hand      []models.Card `json:"hand,omitempty"` // only when visible to the viewer
	UnoCalled bool          `json:"unoCalled"`
	IsTurn    bool          `json:"isTurn"`
}

// TableView is a snapshot of the match for one viewer. Hidden hands carry only their size.
type TableView struct {
	MatchID       uuid.UUID    `json:"matchId"`
	Mode          models.Mode  `json:"mode"`
	Viewer        models.Seat  `json:"viewer"`
	Phase         Phase        `json:"phase"`
	CurrentPlayer models.Seat  `json:"currentPlayer"`
	DeckSize      int          `json:"deckSize"`
	DiscardSize   int          `json:"discardSize"`
	DiscardTop    *models.Card `json:"discardTop,omitempty"`
	ActiveColor   models.Color `json:"activeColor"`
	ActiveValue   string       `json:"activeValue"`
	Seats         []SeatView   `json:"seats"`
	PendingRace   *PendingRace `json:"pendingRace,omitempty"`
	GameOver      bool         `json:"gameOver"`
	Winner        models.Seat  `json:"winner,omitempty"`
	Abandoned     bool         `json:"abandoned"`
	Seq           uint64       `json:"seq"`
}

// View builds the table as seen from viewer. Pass-and-play reveals both hands; otherwise
// only the viewer's own hand is shown.
func (e *Engine) View(viewer models.Seat) TableView {
	s := &e.state
	v := TableView{
		MatchID:       s.ID,
		Mode:          s.Mode,
		Viewer:        viewer,
		Phase:         s.Phase,
		CurrentPlayer: s.CurrentPlayer,
		DeckSize:      len(s.Deck),
		DiscardSize:   len(s.DiscardPile),
		ActiveColor:   s.ActiveColor,
		ActiveValue:   s.ActiveValue,
		GameOver:      s.GameOver,
		Winner:        s.Winner,
		Abandoned:     s.Abandoned,
		Seq:           s.Seq,
	}
	if top, ok := s.TopDiscard(); ok {
		v.DiscardTop = &top
	}
	if s.PendingRace != nil {
		pr := *s.PendingRace
		v.PendingRace = &pr
	}
	for _, seat := range models.Seats {
		sv := SeatView{
			Seat:      seat,
			HandSize:  len(s.Hands[seat]),
			UnoCalled: s.UnoCalled[seat],
			IsTurn:    seat == s.CurrentPlayer,
		}
		if seat == viewer || s.Mode == models.ModeLocal2P {
			sv.Hand = append([]models.Card{}, s.Hands[seat]...)
		}
		v.Seats = append(v.Seats, sv)
	}
	return v
}
