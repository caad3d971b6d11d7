// internal/game/state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/models"
)

// Phase is the match-level state machine: NotStarted -> InProgress <-> AwaitingMinigame -> Over.
type Phase string

const (
	PhaseNotStarted       Phase = "not_started"
	PhaseInProgress       Phase = "in_progress"
	PhaseAwaitingMinigame Phase = "awaiting_minigame"
	PhaseOver             Phase = "over"
)

// MinigameResult is reported by the race minigame for its target seat.
type MinigameResult string

const (
	MinigameWin  MinigameResult = "win"
	MinigameLose MinigameResult = "lose"
)

// Valid reports whether r is win or lose.
func (r MinigameResult) Valid() bool {
	return r == MinigameWin || r == MinigameLose
}

// PendingRace is the continuation of a suspended race-wild effect.
type PendingRace struct {
	Token    uint64      `json:"token"`
	Launcher models.Seat `json:"launcher"`
	Target   models.Seat `json:"target"`
}

// MatchState is the authoritative aggregate for one match. Only the Engine mutates it.
type MatchState struct {
	ID            uuid.UUID                     `json:"id"`
	Mode          models.Mode                   `json:"mode"`
	Deck          []models.Card                 `json:"deck"`
	DiscardPile   []models.Card                 `json:"discardPile"`
	Hands         map[models.Seat][]models.Card `json:"hands"`
	ActiveColor   models.Color                  `json:"activeColor"`
	ActiveValue   string                        `json:"activeValue"`
	CurrentPlayer models.Seat                   `json:"currentPlayer"`
	Phase         Phase                         `json:"phase"`
	GameOver      bool                          `json:"gameOver"`
	Winner        models.Seat                   `json:"winner,omitempty"`
	Abandoned     bool                          `json:"abandoned"`
	UnoCalled     map[models.Seat]bool          `json:"unoCalled"`
	PendingRace   *PendingRace                  `json:"pendingRace,omitempty"`

	// Seq counts successful operations. Peers compare it to spot missing messages.
	Seq uint64 `json:"seq"`

	// ReshuffleSeed seeds the RNG used when the discard pile is recycled, so both peers
	// recycle into the same order.
	ReshuffleSeed int64 `json:"reshuffleSeed"`
}

func newMatchState(mode models.Mode) MatchState {
	id, _ := uuid.NewRandom()
	return MatchState{
		ID:    id,
		Mode:  mode,
		Phase: PhaseNotStarted,
		Hands: map[models.Seat][]models.Card{
			models.SeatHost:   {},
			models.SeatClient: {},
		},
		UnoCalled: map[models.Seat]bool{
			models.SeatHost:   false,
			models.SeatClient: false,
		},
	}
}

// TopDiscard returns the active card on the discard pile.
func (s *MatchState) TopDiscard() (models.Card, bool) {
	if len(s.DiscardPile) == 0 {
		return models.Card{}, false
	}
	return s.DiscardPile[len(s.DiscardPile)-1], true
}

// clone returns a deep copy safe to hand to collaborators.
func (s *MatchState) clone() MatchState {
	out := *s
	out.Deck = append([]models.Card(nil), s.Deck...)
	out.DiscardPile = append([]models.Card(nil), s.DiscardPile...)
	out.Hands = make(map[models.Seat][]models.Card, len(s.Hands))
	for seat, hand := range s.Hands {
		out.Hands[seat] = append([]models.Card{}, hand...)
	}
	out.UnoCalled = make(map[models.Seat]bool, len(s.UnoCalled))
	for seat, called := range s.UnoCalled {
		out.UnoCalled[seat] = called
	}
	if s.PendingRace != nil {
		pr := *s.PendingRace
		out.PendingRace = &pr
	}
	return out
}

// cardCounts builds the multiset of the given piles.
func cardCounts(piles ...[]models.Card) map[models.Card]int {
	counts := make(map[models.Card]int, 32)
	for _, pile := range piles {
		for _, c := range pile {
			counts[c]++
		}
	}
	return counts
}

// conserved reports whether deck, discard and both hands hold exactly the starting composition.
func (s MatchState) conserved() bool {
	want := cardCounts(BuildStartingDeck())
	got := cardCounts(s.Deck, s.DiscardPile, s.Hands[models.SeatHost], s.Hands[models.SeatClient])
	if len(want) != len(got) {
		return false
	}
	for c, n := range want {
		if got[c] != n {
			return false
		}
	}
	return true
}
