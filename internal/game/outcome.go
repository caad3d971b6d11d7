package game

import "github.com/jason-s-yu/zerou/internal/models"

// EffectKind names the effect a successful operation resolved.
type EffectKind string

const (
	EffectNone      EffectKind = ""
	EffectReverse   EffectKind = "reverse"
	EffectPlus2     EffectKind = "plus2"
	EffectPlus4     EffectKind = "plus4"
	EffectRace      EffectKind = "race"
	EffectMissedUno EffectKind = "missed_uno"
)

// Outcome describes what a successful operation did. The Facade turns it into
// notifications and, online, the sync Session forwards it to the peer.
type Outcome struct {
	Seq    uint64            `json:"seq"`
	Action models.ActionType `json:"action"`
	Actor  models.Seat       `json:"actor"`

	Card        *models.Card `json:"card,omitempty"`
	Index       int          `json:"index"`
	ChosenColor models.Color `json:"chosenColor,omitempty"`
	Effect      EffectKind   `json:"effect,omitempty"`

	// Drawn lists the cards each seat received during this operation, in draw order.
	Drawn      map[models.Seat][]models.Card `json:"drawn,omitempty"`
	NoCard     bool                          `json:"noCard,omitempty"`
	Reshuffled bool                          `json:"reshuffled,omitempty"`
	Penalized  bool                          `json:"penalized,omitempty"`

	TurnAdvanced bool        `json:"turnAdvanced"`
	NextPlayer   models.Seat `json:"nextPlayer"`

	AwaitingMinigame bool           `json:"awaitingMinigame,omitempty"`
	MinigameToken    uint64         `json:"minigameToken,omitempty"`
	MinigameTarget   models.Seat    `json:"minigameTarget,omitempty"`
	MinigameResult   MinigameResult `json:"minigameResult,omitempty"`

	GameOver  bool        `json:"gameOver,omitempty"`
	Winner    models.Seat `json:"winner,omitempty"`
	Abandoned bool        `json:"abandoned,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

func (o *Outcome) recordDraw(seat models.Seat, c models.Card) {
	if o.Drawn == nil {
		o.Drawn = make(map[models.Seat][]models.Card, 2)
	}
	o.Drawn[seat] = append(o.Drawn[seat], c)
}

// DrawnBy returns how many cards seat received during the operation.
func (o *Outcome) DrawnBy(seat models.Seat) int {
	return len(o.Drawn[seat])
}
