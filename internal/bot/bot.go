// internal/bot/bot.go
package bot

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultUnoRecall is the chance the bot remembers to call UNO at two cards.
	DefaultUnoRecall = 0.9
	// DefaultRaceWinChance is the chance the bot wins a race minigame it is targeted by.
	DefaultRaceWinChance = 0.5

	scoreNumber      = 10
	scoreAction      = 20
	scoreWild        = 5
	bonusDrawAttack  = 50
	bonusReverse     = 30
	opponentLowCards = 3
)

// Table is the slice of the rule engine the bot plays through. *game.Engine satisfies it.
type Table interface {
	LegalMoves(seat models.Seat) []int
	Hand(seat models.Seat) []models.Card
	HandSize(seat models.Seat) int
	UnoCalled(seat models.Seat) bool
	IsPlayable(c models.Card) bool
	PlayCard(seat models.Seat, index int, chosen models.Color) (*game.Outcome, error)
	DrawCard(seat models.Seat) (*game.Outcome, error)
	CallUno(seat models.Seat) (*game.Outcome, error)
}

// Agent plays one seat with a fixed greedy policy.
type Agent struct {
	Seat          models.Seat
	UnoRecall     float64
	RaceWinChance float64

	rng    *rand.Rand
	logger *logrus.Entry
}

// NewAgent builds a bot for seat. A nil rng is seeded from the clock.
func NewAgent(seat models.Seat, rng *rand.Rand, logger *logrus.Entry) *Agent {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Agent{
		Seat:          seat,
		UnoRecall:     DefaultUnoRecall,
		RaceWinChance: DefaultRaceWinChance,
		rng:           rng,
		logger:        logger.WithFields(logrus.Fields{"seat": seat, "bot": true}),
	}
}

// Score rates card for the bot. Draw attacks and reverse are worth more when the
// opponent is close to going out.
func Score(card models.Card, opponentHand int) int {
	var s int
	switch card.Kind {
	case models.KindNumber:
		s = scoreNumber
	case models.KindAction:
		s = scoreAction
	case models.KindWild:
		s = scoreWild
	}
	if opponentHand <= opponentLowCards {
		switch card.Value {
		case models.ValuePlus2, models.ValuePlus4:
			s += bonusDrawAttack
		case models.ValueReverse:
			s += bonusReverse
		}
	}
	return s
}

// ChooseCard returns the index in hand of the best legal move, or -1 if legal is empty.
// Ties go to the lowest index.
func ChooseCard(hand []models.Card, legal []int, opponentHand int) int {
	best, bestScore := -1, -1
	for _, idx := range legal {
		if s := Score(hand[idx], opponentHand); s > bestScore {
			best, bestScore = idx, s
		}
	}
	return best
}

// ChooseColor picks the most common suit color in hand. Colors are compared in the order
// red, green, blue, yellow and a later color wins a tie, so an all-wild hand picks yellow.
func ChooseColor(hand []models.Card) models.Color {
	counts := make(map[models.Color]int, len(models.PlayColors))
	for _, c := range hand {
		if !c.IsWild() {
			counts[c.Color]++
		}
	}
	best := models.PlayColors[0]
	for _, c := range models.PlayColors[1:] {
		if !(counts[best] > counts[c]) {
			best = c
		}
	}
	return best
}

// TakeTurn plays the bot's whole turn on t and returns every outcome it produced, in order.
func (a *Agent) TakeTurn(t Table) ([]*game.Outcome, error) {
	var outs []*game.Outcome

	if t.HandSize(a.Seat) == 2 && !t.UnoCalled(a.Seat) && a.rng.Float64() < a.UnoRecall {
		out, err := t.CallUno(a.Seat)
		if err != nil {
			return outs, fmt.Errorf("bot uno: %w", err)
		}
		outs = append(outs, out)
	}

	hand := t.Hand(a.Seat)
	idx := ChooseCard(hand, t.LegalMoves(a.Seat), t.HandSize(a.Seat.Opponent()))
	if idx < 0 {
		drawn, err := t.DrawCard(a.Seat)
		if err != nil {
			return outs, fmt.Errorf("bot draw: %w", err)
		}
		outs = append(outs, drawn)
		if drawn.Card == nil || drawn.TurnAdvanced {
			a.logger.Debug("drew and passed")
			return outs, nil
		}
		hand = t.Hand(a.Seat)
		idx = len(hand) - 1
	}

	out, err := a.play(t, hand, idx)
	if err != nil {
		return outs, err
	}
	return append(outs, out), nil
}

func (a *Agent) play(t Table, hand []models.Card, idx int) (*game.Outcome, error) {
	card := hand[idx]
	var color models.Color
	if card.TakesColorChoice() {
		rest := append(append([]models.Card{}, hand[:idx]...), hand[idx+1:]...)
		color = ChooseColor(rest)
	}
	a.logger.WithFields(logrus.Fields{"card": card.String(), "index": idx, "color": color}).Debug("bot plays")
	out, err := t.PlayCard(a.Seat, idx, color)
	if err != nil {
		return nil, fmt.Errorf("bot play %s: %w", card, err)
	}
	return out, nil
}

// RunMinigame plays the race minigame for the bot and reports the result.
func (a *Agent) RunMinigame() game.MinigameResult {
	if a.rng.Float64() < a.RaceWinChance {
		return game.MinigameWin
	}
	return game.MinigameLose
}
