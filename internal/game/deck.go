// internal/game/deck.go
package game

import (
	"math/rand"
	"strconv"

	"github.com/jason-s-yu/zerou/internal/models"
)

const (
	// DeckSize is the number of cards in the starting composition.
	DeckSize = 102
	// WildCount is how many of them are wild (wild, plus4 and race).
	WildCount = 10
)

// BuildStartingDeck returns the fixed starting composition in a deterministic order:
// per color one 0, two each of 1-9, two reverse, two plus2; then 4 wild, 4 plus4 and
// 2 race-wilds.
func BuildStartingDeck() []models.Card {
	deck := make([]models.Card, 0, DeckSize)
	for _, color := range models.PlayColors {
		deck = append(deck, models.Card{Color: color, Value: "0", Kind: models.KindNumber})
		for i := 1; i <= 9; i++ {
			v := strconv.Itoa(i)
			deck = append(deck,
				models.Card{Color: color, Value: v, Kind: models.KindNumber},
				models.Card{Color: color, Value: v, Kind: models.KindNumber},
			)
		}
		for _, v := range []string{models.ValueReverse, models.ValuePlus2} {
			deck = append(deck,
				models.Card{Color: color, Value: v, Kind: models.KindAction},
				models.Card{Color: color, Value: v, Kind: models.KindAction},
			)
		}
	}
	for i := 0; i < 4; i++ {
		deck = append(deck,
			models.Card{Color: models.ColorWild, Value: models.ValueWild, Kind: models.KindWild},
			models.Card{Color: models.ColorWild, Value: models.ValuePlus4, Kind: models.KindWild},
		)
	}
	for i := 0; i < 2; i++ {
		deck = append(deck, models.Card{Color: models.ColorWild, Value: models.ValueRace, Kind: models.KindWild})
	}
	return deck
}

// Shuffle permutes deck in place with Fisher-Yates, walking down from the top.
func Shuffle(deck []models.Card, rng *rand.Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// ReshuffleFromDiscard keeps the top discard in place and moves every other discarded
// card into the deck, then shuffles the deck. It reports false (and does nothing) when
// the discard pile holds one card or fewer.
func ReshuffleFromDiscard(deck, discard *[]models.Card, rng *rand.Rand) bool {
	if len(*discard) <= 1 {
		return false
	}
	top := (*discard)[len(*discard)-1]
	recycled := (*discard)[:len(*discard)-1]

	*deck = append(*deck, recycled...)
	*discard = []models.Card{top}
	Shuffle(*deck, rng)
	return true
}

// Draw pops the top of the deck, recycling the discard pile first if the deck is
// empty. ok is false when no card is available; that is not an error.
func Draw(deck, discard *[]models.Card, rng *rand.Rand) (card models.Card, ok bool, reshuffled bool) {
	if len(*deck) == 0 {
		reshuffled = ReshuffleFromDiscard(deck, discard, rng)
	}
	if len(*deck) == 0 {
		return models.Card{}, false, reshuffled
	}
	top := len(*deck) - 1
	card = (*deck)[top]
	*deck = (*deck)[:top]
	return card, true, reshuffled
}
