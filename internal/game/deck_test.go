// internal/game/deck_test.go
package game

import (
	"math/rand"
	"testing"

	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStartingDeckComposition(t *testing.T) {
	deck := BuildStartingDeck()
	require.Len(t, deck, DeckSize)

	counts := cardCounts(deck)
	for _, color := range models.PlayColors {
		assert.Equal(t, 1, counts[num(color, "0")], "one zero per color")
		for _, v := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"} {
			assert.Equal(t, 2, counts[num(color, v)], "%s %s", color, v)
		}
		assert.Equal(t, 2, counts[act(color, models.ValueReverse)])
		assert.Equal(t, 2, counts[act(color, models.ValuePlus2)])
	}
	assert.Equal(t, 4, counts[wild(models.ValueWild)])
	assert.Equal(t, 4, counts[wild(models.ValuePlus4)])
	assert.Equal(t, 2, counts[wild(models.ValueRace)])

	perColor := map[models.Color]int{}
	for _, c := range deck {
		perColor[c.Color]++
	}
	for _, color := range models.PlayColors {
		assert.Equal(t, 25, perColor[color])
	}
	assert.Equal(t, 10, perColor[models.ColorWild])
}

func TestShufflePreservesCards(t *testing.T) {
	deck := BuildStartingDeck()
	before := cardCounts(deck)
	Shuffle(deck, rand.New(rand.NewSource(7)))
	assert.Equal(t, before, cardCounts(deck))
	assert.NotEqual(t, BuildStartingDeck(), deck, "a full deck shuffle should move something")
}

// Every permutation of three cards should come up about equally often.
func TestShuffleUniformity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := []models.Card{num(models.ColorRed, "1"), num(models.ColorRed, "2"), num(models.ColorRed, "3")}
	const trials = 60000
	seen := map[string]int{}
	for i := 0; i < trials; i++ {
		d := append([]models.Card(nil), base...)
		Shuffle(d, rng)
		seen[d[0].Value+d[1].Value+d[2].Value]++
	}
	require.Len(t, seen, 6, "all six orders must appear")

	expected := float64(trials) / 6
	chi := 0.0
	for _, n := range seen {
		diff := float64(n) - expected
		chi += diff * diff / expected
	}
	// 5 degrees of freedom, p = 0.001
	assert.Less(t, chi, 20.52)
}

func TestReshuffleFromDiscard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	deck := []models.Card{}
	discard := []models.Card{num(models.ColorRed, "1"), num(models.ColorBlue, "2"), act(models.ColorGreen, models.ValuePlus2)}

	ok := ReshuffleFromDiscard(&deck, &discard, rng)
	require.True(t, ok)
	assert.Equal(t, []models.Card{act(models.ColorGreen, models.ValuePlus2)}, discard, "top discard stays")
	assert.ElementsMatch(t, []models.Card{num(models.ColorRed, "1"), num(models.ColorBlue, "2")}, deck)

	one := []models.Card{num(models.ColorRed, "5")}
	empty := []models.Card{}
	assert.False(t, ReshuffleFromDiscard(&empty, &one, rng))
	assert.Empty(t, empty)
	assert.Len(t, one, 1)
}

func TestDrawPopsTop(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	deck := []models.Card{num(models.ColorRed, "1"), num(models.ColorRed, "2")}
	var discard []models.Card

	c, ok, reshuffled := Draw(&deck, &discard, rng)
	require.True(t, ok)
	assert.False(t, reshuffled)
	assert.Equal(t, num(models.ColorRed, "2"), c)
	assert.Len(t, deck, 1)
}

func TestDrawRecyclesDiscardWhenDeckEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var deck []models.Card
	discard := []models.Card{num(models.ColorRed, "1"), num(models.ColorBlue, "7"), num(models.ColorYellow, "4")}

	c, ok, reshuffled := Draw(&deck, &discard, rng)
	require.True(t, ok)
	assert.True(t, reshuffled)
	assert.Contains(t, []models.Card{num(models.ColorRed, "1"), num(models.ColorBlue, "7")}, c)
	assert.Len(t, deck, 1)
	assert.Equal(t, []models.Card{num(models.ColorYellow, "4")}, discard)
}

func TestDrawNothingAvailable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var deck []models.Card
	discard := []models.Card{num(models.ColorYellow, "4")}

	_, ok, reshuffled := Draw(&deck, &discard, rng)
	assert.False(t, ok)
	assert.False(t, reshuffled)
	assert.Len(t, discard, 1)
}
