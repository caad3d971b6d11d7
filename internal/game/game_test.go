// internal/game/game_test.go
package game

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeoutShort = time.Second
	tick         = 10 * time.Millisecond
)

func num(c models.Color, v string) models.Card {
	return models.Card{Color: c, Value: v, Kind: models.KindNumber}
}

func act(c models.Color, v string) models.Card {
	return models.Card{Color: c, Value: v, Kind: models.KindAction}
}

func wild(v string) models.Card {
	return models.Card{Color: models.ColorWild, Value: v, Kind: models.KindWild}
}

// recordingPublisher collects historian records instead of pushing them to Redis.
type recordingPublisher struct {
	mu      sync.Mutex
	records []cache.MatchActionRecord
}

func (rp *recordingPublisher) publish(_ context.Context, rec cache.MatchActionRecord) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.records = append(rp.records, rec)
	return nil
}

func (rp *recordingPublisher) count() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.records)
}

// setupTestGame returns a started engine with a fixed seed.
func setupTestGame(t *testing.T, mode models.Mode, local models.Seat, rules *HouseRules) *Engine {
	cfg := Config{Mode: mode, LocalSeat: local, Rand: rand.New(rand.NewSource(99))}
	if rules != nil {
		cfg.Rules = *rules
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	return e
}

// rigTable replaces the dealt cards with the given hands and top discard. The rest of the
// starting deck becomes the draw pile with deckTop drawn first, so conservation still holds.
func rigTable(t *testing.T, e *Engine, host, client []models.Card, top models.Card, deckTop ...models.Card) {
	t.Helper()
	pool := BuildStartingDeck()
	take := func(c models.Card) {
		for i, p := range pool {
			if p == c {
				pool = removeCard(pool, i)
				return
			}
		}
		t.Fatalf("card %v is not left in the starting deck", c)
	}
	for _, c := range host {
		take(c)
	}
	for _, c := range client {
		take(c)
	}
	take(top)
	for _, c := range deckTop {
		take(c)
	}
	for i := len(deckTop) - 1; i >= 0; i-- {
		pool = append(pool, deckTop[i])
	}

	e.state.Deck = pool
	e.state.DiscardPile = []models.Card{top}
	e.state.Hands[models.SeatHost] = append([]models.Card{}, host...)
	e.state.Hands[models.SeatClient] = append([]models.Card{}, client...)
	e.state.ActiveColor = top.Color
	e.state.ActiveValue = top.Value
	e.state.CurrentPlayer = models.SeatHost
	e.state.Phase = PhaseInProgress
	e.state.PendingRace = nil
	e.state.UnoCalled[models.SeatHost] = false
	e.state.UnoCalled[models.SeatClient] = false
	e.reshuffleRand = rand.New(rand.NewSource(5))
	require.True(t, e.state.conserved())
}

func TestStartDealsConservedTable(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		e, err := NewEngine(Config{Mode: models.ModeLocal2P, Rand: rand.New(rand.NewSource(seed))})
		require.NoError(t, err)
		require.NoError(t, e.Start())

		s := e.State()
		assert.Len(t, s.Hands[models.SeatHost], 7)
		assert.Len(t, s.Hands[models.SeatClient], 7)
		require.Len(t, s.DiscardPile, 1)
		assert.False(t, s.DiscardPile[0].IsWild(), "starter must not be wild (seed %d)", seed)
		assert.Equal(t, s.DiscardPile[0].Color, s.ActiveColor)
		assert.Equal(t, s.DiscardPile[0].Value, s.ActiveValue)
		assert.Len(t, s.Deck, DeckSize-15)
		assert.Equal(t, models.SeatHost, s.CurrentPlayer)
		assert.Equal(t, PhaseInProgress, s.Phase)
		assert.True(t, s.conserved())
	}
}

func TestStartLargestHands(t *testing.T) {
	rules := DefaultHouseRules()
	rules.HandSize = MaxHandSize
	for seed := int64(0); seed < 100; seed++ {
		e, err := NewEngine(Config{Mode: models.ModeLocal2P, Rules: rules, Rand: rand.New(rand.NewSource(seed))})
		require.NoError(t, err)
		require.NoError(t, e.Start(), "seed %d", seed)

		s := e.State()
		assert.Len(t, s.Hands[models.SeatHost], MaxHandSize)
		assert.Len(t, s.Deck, DeckSize-2*MaxHandSize-1)
		assert.False(t, s.DiscardPile[0].IsWild())
		assert.NotEmpty(t, s.ActiveColor)
		assert.True(t, s.conserved(), "seed %d", seed)
	}
}

func TestStartRefusesOversizedDeal(t *testing.T) {
	for _, size := range []int{50, 53} {
		e, err := NewEngine(Config{Mode: models.ModeLocal2P, Rand: rand.New(rand.NewSource(81))})
		require.NoError(t, err)
		e.rules.HandSize = size

		done := make(chan error, 1)
		go func() { done <- e.Start() }()
		select {
		case err := <-done:
			assert.Error(t, err, "handSize %d", size)
		case <-time.After(timeoutShort):
			t.Fatalf("Start did not return for handSize %d", size)
		}
		assert.Equal(t, PhaseNotStarted, e.Phase())
		assert.Empty(t, e.state.Hands[models.SeatHost])
	}
}

func TestStartTwiceFails(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	assert.Error(t, e.Start())
}

func TestIsPlayableOverFullDomain(t *testing.T) {
	values := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", models.ValueReverse, models.ValuePlus2}
	activeValues := append(append([]string{}, values...), models.ValueWild, models.ValuePlus4, models.ValueRace)

	for _, ac := range models.PlayColors {
		for _, av := range activeValues {
			for _, cc := range models.PlayColors {
				for _, cv := range values {
					c := models.Card{Color: cc, Value: cv}
					assert.Equal(t, cc == ac || cv == av, IsPlayable(c, ac, av), "%v on %s %s", c, ac, av)
				}
			}
			for _, wv := range []string{models.ValueWild, models.ValuePlus4, models.ValueRace} {
				assert.True(t, IsPlayable(wild(wv), ac, av))
			}
		}
	}
}

func TestPlayNumberPassesTurn(t *testing.T) {
	pub := &recordingPublisher{}
	e, err := NewEngine(Config{Mode: models.ModeLocal2P, Rand: rand.New(rand.NewSource(1)), Publish: pub.publish})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	rigTable(t, e,
		[]models.Card{num(models.ColorRed, "5"), num(models.ColorBlue, "9")},
		[]models.Card{num(models.ColorGreen, "1")},
		num(models.ColorRed, "3"))

	assert.Equal(t, []int{0}, e.LegalMoves(models.SeatHost))
	seqBefore := e.Seq()

	out, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.Equal(t, seqBefore+1, out.Seq)
	assert.Equal(t, num(models.ColorRed, "5"), *out.Card)
	assert.True(t, out.TurnAdvanced)
	assert.Equal(t, models.SeatClient, out.NextPlayer)
	assert.Equal(t, models.SeatClient, e.CurrentPlayer())
	assert.Equal(t, models.ColorRed, e.State().ActiveColor)
	assert.Equal(t, "5", e.State().ActiveValue)
	assert.Equal(t, []models.Card{num(models.ColorBlue, "9")}, e.Hand(models.SeatHost))
	assert.True(t, e.State().conserved())
	assert.Eventually(t, func() bool { return pub.count() >= 2 }, timeoutShort, tick, "start and play are published")
}

// Every effect keeps or moves the turn exactly as the rules say; nobody is skipped twice.
func TestEffectsNeverSkip(t *testing.T) {
	cases := []struct {
		name       string
		card       models.Card
		color      models.Color
		next       models.Seat
		clientGets int
		effect     EffectKind
	}{
		{"number", num(models.ColorRed, "7"), "", models.SeatClient, 0, EffectNone},
		{"reverse", act(models.ColorRed, models.ValueReverse), "", models.SeatHost, 0, EffectReverse},
		{"plus2", act(models.ColorRed, models.ValuePlus2), "", models.SeatHost, 2, EffectPlus2},
		{"wild", wild(models.ValueWild), models.ColorBlue, models.SeatClient, 0, EffectNone},
		{"plus4", wild(models.ValuePlus4), models.ColorGreen, models.SeatHost, 4, EffectPlus4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := setupTestGame(t, models.ModeLocal2P, "", nil)
			rigTable(t, e,
				[]models.Card{tc.card, num(models.ColorYellow, "1")},
				[]models.Card{num(models.ColorYellow, "2")},
				num(models.ColorRed, "3"))

			out, err := e.PlayCard(models.SeatHost, 0, tc.color)
			require.NoError(t, err)
			assert.Equal(t, tc.next, e.CurrentPlayer())
			assert.Equal(t, tc.next, out.NextPlayer)
			assert.Equal(t, tc.effect, out.Effect)
			assert.Equal(t, tc.clientGets, out.DrawnBy(models.SeatClient))
			assert.Equal(t, 1+tc.clientGets, e.HandSize(models.SeatClient))
			assert.True(t, e.State().conserved())
		})
	}
}

func TestWildNeedsChosenColor(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{wild(models.ValueWild), num(models.ColorYellow, "1")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"))
	before := e.State()

	for _, bad := range []models.Color{"", models.ColorWild, "purple"} {
		_, err := e.PlayCard(models.SeatHost, 0, bad)
		assert.ErrorIs(t, err, ErrInvalidColor)
	}
	assert.Equal(t, before, e.State(), "rejected plays change nothing")

	out, err := e.PlayCard(models.SeatHost, 0, models.ColorBlue)
	require.NoError(t, err)
	assert.Equal(t, models.ColorBlue, out.ChosenColor)
	assert.Equal(t, models.ColorBlue, e.State().ActiveColor)
	assert.Equal(t, models.ValueWild, e.State().ActiveValue)
	assert.True(t, e.IsPlayable(num(models.ColorBlue, "8")))
	assert.False(t, e.IsPlayable(num(models.ColorRed, "3")))
}

func TestPlus4Chain(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{wild(models.ValuePlus4), wild(models.ValuePlus4), num(models.ColorRed, "9")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorGreen, "3"))

	_, err := e.PlayCard(models.SeatHost, 0, models.ColorRed)
	require.NoError(t, err)
	assert.Equal(t, models.SeatHost, e.CurrentPlayer())
	_, err = e.PlayCard(models.SeatHost, 0, models.ColorRed)
	require.NoError(t, err)
	assert.Equal(t, models.SeatHost, e.CurrentPlayer())
	assert.Equal(t, 9, e.HandSize(models.SeatClient))

	out, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.True(t, out.GameOver)
	assert.Equal(t, models.SeatHost, out.Winner)
}

func TestWinSkipsEffects(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{act(models.ColorRed, models.ValuePlus2)},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"))

	out, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.True(t, out.GameOver)
	assert.Equal(t, models.SeatHost, out.Winner)
	assert.Equal(t, EffectNone, out.Effect)
	assert.Equal(t, 1, e.HandSize(models.SeatClient), "plus2 is not applied once the hand is empty")
	assert.True(t, e.CheckWin(models.SeatHost))
	assert.False(t, e.CheckWin(models.SeatClient))
	assert.Equal(t, PhaseOver, e.Phase())

	_, err = e.DrawCard(models.SeatClient)
	assert.ErrorIs(t, err, ErrMatchOver)
	_, err = e.CallUno(models.SeatClient)
	assert.ErrorIs(t, err, ErrMatchOver)
	_, err = e.Abandon("late")
	assert.ErrorIs(t, err, ErrMatchOver)
}

func TestRejectedOperationsChangeNothing(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorBlue, "5"), num(models.ColorRed, "1")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"))
	before := e.State()

	_, err := e.PlayCard(models.SeatClient, 0, "")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = e.DrawCard(models.SeatClient)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = e.PlayCard(models.SeatHost, 5, "")
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, err = e.PlayCard(models.SeatHost, -1, "")
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, err = e.PlayCard(models.SeatHost, 0, "")
	assert.ErrorIs(t, err, ErrUnplayable)
	_, err = e.PlayCard("spectator", 0, "")
	assert.ErrorIs(t, err, ErrInvalidSeat)

	assert.Equal(t, before, e.State())
}

func TestNotStarted(t *testing.T) {
	e, err := NewEngine(Config{Mode: models.ModeLocal2P})
	require.NoError(t, err)
	_, err = e.PlayCard(models.SeatHost, 0, "")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = e.DrawCard(models.SeatHost)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.False(t, e.CheckWin(models.SeatHost))
}

func TestDrawKeepsTurnWhenPlayable(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorBlue, "5")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"),
		num(models.ColorRed, "8"), num(models.ColorGreen, "1"))

	out, err := e.DrawCard(models.SeatHost)
	require.NoError(t, err)
	assert.Equal(t, num(models.ColorRed, "8"), *out.Card)
	assert.False(t, out.TurnAdvanced)
	assert.Equal(t, models.SeatHost, e.CurrentPlayer())
	assert.Equal(t, 2, e.HandSize(models.SeatHost))

	// a second draw in the same turn is allowed; green 1 is not playable so the turn passes
	out, err = e.DrawCard(models.SeatHost)
	require.NoError(t, err)
	assert.Equal(t, num(models.ColorGreen, "1"), *out.Card)
	assert.True(t, out.TurnAdvanced)
	assert.Equal(t, models.SeatClient, e.CurrentPlayer())
}

func TestDrawWithNothingLeftPassesTurn(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorBlue, "5")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"))
	// park everything else in the client's hand so deck and discard are dry
	e.state.Hands[models.SeatClient] = append(e.state.Hands[models.SeatClient], e.state.Deck...)
	e.state.Deck = nil
	require.True(t, e.state.conserved())

	out, err := e.DrawCard(models.SeatHost)
	require.NoError(t, err)
	assert.True(t, out.NoCard)
	assert.Nil(t, out.Card)
	assert.True(t, out.TurnAdvanced)
	assert.Equal(t, models.SeatClient, e.CurrentPlayer())
	assert.Equal(t, 1, e.HandSize(models.SeatHost))
}

func TestEmptyDeckRecovery(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorBlue, "5")},
		[]models.Card{num(models.ColorYellow, "2")},
		num(models.ColorRed, "3"))
	// move the draw pile under the top discard
	top := e.state.DiscardPile[0]
	e.state.DiscardPile = append(e.state.Deck, top)
	e.state.Deck = nil
	require.True(t, e.state.conserved())
	discardBefore := len(e.state.DiscardPile)

	out, err := e.DrawCard(models.SeatHost)
	require.NoError(t, err)
	assert.True(t, out.Reshuffled)
	assert.NotNil(t, out.Card)
	s := e.State()
	assert.Equal(t, []models.Card{top}, s.DiscardPile, "top discard survives the reshuffle")
	assert.Len(t, s.Deck, discardBefore-2)
	assert.True(t, s.conserved())
}

func TestRaceSuspendsUntilResolved(t *testing.T) {
	for _, tc := range []struct {
		result     MinigameResult
		hostHand   int
		clientHand int
	}{
		{MinigameLose, 1, 2},
		{MinigameWin, 3, 1},
	} {
		t.Run(string(tc.result), func(t *testing.T) {
			e := setupTestGame(t, models.ModeLocal2P, "", nil)
			rigTable(t, e,
				[]models.Card{wild(models.ValueRace), num(models.ColorYellow, "1")},
				[]models.Card{num(models.ColorYellow, "2")},
				num(models.ColorRed, "3"))

			out, err := e.PlayCard(models.SeatHost, 0, models.ColorBlue)
			require.NoError(t, err)
			assert.Equal(t, EffectRace, out.Effect)
			assert.True(t, out.AwaitingMinigame)
			assert.Equal(t, models.SeatClient, out.MinigameTarget)
			assert.Empty(t, out.ChosenColor, "race keeps the active color")
			assert.Equal(t, models.ColorRed, e.State().ActiveColor)
			assert.Equal(t, PhaseAwaitingMinigame, e.Phase())

			_, err = e.PlayCard(models.SeatHost, 0, "")
			assert.ErrorIs(t, err, ErrAwaitingMinigame)
			_, err = e.DrawCard(models.SeatHost)
			assert.ErrorIs(t, err, ErrAwaitingMinigame)
			_, err = e.ResolveMinigame(out.MinigameToken+1, tc.result)
			assert.ErrorIs(t, err, ErrStaleToken)
			_, err = e.ResolveMinigame(out.MinigameToken, "draw")
			assert.ErrorIs(t, err, ErrInvalidResult)

			res, err := e.ResolveMinigame(out.MinigameToken, tc.result)
			require.NoError(t, err)
			assert.Equal(t, tc.result, res.MinigameResult)
			assert.Equal(t, PhaseInProgress, e.Phase())
			assert.Equal(t, models.SeatClient, e.CurrentPlayer())
			assert.Equal(t, tc.hostHand, e.HandSize(models.SeatHost))
			assert.Equal(t, tc.clientHand, e.HandSize(models.SeatClient))

			_, err = e.ResolveMinigame(out.MinigameToken, tc.result)
			assert.ErrorIs(t, err, ErrNoMinigame)
		})
	}
}

func TestMissedUnoPenalty(t *testing.T) {
	rules := DefaultHouseRules()
	rules.MissedUnoPenalty = 2

	e := setupTestGame(t, models.ModeLocal2P, "", &rules)
	rigTable(t, e,
		[]models.Card{num(models.ColorRed, "5"), num(models.ColorBlue, "9")},
		[]models.Card{num(models.ColorGreen, "1")},
		num(models.ColorRed, "3"))
	out, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.True(t, out.Penalized)
	assert.Equal(t, 2, out.DrawnBy(models.SeatHost))
	assert.Equal(t, 3, e.HandSize(models.SeatHost))

	e = setupTestGame(t, models.ModeLocal2P, "", &rules)
	rigTable(t, e,
		[]models.Card{num(models.ColorRed, "5"), num(models.ColorBlue, "9")},
		[]models.Card{num(models.ColorGreen, "1")},
		num(models.ColorRed, "3"))
	_, err = e.CallUno(models.SeatHost)
	require.NoError(t, err)
	assert.True(t, e.UnoCalled(models.SeatHost))
	out, err = e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.False(t, out.Penalized)
	assert.Equal(t, 1, e.HandSize(models.SeatHost))
	assert.False(t, e.UnoCalled(models.SeatHost), "flag clears after the play")
}

func TestDefaultRulesDoNotPenalizeMissedUno(t *testing.T) {
	e := setupTestGame(t, models.ModeLocal2P, "", nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorRed, "5"), num(models.ColorBlue, "9")},
		[]models.Card{num(models.ColorGreen, "1")},
		num(models.ColorRed, "3"))
	out, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	assert.False(t, out.Penalized)
	assert.Equal(t, 1, e.HandSize(models.SeatHost))
}

func TestOnlineSeatOrigin(t *testing.T) {
	e := setupTestGame(t, models.ModeOnline, models.SeatHost, nil)
	rigTable(t, e,
		[]models.Card{num(models.ColorRed, "5"), wild(models.ValueRace), num(models.ColorYellow, "1")},
		[]models.Card{num(models.ColorRed, "1"), num(models.ColorGreen, "2")},
		num(models.ColorRed, "3"))

	_, err := e.ApplyRemotePlay(models.SeatHost, 0, "")
	assert.ErrorIs(t, err, ErrNotRemoteSeat)

	_, err = e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	require.Equal(t, models.SeatClient, e.CurrentPlayer())

	_, err = e.PlayCard(models.SeatClient, 0, "")
	assert.ErrorIs(t, err, ErrNotLocalSeat)
	_, err = e.CallUno(models.SeatClient)
	assert.ErrorIs(t, err, ErrNotLocalSeat)

	out, err := e.ApplyRemotePlay(models.SeatClient, 0, "")
	require.NoError(t, err)
	assert.Equal(t, models.SeatHost, out.NextPlayer)
	_, err = e.ApplyRemoteUno(models.SeatClient)
	require.NoError(t, err)
	assert.True(t, e.UnoCalled(models.SeatClient))

	// the client is the race target, so only the client's side may resolve it
	race, err := e.PlayCard(models.SeatHost, 0, "")
	require.NoError(t, err)
	_, err = e.ResolveMinigame(race.MinigameToken, MinigameLose)
	assert.ErrorIs(t, err, ErrNotLocalSeat)
	_, err = e.ApplyRemoteMinigame(models.SeatHost, race.MinigameToken, MinigameLose)
	assert.ErrorIs(t, err, ErrInvalidSeat)
	res, err := e.ApplyRemoteMinigame(models.SeatClient, race.MinigameToken, MinigameLose)
	require.NoError(t, err)
	assert.Equal(t, models.SeatClient, res.NextPlayer)
}

func TestOfflineRejectsRemoteReplay(t *testing.T) {
	e := setupTestGame(t, models.ModeBot, "", nil)
	_, err := e.ApplyRemoteDraw(models.SeatHost)
	assert.ErrorIs(t, err, ErrNotRemoteSeat)
	assert.Equal(t, models.SeatHost, e.LocalSeat())
	assert.True(t, e.Controls(models.SeatClient))
}

func TestLoadInitialMirrorsHost(t *testing.T) {
	host := setupTestGame(t, models.ModeOnline, models.SeatHost, nil)
	client, err := NewEngine(Config{Mode: models.ModeOnline, LocalSeat: models.SeatClient})
	require.NoError(t, err)
	require.NoError(t, client.LoadInitial(host.InitialState()))

	assert.Equal(t, host.State(), client.State())
	assert.Equal(t, host.Rules(), client.Rules())

	// drive both engines through the same operations and compare after each one
	for i := 0; i < 40 && host.Phase() == PhaseInProgress; i++ {
		seat := host.CurrentPlayer()
		leader, follower := host, client
		if seat == models.SeatClient {
			leader, follower = client, host
		}
		moves := leader.LegalMoves(seat)
		if len(moves) == 0 {
			_, err = leader.DrawCard(seat)
			require.NoError(t, err)
			_, err = follower.ApplyRemoteDraw(seat)
			require.NoError(t, err)
		} else {
			_, err = leader.PlayCard(seat, moves[0], models.ColorGreen)
			require.NoError(t, err)
			_, err = follower.ApplyRemotePlay(seat, moves[0], models.ColorGreen)
			require.NoError(t, err)
		}
		if pr, ok := host.PendingRace(); ok {
			target := client
			if pr.Target == models.SeatHost {
				target = host
			}
			other := host
			if target == host {
				other = client
			}
			_, err = target.ResolveMinigame(pr.Token, MinigameWin)
			require.NoError(t, err)
			_, err = other.ApplyRemoteMinigame(pr.Target, pr.Token, MinigameWin)
			require.NoError(t, err)
		}
		require.Equal(t, host.State(), client.State(), "diverged after op %d", i)
	}
}

func TestLoadInitialRejectsMalformed(t *testing.T) {
	host := setupTestGame(t, models.ModeOnline, models.SeatHost, nil)

	missingHand := host.InitialState()
	delete(missingHand.Hands, models.SeatClient)

	missingCard := host.InitialState()
	missingCard.Deck = missingCard.Deck[1:]

	badColor := host.InitialState()
	badColor.ActiveColor = models.ColorWild

	for name, init := range map[string]InitialState{
		"missing hand": missingHand,
		"missing card": missingCard,
		"bad color":    badColor,
	} {
		client, err := NewEngine(Config{Mode: models.ModeOnline, LocalSeat: models.SeatClient})
		require.NoError(t, err)
		err = client.LoadInitial(init)
		assert.ErrorIs(t, err, ErrBadInitialState, name)
		assert.Equal(t, PhaseNotStarted, client.Phase(), name)
	}
}

func TestAbandon(t *testing.T) {
	e := setupTestGame(t, models.ModeOnline, models.SeatHost, nil)
	seq := e.Seq()
	out, err := e.Abandon("peer left")
	require.NoError(t, err)
	assert.True(t, out.Abandoned)
	assert.Equal(t, "peer left", out.Reason)
	s := e.State()
	assert.Equal(t, PhaseOver, s.Phase)
	assert.True(t, s.Abandoned)
	assert.Empty(t, s.Winner)
	assert.Equal(t, seq, s.Seq)
}

func TestViewHidesOpponentHand(t *testing.T) {
	e := setupTestGame(t, models.ModeOnline, models.SeatHost, nil)
	v := e.View(models.SeatHost)
	require.Len(t, v.Seats, 2)
	assert.Len(t, v.Seats[0].Hand, 7)
	assert.Nil(t, v.Seats[1].Hand)
	assert.Equal(t, 7, v.Seats[1].HandSize)
	assert.True(t, v.Seats[0].IsTurn)
	require.NotNil(t, v.DiscardTop)

	local := setupTestGame(t, models.ModeLocal2P, "", nil)
	lv := local.View(models.SeatHost)
	assert.Len(t, lv.Seats[1].Hand, 7, "pass-and-play shows both hands")
}
