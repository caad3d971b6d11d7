// internal/game/engine.go
package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/sirupsen/logrus"
)

// PublishFn ships an action record to the historian queue.
type PublishFn func(ctx context.Context, rec cache.MatchActionRecord) error

// Config configures a new Engine.
type Config struct {
	Mode models.Mode
	// LocalSeat is the seat this device controls in online mode. Offline modes control both.
	LocalSeat models.Seat
	Rules     HouseRules
	// Rand drives the opening shuffle. A time-seeded source is used when nil.
	Rand   *rand.Rand
	Logger *logrus.Entry
	// Publish overrides where action records go. The default pushes to Redis when connected.
	Publish PublishFn
}

// Engine owns one MatchState and is the only thing that mutates it. Every operation
// either applies fully and returns an Outcome, or returns an error and changes nothing.
// An Engine is not safe for concurrent use; the Facade serializes access.
type Engine struct {
	state     MatchState
	rules     HouseRules
	localSeat models.Seat

	dealRand      *rand.Rand
	reshuffleRand *rand.Rand

	logger  *logrus.Entry
	publish PublishFn
}

// NewEngine validates cfg and returns an Engine in the not_started phase.
func NewEngine(cfg Config) (*Engine, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if cfg.Mode == models.ModeOnline && !cfg.LocalSeat.Valid() {
		return nil, fmt.Errorf("online mode needs a local seat: %w", ErrInvalidSeat)
	}
	if cfg.Mode == models.ModeBot {
		// the human always holds the host seat against the bot
		cfg.LocalSeat = models.SeatHost
	}
	rules := cfg.Rules
	if rules == (HouseRules{}) {
		rules = DefaultHouseRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		state:     newMatchState(cfg.Mode),
		rules:     rules,
		localSeat: cfg.LocalSeat,
		dealRand:  rng,
		publish:   cfg.Publish,
	}
	e.logger = logger.WithFields(logrus.Fields{"match": e.state.ID, "mode": cfg.Mode})
	return e, nil
}

// Start builds, shuffles and deals a fresh match, then flips a non-wild starter.
// The host seat always moves first.
func (e *Engine) Start() error {
	if e.state.Phase != PhaseNotStarted {
		return fmt.Errorf("start: match already in phase %s", e.state.Phase)
	}
	deck := BuildStartingDeck()
	Shuffle(deck, e.dealRand)
	var discard []models.Card

	hands := make(map[models.Seat][]models.Card, len(models.Seats))
	for i := 0; i < e.rules.HandSize; i++ {
		for _, seat := range models.Seats {
			c, ok, _ := Draw(&deck, &discard, e.dealRand)
			if !ok {
				return fmt.Errorf("start: deck ran out dealing %d cards per hand", e.rules.HandSize)
			}
			hands[seat] = append(hands[seat], c)
		}
	}
	if !hasNonWild(deck) {
		return fmt.Errorf("start: no non-wild starter left after dealing %d cards per hand", e.rules.HandSize)
	}

	// a wild starter goes back into the deck and the deck is reshuffled
	starter, _, _ := Draw(&deck, &discard, e.dealRand)
	for starter.IsWild() {
		deck = append(deck, starter)
		Shuffle(deck, e.dealRand)
		starter, _, _ = Draw(&deck, &discard, e.dealRand)
	}

	for seat, hand := range hands {
		e.state.Hands[seat] = hand
	}

	e.state.Deck = deck
	e.state.DiscardPile = []models.Card{starter}
	e.state.ActiveColor = starter.Color
	e.state.ActiveValue = starter.Value
	e.state.CurrentPlayer = models.SeatHost
	e.state.ReshuffleSeed = e.dealRand.Int63()
	e.reshuffleRand = rand.New(rand.NewSource(e.state.ReshuffleSeed))
	e.state.Phase = PhaseInProgress

	e.logger.WithFields(logrus.Fields{"starter": starter.String(), "deck": len(deck)}).Info("match started")
	e.logAction(models.SeatHost, models.ActionStart, map[string]interface{}{
		"starter": starter,
		"rules":   e.rules,
	})
	return nil
}

func hasNonWild(cards []models.Card) bool {
	for _, c := range cards {
		if !c.IsWild() {
			return true
		}
	}
	return false
}

// InitialState exports the dealt match for INIT_GAME. It is only meaningful right after Start.
func (e *Engine) InitialState() InitialState {
	s := e.state.clone()
	return InitialState{
		MatchID:       s.ID,
		Deck:          s.Deck,
		Hands:         s.Hands,
		DiscardPile:   s.DiscardPile,
		ActiveColor:   s.ActiveColor,
		ActiveValue:   s.ActiveValue,
		CurrentPlayer: s.CurrentPlayer,
		Rules:         e.rules,
		ReshuffleSeed: s.ReshuffleSeed,
		Seq:           s.Seq,
	}
}

// LoadInitial replaces the not-started state with the host's dealt match. Malformed
// input returns ErrBadInitialState and leaves the engine untouched.
func (e *Engine) LoadInitial(init InitialState) error {
	if e.state.Phase != PhaseNotStarted {
		return fmt.Errorf("load initial: match already in phase %s", e.state.Phase)
	}
	if err := init.validate(); err != nil {
		return err
	}
	next := newMatchState(e.state.Mode)
	next.ID = init.MatchID
	next.Deck = append([]models.Card(nil), init.Deck...)
	next.DiscardPile = append([]models.Card(nil), init.DiscardPile...)
	for _, seat := range models.Seats {
		next.Hands[seat] = append([]models.Card{}, init.Hands[seat]...)
	}
	next.ActiveColor = init.ActiveColor
	next.ActiveValue = init.ActiveValue
	next.CurrentPlayer = init.CurrentPlayer
	next.ReshuffleSeed = init.ReshuffleSeed
	next.Seq = init.Seq
	next.Phase = PhaseInProgress
	if !next.conserved() {
		return fmt.Errorf("%w: cards are not the starting composition", ErrBadInitialState)
	}

	e.state = next
	e.rules = init.Rules
	e.reshuffleRand = rand.New(rand.NewSource(init.ReshuffleSeed))
	e.logger = e.logger.WithField("match", next.ID)
	e.logger.WithField("seq", next.Seq).Info("initial state loaded")
	return nil
}

// IsPlayable reports whether c may go on a pile whose active color and value are given:
// wilds always, otherwise on a color or value match.
func IsPlayable(c models.Card, activeColor models.Color, activeValue string) bool {
	return c.IsWild() || c.Color == activeColor || c.Value == activeValue
}

// IsPlayable reports whether c may go on the discard pile right now.
func (e *Engine) IsPlayable(c models.Card) bool {
	return IsPlayable(c, e.state.ActiveColor, e.state.ActiveValue)
}

// LegalMoves lists the hand indices seat could play now, in hand order.
func (e *Engine) LegalMoves(seat models.Seat) []int {
	var moves []int
	for i, c := range e.state.Hands[seat] {
		if e.IsPlayable(c) {
			moves = append(moves, i)
		}
	}
	return moves
}

// PlayCard plays hand[index] for a locally controlled seat.
func (e *Engine) PlayCard(seat models.Seat, index int, chosen models.Color) (*Outcome, error) {
	return e.play(seat, index, chosen, false)
}

// ApplyRemotePlay replays the peer's PLAY message for the remote seat.
func (e *Engine) ApplyRemotePlay(seat models.Seat, index int, chosen models.Color) (*Outcome, error) {
	return e.play(seat, index, chosen, true)
}

func (e *Engine) play(seat models.Seat, index int, chosen models.Color, remote bool) (*Outcome, error) {
	if err := e.checkTurn(seat, remote); err != nil {
		return nil, err
	}
	hand := e.state.Hands[seat]
	if index < 0 || index >= len(hand) {
		return nil, ErrInvalidIndex
	}
	card := hand[index]
	if !e.IsPlayable(card) {
		return nil, ErrUnplayable
	}
	if card.TakesColorChoice() && !chosen.Valid() {
		return nil, ErrInvalidColor
	}
	calledBefore := e.state.UnoCalled[seat]

	e.state.Hands[seat] = removeCard(hand, index)
	e.state.DiscardPile = append(e.state.DiscardPile, card)
	e.state.ActiveValue = card.Value
	switch {
	case card.TakesColorChoice():
		e.state.ActiveColor = chosen
	case card.IsWild():
		// race keeps the active color
	default:
		e.state.ActiveColor = card.Color
	}
	e.state.Seq++

	out := &Outcome{
		Seq:    e.state.Seq,
		Action: models.ActionPlay,
		Actor:  seat,
		Card:   &card,
		Index:  index,
	}
	if card.TakesColorChoice() {
		out.ChosenColor = chosen
	}

	// emptying the hand wins before any effect resolves
	if len(e.state.Hands[seat]) == 0 {
		e.finish(seat, out)
		e.logPlay(out)
		return out, nil
	}

	if e.rules.MissedUnoPenalty > 0 && len(e.state.Hands[seat]) == 1 && !calledBefore {
		e.drawInto(seat, e.rules.MissedUnoPenalty, out)
		out.Penalized = true
	}

	e.resolveEffect(seat, card, out)
	e.state.UnoCalled[seat] = false
	out.NextPlayer = e.state.CurrentPlayer
	e.logPlay(out)
	return out, nil
}

func (e *Engine) resolveEffect(seat models.Seat, card models.Card, out *Outcome) {
	opp := seat.Opponent()
	switch card.Value {
	case models.ValueReverse:
		// two seats: reverse means the same player moves again
		out.Effect = EffectReverse
	case models.ValuePlus2:
		out.Effect = EffectPlus2
		e.drawInto(opp, e.rules.Plus2Draw, out)
	case models.ValuePlus4:
		out.Effect = EffectPlus4
		e.drawInto(opp, e.rules.Plus4Draw, out)
	case models.ValueRace:
		out.Effect = EffectRace
		e.state.PendingRace = &PendingRace{Token: e.state.Seq, Launcher: seat, Target: opp}
		e.state.Phase = PhaseAwaitingMinigame
		out.AwaitingMinigame = true
		out.MinigameToken = e.state.Seq
		out.MinigameTarget = opp
	default:
		e.switchTurn(out)
	}
}

// DrawCard draws one card for a locally controlled seat. The turn passes when the
// drawn card cannot be played or when no card was available.
func (e *Engine) DrawCard(seat models.Seat) (*Outcome, error) {
	return e.draw(seat, false)
}

// ApplyRemoteDraw replays the peer's DRAW message for the remote seat.
func (e *Engine) ApplyRemoteDraw(seat models.Seat) (*Outcome, error) {
	return e.draw(seat, true)
}

func (e *Engine) draw(seat models.Seat, remote bool) (*Outcome, error) {
	if err := e.checkTurn(seat, remote); err != nil {
		return nil, err
	}
	e.state.Seq++
	out := &Outcome{Seq: e.state.Seq, Action: models.ActionDraw, Actor: seat, Index: -1}

	c, ok, reshuffled := Draw(&e.state.Deck, &e.state.DiscardPile, e.reshuffleRand)
	out.Reshuffled = reshuffled
	if !ok {
		out.NoCard = true
		e.switchTurn(out)
	} else {
		e.state.Hands[seat] = append(e.state.Hands[seat], c)
		out.recordDraw(seat, c)
		out.Card = &c
		if !e.IsPlayable(c) {
			e.switchTurn(out)
		}
	}
	out.NextPlayer = e.state.CurrentPlayer

	e.logger.WithFields(logrus.Fields{
		"seq": out.Seq, "seat": seat, "noCard": out.NoCard, "reshuffled": reshuffled, "next": out.NextPlayer,
	}).Debug("draw")
	e.logAction(seat, models.ActionDraw, map[string]interface{}{
		"card":   out.Card,
		"noCard": out.NoCard,
	})
	return out, nil
}

// CallUno declares UNO for a locally controlled seat. It is valid at any time during
// a live match, with any hand size.
func (e *Engine) CallUno(seat models.Seat) (*Outcome, error) {
	return e.callUno(seat, false)
}

// ApplyRemoteUno replays the peer's UNO_CALL message.
func (e *Engine) ApplyRemoteUno(seat models.Seat) (*Outcome, error) {
	return e.callUno(seat, true)
}

func (e *Engine) callUno(seat models.Seat, remote bool) (*Outcome, error) {
	if !seat.Valid() {
		return nil, ErrInvalidSeat
	}
	if err := e.checkLive(false); err != nil {
		return nil, err
	}
	if err := e.checkOrigin(seat, remote); err != nil {
		return nil, err
	}
	e.state.UnoCalled[seat] = true
	e.state.Seq++
	out := &Outcome{
		Seq:        e.state.Seq,
		Action:     models.ActionUno,
		Actor:      seat,
		Index:      -1,
		NextPlayer: e.state.CurrentPlayer,
	}
	e.logger.WithFields(logrus.Fields{"seq": out.Seq, "seat": seat, "handSize": len(e.state.Hands[seat])}).Info("uno called")
	e.logAction(seat, models.ActionUno, nil)
	return out, nil
}

// ResolveMinigame completes a pending race with the local target's result.
func (e *Engine) ResolveMinigame(token uint64, result MinigameResult) (*Outcome, error) {
	if e.state.PendingRace == nil {
		if e.state.Phase == PhaseOver {
			return nil, ErrMatchOver
		}
		return nil, ErrNoMinigame
	}
	return e.resolveMinigame(e.state.PendingRace.Target, token, result, false)
}

// ApplyRemoteMinigame replays the peer's MINIGAME_RESULT for the remote target seat.
func (e *Engine) ApplyRemoteMinigame(seat models.Seat, token uint64, result MinigameResult) (*Outcome, error) {
	return e.resolveMinigame(seat, token, result, true)
}

func (e *Engine) resolveMinigame(seat models.Seat, token uint64, result MinigameResult, remote bool) (*Outcome, error) {
	switch {
	case e.state.Phase == PhaseOver:
		return nil, ErrMatchOver
	case e.state.Phase != PhaseAwaitingMinigame || e.state.PendingRace == nil:
		return nil, ErrNoMinigame
	}
	pending := *e.state.PendingRace
	if token != pending.Token {
		return nil, ErrStaleToken
	}
	if seat != pending.Target {
		return nil, ErrInvalidSeat
	}
	if !result.Valid() {
		return nil, ErrInvalidResult
	}
	if err := e.checkOrigin(seat, remote); err != nil {
		return nil, err
	}

	e.state.PendingRace = nil
	e.state.Phase = PhaseInProgress
	e.state.Seq++
	out := &Outcome{
		Seq:            e.state.Seq,
		Action:         models.ActionMinigame,
		Actor:          pending.Target,
		Index:          -1,
		Effect:         EffectRace,
		MinigameToken:  pending.Token,
		MinigameTarget: pending.Target,
		MinigameResult: result,
	}
	if result == MinigameLose {
		e.drawInto(pending.Target, e.rules.RaceLoseDraw, out)
	} else {
		e.drawInto(pending.Launcher, e.rules.RaceWinDraw, out)
	}
	// the turn moves on from the launcher either way
	e.state.CurrentPlayer = pending.Launcher
	e.switchTurn(out)
	out.NextPlayer = e.state.CurrentPlayer

	e.logger.WithFields(logrus.Fields{
		"seq": out.Seq, "target": pending.Target, "result": result, "next": out.NextPlayer,
	}).Info("race resolved")
	e.logAction(pending.Target, models.ActionMinigame, map[string]interface{}{
		"token":  pending.Token,
		"result": string(result),
	})
	return out, nil
}

// CheckWin reports whether seat has emptied its hand.
func (e *Engine) CheckWin(seat models.Seat) bool {
	hand, ok := e.state.Hands[seat]
	return ok && e.state.Phase != PhaseNotStarted && len(hand) == 0
}

// Abandon ends the match without a winner, for example when the peer leaves. It does
// not advance Seq because the peer never replays it.
func (e *Engine) Abandon(reason string) (*Outcome, error) {
	if e.state.Phase == PhaseOver {
		return nil, ErrMatchOver
	}
	e.state.Phase = PhaseOver
	e.state.GameOver = true
	e.state.Abandoned = true
	e.state.PendingRace = nil
	out := &Outcome{
		Seq:        e.state.Seq,
		Action:     models.ActionAbandon,
		Index:      -1,
		GameOver:   true,
		Abandoned:  true,
		Reason:     reason,
		NextPlayer: e.state.CurrentPlayer,
	}
	e.logger.WithField("reason", reason).Warn("match abandoned")
	e.logAction(e.localSeat, models.ActionAbandon, map[string]interface{}{"reason": reason})
	return out, nil
}

// State returns a deep copy of the match state.
func (e *Engine) State() MatchState { return e.state.clone() }

// Rules returns the house rules in force.
func (e *Engine) Rules() HouseRules { return e.rules }

func (e *Engine) Phase() Phase               { return e.state.Phase }
func (e *Engine) Seq() uint64                { return e.state.Seq }
func (e *Engine) Mode() models.Mode          { return e.state.Mode }
func (e *Engine) LocalSeat() models.Seat     { return e.localSeat }
func (e *Engine) CurrentPlayer() models.Seat { return e.state.CurrentPlayer }

// Hand returns a copy of seat's hand.
func (e *Engine) Hand(seat models.Seat) []models.Card {
	return append([]models.Card{}, e.state.Hands[seat]...)
}

func (e *Engine) HandSize(seat models.Seat) int { return len(e.state.Hands[seat]) }

func (e *Engine) UnoCalled(seat models.Seat) bool { return e.state.UnoCalled[seat] }

// PendingRace returns the suspended race, if any.
func (e *Engine) PendingRace() (PendingRace, bool) {
	if e.state.PendingRace == nil {
		return PendingRace{}, false
	}
	return *e.state.PendingRace, true
}

// Controls reports whether this device acts for seat.
func (e *Engine) Controls(seat models.Seat) bool {
	if e.state.Mode == models.ModeOnline {
		return seat == e.localSeat
	}
	return seat.Valid()
}

// checkLive rejects operations outside a live match. awaitingBlocks also rejects them
// while a race is pending.
func (e *Engine) checkLive(awaitingBlocks bool) error {
	switch e.state.Phase {
	case PhaseNotStarted:
		return ErrNotStarted
	case PhaseOver:
		return ErrMatchOver
	case PhaseAwaitingMinigame:
		if awaitingBlocks {
			return ErrAwaitingMinigame
		}
	}
	return nil
}

// checkOrigin enforces who may originate an operation for seat. Offline modes originate
// everything locally; online, local calls act for the local seat and replays for the other.
func (e *Engine) checkOrigin(seat models.Seat, remote bool) error {
	if e.state.Mode != models.ModeOnline {
		if remote {
			return ErrNotRemoteSeat
		}
		return nil
	}
	if remote && seat == e.localSeat {
		return ErrNotRemoteSeat
	}
	if !remote && seat != e.localSeat {
		return ErrNotLocalSeat
	}
	return nil
}

func (e *Engine) checkTurn(seat models.Seat, remote bool) error {
	if !seat.Valid() {
		return ErrInvalidSeat
	}
	if err := e.checkLive(true); err != nil {
		return err
	}
	if err := e.checkOrigin(seat, remote); err != nil {
		return err
	}
	if seat != e.state.CurrentPlayer {
		return ErrNotYourTurn
	}
	return nil
}

// drawInto deals up to n cards to seat, stopping early if deck and discard run dry.
func (e *Engine) drawInto(seat models.Seat, n int, out *Outcome) {
	for i := 0; i < n; i++ {
		c, ok, reshuffled := Draw(&e.state.Deck, &e.state.DiscardPile, e.reshuffleRand)
		if reshuffled {
			out.Reshuffled = true
		}
		if !ok {
			e.logger.WithFields(logrus.Fields{"seat": seat, "wanted": n, "got": i}).Warn("deck exhausted during forced draw")
			return
		}
		e.state.Hands[seat] = append(e.state.Hands[seat], c)
		out.recordDraw(seat, c)
	}
}

func (e *Engine) switchTurn(out *Outcome) {
	e.state.CurrentPlayer = e.state.CurrentPlayer.Opponent()
	out.TurnAdvanced = true
}

func (e *Engine) finish(winner models.Seat, out *Outcome) {
	e.state.Phase = PhaseOver
	e.state.GameOver = true
	e.state.Winner = winner
	e.state.PendingRace = nil
	out.GameOver = true
	out.Winner = winner
	out.NextPlayer = e.state.CurrentPlayer
	e.logger.WithFields(logrus.Fields{"winner": winner, "seq": out.Seq}).Info("match over")
}

func (e *Engine) logPlay(out *Outcome) {
	e.logger.WithFields(logrus.Fields{
		"seq":    out.Seq,
		"seat":   out.Actor,
		"card":   out.Card.String(),
		"effect": out.Effect,
		"next":   out.NextPlayer,
	}).Debug("play")
	payload := map[string]interface{}{
		"card":  out.Card,
		"index": out.Index,
	}
	if out.ChosenColor != "" {
		payload["chosenColor"] = string(out.ChosenColor)
	}
	if out.Penalized {
		payload["penalized"] = true
	}
	if out.GameOver {
		payload["winner"] = string(out.Winner)
	}
	e.logAction(out.Actor, models.ActionPlay, payload)
}

// logAction publishes a record for the historian without blocking the caller.
func (e *Engine) logAction(seat models.Seat, actionType models.ActionType, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.MatchActionRecord{
		MatchID:       e.state.ID,
		ActionIndex:   e.state.Seq,
		ActorSeat:     string(seat),
		ActionType:    string(actionType),
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	publish := e.publish
	if publish == nil {
		if cache.Rdb == nil {
			return
		}
		publish = cache.PublishMatchAction
	}
	logger := e.logger
	go func(rec cache.MatchActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := publish(ctx, rec); err != nil {
			logger.WithError(err).WithField("index", rec.ActionIndex).Warn("failed to publish match action")
		}
	}(record)
}

func removeCard(hand []models.Card, idx int) []models.Card {
	out := make([]models.Card, 0, len(hand)-1)
	out = append(out, hand[:idx]...)
	return append(out, hand[idx+1:]...)
}
