// internal/facade/facade.go
package facade

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jason-s-yu/zerou/internal/bot"
	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultBotDelay is the cosmetic pause before the bot moves.
const DefaultBotDelay = 800 * time.Millisecond

// BotSeat is the seat the bot plays in bot mode.
const BotSeat = models.SeatClient

// ErrMatchInProgress is returned by StartMatch while a match is still live.
var ErrMatchInProgress = errors.New("a match is already in progress")

// Peer carries local operations to the other device. *peersync.Session satisfies it.
type Peer interface {
	SendInit(ctx context.Context, init game.InitialState) error
	Publish(ctx context.Context, out *game.Outcome) error
	AnnounceTurn(ctx context.Context, seat models.Seat) error
	Leave(ctx context.Context, reason string) error
}

// Scheduler runs fn after d. The default wraps time.AfterFunc.
type Scheduler func(d time.Duration, fn func())

// Config configures a Facade.
type Config struct {
	// LocalSeat is this device's seat online. It is ignored offline.
	LocalSeat models.Seat
	Rules     game.HouseRules
	// Rand drives the deal. BotRand drives the bot's choices. Both default to time seeds.
	Rand      *rand.Rand
	BotRand   *rand.Rand
	BotDelay  time.Duration
	Scheduler Scheduler
	// Peer is required online.
	Peer    Peer
	Publish game.PublishFn
	Logger  *logrus.Entry
}

// Facade is the single entry point for the presentation layer. It owns the match engine,
// serializes every operation behind Mu, and turns outcomes into GameEvents.
type Facade struct {
	Mu          sync.Mutex
	BroadcastFn BroadcastFn

	cfg    Config
	mode   models.Mode
	engine *game.Engine
	agent  *bot.Agent
	logger *logrus.Entry

	pending      []GameEvent
	outbox       []func()
	botScheduled uint64
	botArmed     bool

	// sendQueue holds peer sends in operation order; one caller at a time drains it.
	sendMu    sync.Mutex
	sendQueue []func()
	sending   bool
}

// New returns an idle Facade. Call StartMatch to begin.
func New(cfg Config, broadcast BroadcastFn) *Facade {
	if cfg.BotDelay <= 0 {
		cfg.BotDelay = DefaultBotDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.BotRand == nil {
		cfg.BotRand = rand.New(rand.NewSource(time.Now().UnixNano() + 1))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Facade{
		BroadcastFn: broadcast,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartMatch begins a new match in mode. Offline and as online host it deals immediately;
// an online client waits for the host's INIT_GAME.
func (f *Facade) StartMatch(ctx context.Context, mode models.Mode) error {
	f.Mu.Lock()
	if f.engine != nil && f.engine.Phase() != game.PhaseOver && f.engine.Phase() != game.PhaseNotStarted {
		f.Mu.Unlock()
		return ErrMatchInProgress
	}
	if mode == models.ModeOnline && f.cfg.Peer == nil {
		f.Mu.Unlock()
		return fmt.Errorf("online match needs a peer")
	}
	engine, err := game.NewEngine(game.Config{
		Mode:      mode,
		LocalSeat: f.cfg.LocalSeat,
		Rules:     f.cfg.Rules,
		Rand:      f.cfg.Rand,
		Logger:    f.logger,
		Publish:   f.cfg.Publish,
	})
	if err != nil {
		f.Mu.Unlock()
		return err
	}
	f.engine = engine
	f.mode = mode
	f.agent = nil
	f.botArmed = false
	if mode == models.ModeBot {
		f.agent = bot.NewAgent(BotSeat, f.cfg.BotRand, f.logger)
	}

	if mode == models.ModeOnline && f.cfg.LocalSeat == models.SeatClient {
		f.logger.Info("waiting for the host to deal")
		f.unlockAndFlush()
		return nil
	}

	if err := engine.Start(); err != nil {
		f.unlockAndFlush()
		return err
	}
	if mode == models.ModeOnline {
		init, peer, first := engine.InitialState(), f.cfg.Peer, engine.CurrentPlayer()
		f.queueSend(func() {
			if err := peer.SendInit(ctx, init); err != nil {
				f.logger.WithError(err).Warn("failed to send initial state")
				return
			}
			if err := peer.AnnounceTurn(ctx, first); err != nil {
				f.logger.WithError(err).Debug("turn announcement failed")
			}
		})
	}
	f.emitStarted()
	f.unlockAndFlush()
	return nil
}

// PlayCard plays hand[index] for seat. Rejections are reported as illegal_move and returned.
func (f *Facade) PlayCard(ctx context.Context, seat models.Seat, index int, chosen models.Color) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if err := f.checkHumanSeat(seat); err != nil {
		f.illegal(seat, models.ActionPlay, err)
		return err
	}
	out, err := f.engine.PlayCard(seat, index, chosen)
	if err != nil {
		f.illegal(seat, models.ActionPlay, err)
		return err
	}
	f.applied(ctx, out, true)
	return nil
}

// DrawCard draws one card for seat.
func (f *Facade) DrawCard(ctx context.Context, seat models.Seat) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if err := f.checkHumanSeat(seat); err != nil {
		f.illegal(seat, models.ActionDraw, err)
		return err
	}
	out, err := f.engine.DrawCard(seat)
	if err != nil {
		f.illegal(seat, models.ActionDraw, err)
		return err
	}
	f.applied(ctx, out, true)
	return nil
}

// CallUno declares UNO for seat.
func (f *Facade) CallUno(ctx context.Context, seat models.Seat) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if err := f.checkHumanSeat(seat); err != nil {
		f.illegal(seat, models.ActionUno, err)
		return err
	}
	out, err := f.engine.CallUno(seat)
	if err != nil {
		f.illegal(seat, models.ActionUno, err)
		return err
	}
	f.applied(ctx, out, true)
	return nil
}

// ResolveMinigame reports the local player's race result.
func (f *Facade) ResolveMinigame(ctx context.Context, token uint64, result game.MinigameResult) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine == nil {
		f.illegal("", models.ActionMinigame, game.ErrNotStarted)
		return game.ErrNotStarted
	}
	if pr, ok := f.engine.PendingRace(); ok && f.mode == models.ModeBot && pr.Target == BotSeat {
		f.illegal(pr.Target, models.ActionMinigame, game.ErrNotLocalSeat)
		return game.ErrNotLocalSeat
	}
	out, err := f.engine.ResolveMinigame(token, result)
	if err != nil {
		f.illegal("", models.ActionMinigame, err)
		return err
	}
	f.applied(ctx, out, true)
	return nil
}

// Abandon ends the match without a winner and tells the peer, if any.
func (f *Facade) Abandon(ctx context.Context, reason string) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine == nil {
		return game.ErrNotStarted
	}
	out, err := f.engine.Abandon(reason)
	if err != nil {
		return err
	}
	f.applied(ctx, out, false)
	if f.mode == models.ModeOnline {
		peer := f.cfg.Peer
		f.queueSend(func() {
			if err := peer.Leave(ctx, reason); err != nil {
				f.logger.WithError(err).Debug("peer already gone")
			}
		})
	}
	return nil
}

// LegalMoves lists the playable hand indices for seat.
func (f *Facade) LegalMoves(seat models.Seat) []int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if f.engine == nil || f.engine.Phase() != game.PhaseInProgress {
		return nil
	}
	return f.engine.LegalMoves(seat)
}

// View returns the table as this device may show it. Online the viewer is always the
// local seat.
func (f *Facade) View(seat models.Seat) (game.TableView, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if f.engine == nil {
		return game.TableView{}, game.ErrNotStarted
	}
	if f.mode != models.ModeLocal2P {
		seat = f.engine.LocalSeat()
	}
	return f.engine.View(seat), nil
}

// State returns a deep copy of the authoritative match state.
func (f *Facade) State() (game.MatchState, bool) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if f.engine == nil {
		return game.MatchState{}, false
	}
	return f.engine.State(), true
}

// LocalSeat is the seat this device acts for online.
func (f *Facade) LocalSeat() models.Seat { return f.cfg.LocalSeat }

// Seq returns the engine's operation counter.
func (f *Facade) Seq() uint64 {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if f.engine == nil {
		return 0
	}
	return f.engine.Seq()
}

// ApplyInitial loads the host's INIT_GAME on the client. A new INIT_GAME replaces
// whatever match was loaded before, finished or not.
func (f *Facade) ApplyInitial(init game.InitialState) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	engine := f.engine
	if engine == nil || engine.Phase() != game.PhaseNotStarted {
		var err error
		engine, err = game.NewEngine(game.Config{
			Mode:      models.ModeOnline,
			LocalSeat: f.cfg.LocalSeat,
			Logger:    f.logger,
			Publish:   f.cfg.Publish,
		})
		if err != nil {
			return err
		}
	}
	if err := engine.LoadInitial(init); err != nil {
		return err
	}
	if f.engine != nil && f.engine != engine && f.engine.Phase() != game.PhaseOver {
		f.logger.WithField("previous", f.engine.State().ID).Info("host dealt a new match over the running one")
	}
	f.engine = engine
	f.mode = models.ModeOnline
	f.agent = nil
	f.botArmed = false
	f.emitStarted()
	return nil
}

func (f *Facade) ApplyRemotePlay(seat models.Seat, index int, chosen models.Color) error {
	return f.remote(func(e *game.Engine) (*game.Outcome, error) { return e.ApplyRemotePlay(seat, index, chosen) })
}

func (f *Facade) ApplyRemoteDraw(seat models.Seat) error {
	return f.remote(func(e *game.Engine) (*game.Outcome, error) { return e.ApplyRemoteDraw(seat) })
}

func (f *Facade) ApplyRemoteUno(seat models.Seat) error {
	return f.remote(func(e *game.Engine) (*game.Outcome, error) { return e.ApplyRemoteUno(seat) })
}

func (f *Facade) ApplyRemoteMinigame(seat models.Seat, token uint64, result game.MinigameResult) error {
	return f.remote(func(e *game.Engine) (*game.Outcome, error) { return e.ApplyRemoteMinigame(seat, token, result) })
}

func (f *Facade) remote(apply func(e *game.Engine) (*game.Outcome, error)) error {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine == nil {
		return game.ErrNotStarted
	}
	out, err := apply(f.engine)
	if err != nil {
		return err
	}
	f.applied(context.Background(), out, false)
	return nil
}

// ReportSyncGap surfaces a sequence mismatch seen by the session.
func (f *Facade) ReportSyncGap(expected, got uint64) {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	f.emit(GameEvent{Type: EventSyncGap, Payload: map[string]interface{}{
		"expected": expected,
		"got":      got,
	}})
}

// ReportTurnAdvisory compares an advisory turn announcement with the engine. On
// disagreement the engine's turn is re-announced to the presentation layer.
func (f *Facade) ReportTurnAdvisory(seat models.Seat) {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine == nil || f.engine.Phase() == game.PhaseNotStarted {
		return
	}
	current := f.engine.CurrentPlayer()
	if seat == current {
		return
	}
	f.logger.WithFields(logrus.Fields{"advisory": seat, "engine": current}).Warn("turn advisory disagrees with engine")
	f.emit(GameEvent{Type: EventTurnChanged, Seat: current, Payload: map[string]interface{}{
		"advisory": string(seat),
	}})
}

// PeerLeft abandons the match when the other device disconnects.
func (f *Facade) PeerLeft(reason string) {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine == nil || f.engine.Phase() == game.PhaseOver {
		return
	}
	out, err := f.engine.Abandon(reason)
	if err != nil {
		return
	}
	f.applied(context.Background(), out, false)
}

// checkHumanSeat rejects calls before a match and calls for the bot's seat.
func (f *Facade) checkHumanSeat(seat models.Seat) error {
	if f.engine == nil {
		return game.ErrNotStarted
	}
	if f.mode == models.ModeBot && seat == BotSeat {
		return game.ErrNotLocalSeat
	}
	return nil
}

// visible reports whether seat's cards may be shown on this device.
func (f *Facade) visible(seat models.Seat) bool {
	return f.mode == models.ModeLocal2P || seat == f.engine.LocalSeat()
}

// applied turns an outcome into events and, for local operations online, forwards it to
// the peer. Caller holds Mu.
func (f *Facade) applied(ctx context.Context, out *game.Outcome, local bool) {
	seq := out.Seq
	switch out.Action {
	case models.ActionPlay:
		f.emit(GameEvent{Type: EventCardPlayed, Seq: seq, Seat: out.Actor, Card: out.Card, Payload: map[string]interface{}{
			"index":       out.Index,
			"chosenColor": string(out.ChosenColor),
		}})
		st := f.engine.State()
		top, _ := st.TopDiscard()
		f.emit(GameEvent{Type: EventDiscardChanged, Seq: seq, Card: &top, Payload: map[string]interface{}{
			"activeColor": string(st.ActiveColor),
			"activeValue": st.ActiveValue,
		}})
		f.emitHand(out.Actor, seq)
	case models.ActionDraw:
		ev := GameEvent{Type: EventCardDrawn, Seq: seq, Seat: out.Actor, Payload: map[string]interface{}{
			"noCard": out.NoCard,
		}}
		if out.Card != nil && f.visible(out.Actor) {
			ev.Card = out.Card
		}
		f.emit(ev)
	case models.ActionUno:
		f.emit(GameEvent{Type: EventUnoCalled, Seq: seq, Seat: out.Actor})
	}

	if out.Reshuffled {
		f.emit(GameEvent{Type: EventDeckReshuffled, Seq: seq})
	}
	if out.Penalized {
		f.emit(GameEvent{Type: EventEffectTriggered, Seq: seq, Seat: out.Actor, Payload: map[string]interface{}{
			"effect": string(game.EffectMissedUno),
		}})
	}
	for _, seat := range models.Seats {
		if out.DrawnBy(seat) > 0 {
			f.emitHand(seat, seq)
		}
	}
	if out.Effect != game.EffectNone {
		payload := map[string]interface{}{"effect": string(out.Effect)}
		for _, seat := range models.Seats {
			if n := out.DrawnBy(seat); n > 0 {
				payload["drawn_"+string(seat)] = n
			}
		}
		if out.MinigameResult != "" {
			payload["result"] = string(out.MinigameResult)
		}
		f.emit(GameEvent{Type: EventEffectTriggered, Seq: seq, Seat: out.Actor, Payload: payload})
	}
	if out.AwaitingMinigame && f.requestsMinigame(out.MinigameTarget) {
		f.emit(GameEvent{Type: EventMinigameRequested, Seq: seq, Seat: out.MinigameTarget, Payload: map[string]interface{}{
			"token": out.MinigameToken,
		}})
	}
	if out.GameOver {
		f.emit(GameEvent{Type: EventMatchOver, Seq: seq, Seat: out.Winner, Payload: map[string]interface{}{
			"winner":    string(out.Winner),
			"abandoned": out.Abandoned,
			"reason":    out.Reason,
		}})
	} else if out.TurnAdvanced {
		f.emit(GameEvent{Type: EventTurnChanged, Seq: seq, Seat: out.NextPlayer})
	}

	if local && f.mode == models.ModeOnline {
		peer := f.cfg.Peer
		f.queueSend(func() {
			if err := peer.Publish(ctx, out); err != nil {
				f.logger.WithError(err).WithField("seq", seq).Warn("failed to forward operation to peer")
			}
		})
	}
}

// requestsMinigame reports whether this device should show the race to target's player.
func (f *Facade) requestsMinigame(target models.Seat) bool {
	switch f.mode {
	case models.ModeBot:
		return target != BotSeat
	case models.ModeOnline:
		return target == f.engine.LocalSeat()
	}
	return true
}

func (f *Facade) emitStarted() {
	view := f.engine.View(f.engine.LocalSeat())
	seq := f.engine.Seq()
	f.emit(GameEvent{Type: EventMatchStarted, Seq: seq, View: &view, Payload: map[string]interface{}{
		"matchId":   view.MatchID.String(),
		"mode":      string(f.mode),
		"localSeat": string(f.engine.LocalSeat()),
	}})
	for _, seat := range models.Seats {
		f.emitHand(seat, seq)
	}
	st := f.engine.State()
	top, _ := st.TopDiscard()
	f.emit(GameEvent{Type: EventDiscardChanged, Seq: seq, Card: &top, Payload: map[string]interface{}{
		"activeColor": string(st.ActiveColor),
		"activeValue": st.ActiveValue,
	}})
	f.emit(GameEvent{Type: EventTurnChanged, Seq: seq, Seat: st.CurrentPlayer})
}

func (f *Facade) emitHand(seat models.Seat, seq uint64) {
	ev := GameEvent{Type: EventHandChanged, Seq: seq, Seat: seat, HandSize: f.engine.HandSize(seat)}
	if f.visible(seat) {
		ev.Hand = f.engine.Hand(seat)
	}
	f.emit(ev)
}

func (f *Facade) illegal(seat models.Seat, action models.ActionType, err error) {
	f.logger.WithFields(logrus.Fields{"seat": seat, "action": action}).WithError(err).Debug("illegal move")
	f.emit(GameEvent{Type: EventIllegalMove, Seat: seat, Payload: map[string]interface{}{
		"action": string(action),
		"reason": err.Error(),
	}})
}

func (f *Facade) emit(ev GameEvent) {
	f.pending = append(f.pending, ev)
}

// queueSend defers a peer send until Mu is released. Caller holds Mu.
func (f *Facade) queueSend(send func()) {
	f.outbox = append(f.outbox, send)
}

// unlockAndFlush releases Mu, then sends queued peer messages, delivers buffered events
// and arms the bot if it is the bot's move.
func (f *Facade) unlockAndFlush() {
	events := f.pending
	f.pending = nil
	if len(f.outbox) > 0 {
		f.sendMu.Lock()
		f.sendQueue = append(f.sendQueue, f.outbox...)
		f.sendMu.Unlock()
		f.outbox = nil
	}
	task := f.botTask()
	f.Mu.Unlock()

	f.drainSends()

	if f.BroadcastFn != nil {
		for _, ev := range events {
			f.BroadcastFn(ev)
		}
	}
	if task != nil {
		f.cfg.Scheduler(f.cfg.BotDelay, task)
	}
}

// drainSends runs queued peer sends in order. If another goroutine is already draining,
// it picks up whatever was queued here.
func (f *Facade) drainSends() {
	f.sendMu.Lock()
	if f.sending {
		f.sendMu.Unlock()
		return
	}
	f.sending = true
	for len(f.sendQueue) > 0 {
		send := f.sendQueue[0]
		f.sendQueue = f.sendQueue[1:]
		f.sendMu.Unlock()
		send()
		f.sendMu.Lock()
	}
	f.sending = false
	f.sendMu.Unlock()
}

// botTask returns the bot's next step if one is due and not already scheduled. Caller holds Mu.
func (f *Facade) botTask() func() {
	if f.agent == nil || f.engine == nil {
		return nil
	}
	due := false
	switch f.engine.Phase() {
	case game.PhaseInProgress:
		due = f.engine.CurrentPlayer() == BotSeat
	case game.PhaseAwaitingMinigame:
		pr, _ := f.engine.PendingRace()
		due = pr.Target == BotSeat
	}
	seq := f.engine.Seq()
	if !due || (f.botArmed && f.botScheduled == seq) {
		return nil
	}
	f.botArmed = true
	f.botScheduled = seq
	engine := f.engine
	return func() { f.runBot(engine, seq) }
}

// runBot plays the bot's turn or race unless the match moved on since it was scheduled.
func (f *Facade) runBot(engine *game.Engine, seq uint64) {
	f.Mu.Lock()
	defer f.unlockAndFlush()
	if f.engine != engine || engine.Seq() != seq {
		return
	}
	ctx := context.Background()
	switch engine.Phase() {
	case game.PhaseAwaitingMinigame:
		pr, _ := engine.PendingRace()
		if pr.Target != BotSeat {
			return
		}
		out, err := engine.ResolveMinigame(pr.Token, f.agent.RunMinigame())
		if err != nil {
			f.logger.WithError(err).Warn("bot minigame failed")
			return
		}
		f.applied(ctx, out, true)
	case game.PhaseInProgress:
		if engine.CurrentPlayer() != BotSeat {
			return
		}
		outs, err := f.agent.TakeTurn(engine)
		for _, out := range outs {
			f.applied(ctx, out, true)
		}
		if err != nil {
			f.logger.WithError(err).Warn("bot turn failed")
		}
	}
}
