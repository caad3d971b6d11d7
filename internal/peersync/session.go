// internal/peersync/session.go
package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/sirupsen/logrus"
)

// Replayer applies the peer's operations to the local match. The Facade implements it.
type Replayer interface {
	LocalSeat() models.Seat
	Seq() uint64
	ApplyInitial(init game.InitialState) error
	ApplyRemotePlay(seat models.Seat, index int, chosen models.Color) error
	ApplyRemoteDraw(seat models.Seat) error
	ApplyRemoteUno(seat models.Seat) error
	ApplyRemoteMinigame(seat models.Seat, token uint64, result game.MinigameResult) error
	ReportSyncGap(expected, got uint64)
	ReportTurnAdvisory(seat models.Seat)
	PeerLeft(reason string)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Transport Transport
	// Advisory shares the current turn out of band. Without it the session sends TURN_UPDATE.
	Advisory TurnAdvisory
	Logger   *logrus.Entry
}

// Stats counts what the session did with incoming frames.
type Stats struct {
	Received uint64
	Applied  uint64
	Dropped  uint64
	Echoes   uint64
	Gaps     uint64
}

// Session is one peer connection for one match. Sends are safe from any goroutine; Run
// owns the receive side.
type Session struct {
	transport Transport
	advisory  TurnAdvisory
	logger    *logrus.Entry

	sendMu sync.Mutex

	mu      sync.Mutex
	matchID uuid.UUID
	// watched is the match the advisory subscription follows; stopWatch ends it.
	watched   uuid.UUID
	stopWatch context.CancelFunc
	// set while Run is active
	runCtx   context.Context
	replayer Replayer

	received, applied, dropped, echoes, gaps atomic.Uint64
}

// NewSession wraps cfg.Transport.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session needs a transport")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		transport: cfg.Transport,
		advisory:  cfg.Advisory,
		logger:    logger,
	}, nil
}

// SendInit sends INIT_GAME. Only the host calls it, once per match.
func (s *Session) SendInit(ctx context.Context, init game.InitialState) error {
	s.setMatch(init.MatchID)
	s.mu.Lock()
	runCtx, r := s.runCtx, s.replayer
	s.mu.Unlock()
	if r != nil {
		s.watchAdvisory(runCtx, r)
	}
	return s.send(ctx, Message{Type: MsgInitGame, Seq: init.Seq, Init: &init})
}

// Publish forwards a locally originated outcome to the peer, then announces the turn if
// it moved.
func (s *Session) Publish(ctx context.Context, out *game.Outcome) error {
	msg, ok := FromOutcome(out)
	if !ok {
		return nil
	}
	if err := s.send(ctx, msg); err != nil {
		return err
	}
	if out.TurnAdvanced {
		return s.AnnounceTurn(ctx, out.NextPlayer)
	}
	return nil
}

// AnnounceTurn publishes seat as the current turn through the advisory, or as a
// TURN_UPDATE frame when no advisory is configured.
func (s *Session) AnnounceTurn(ctx context.Context, seat models.Seat) error {
	if s.advisory != nil {
		id := s.MatchID()
		if id == uuid.Nil {
			return nil
		}
		return s.advisory.Announce(ctx, id, seat)
	}
	return s.send(ctx, Message{Type: MsgTurnUpdate, CurrentTurn: seat})
}

// Leave tells the peer this side is gone and closes the transport.
func (s *Session) Leave(ctx context.Context, reason string) error {
	err := s.send(ctx, Message{Type: MsgPeerLeft, Reason: reason})
	if cerr := s.transport.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Session) send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.transport.Send(ctx, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Run reads peer frames and applies them to r until the transport closes or ctx ends.
// A closed transport is reported to r as the peer leaving.
func (s *Session) Run(ctx context.Context, r Replayer) error {
	s.mu.Lock()
	s.runCtx, s.replayer = ctx, r
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runCtx, s.replayer = nil, nil
		if s.stopWatch != nil {
			s.stopWatch()
			s.stopWatch = nil
		}
		s.mu.Unlock()
	}()
	if s.MatchID() != uuid.Nil {
		s.watchAdvisory(ctx, r)
	}
	for {
		data, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log().WithError(err).Info("peer transport closed")
			r.PeerLeft("connection closed")
			return err
		}
		if done := s.handle(ctx, r, data); done {
			return nil
		}
	}
}

// handle applies one frame. It reports true once the peer has left.
func (s *Session) handle(ctx context.Context, r Replayer, data []byte) bool {
	s.received.Add(1)
	msg, err := Decode(data)
	if err != nil {
		s.dropped.Add(1)
		s.log().WithError(err).Warn("dropping peer message")
		return false
	}
	entry := s.log().WithFields(logrus.Fields{"type": msg.Type, "actor": msg.Actor, "seq": msg.Seq})

	switch msg.Type {
	case MsgPeerLeft:
		reason := msg.Reason
		if reason == "" {
			reason = "peer left"
		}
		entry.Info("peer left")
		r.PeerLeft(reason)
		return true
	case MsgTurnUpdate:
		r.ReportTurnAdvisory(msg.CurrentTurn)
		return false
	case MsgInitGame:
		if err := r.ApplyInitial(*msg.Init); err != nil {
			s.dropped.Add(1)
			entry.WithError(err).Warn("dropping INIT_GAME")
			return false
		}
		s.applied.Add(1)
		s.setMatch(msg.Init.MatchID)
		s.watchAdvisory(ctx, r)
		return false
	}

	if msg.Actor == r.LocalSeat() {
		s.echoes.Add(1)
		entry.Debug("ignoring echo of a local operation")
		return false
	}
	if expected := r.Seq() + 1; msg.Seq != expected {
		s.gaps.Add(1)
		entry.WithField("expected", expected).Warn("sequence gap")
		r.ReportSyncGap(expected, msg.Seq)
	}

	switch msg.Type {
	case MsgPlay:
		err = r.ApplyRemotePlay(msg.Actor, *msg.CardIndex, msg.ChosenColor)
	case MsgDraw:
		err = r.ApplyRemoteDraw(msg.Actor)
	case MsgUnoCall:
		err = r.ApplyRemoteUno(msg.Actor)
	case MsgMinigameResult:
		err = r.ApplyRemoteMinigame(msg.Actor, msg.Token, msg.Result)
	}
	if err != nil {
		s.dropped.Add(1)
		entry.WithError(err).Warn("peer operation rejected")
		return false
	}
	s.applied.Add(1)
	return false
}

func (s *Session) watchAdvisory(ctx context.Context, r Replayer) {
	if s.advisory == nil {
		return
	}
	s.mu.Lock()
	id := s.matchID
	if s.stopWatch != nil && s.watched == id {
		s.mu.Unlock()
		return
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.watched, s.stopWatch = id, cancel
	s.mu.Unlock()

	ch, err := s.advisory.Watch(ctx, id)
	if err != nil {
		s.log().WithError(err).Warn("turn advisory unavailable")
		return
	}
	go func() {
		for seat := range ch {
			r.ReportTurnAdvisory(seat)
		}
	}()
}

func (s *Session) setMatch(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = id
	s.logger = s.logger.WithField("match", id)
}

func (s *Session) log() *logrus.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// MatchID returns the match this session carries, once known.
func (s *Session) MatchID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// Stats returns a snapshot of the receive counters.
func (s *Session) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Applied:  s.applied.Load(),
		Dropped:  s.dropped.Load(),
		Echoes:   s.echoes.Load(),
		Gaps:     s.gaps.Load(),
	}
}
