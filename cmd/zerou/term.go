package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jason-s-yu/zerou/internal/facade"
	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
)

var errQuit = errors.New("quit")

type command struct {
	verb   string // p, d, u, r, v
	index  int
	color  models.Color
	result game.MinigameResult
}

// parseCommand reads one input line.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	cmd := command{verb: fields[0]}
	switch cmd.verb {
	case "p", "play":
		cmd.verb = "p"
		if len(fields) < 2 {
			return command{}, fmt.Errorf("play needs a card index")
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			return command{}, fmt.Errorf("bad card index %q", fields[1])
		}
		cmd.index = idx
		if len(fields) > 2 {
			cmd.color = models.Color(fields[2])
			if !cmd.color.Valid() {
				return command{}, fmt.Errorf("bad color %q", fields[2])
			}
		}
	case "d", "draw":
		cmd.verb = "d"
	case "u", "uno":
		cmd.verb = "u"
	case "r", "race":
		cmd.verb = "r"
		if len(fields) < 2 {
			return command{}, fmt.Errorf("race needs win or lose")
		}
		cmd.result = game.MinigameResult(fields[1])
		if !cmd.result.Valid() {
			return command{}, fmt.Errorf("bad race result %q", fields[1])
		}
	case "v", "view":
		cmd.verb = "v"
	case "q", "quit":
		return command{}, errQuit
	default:
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return cmd, nil
}

// terminal renders facade events as text and feeds typed commands back.
type terminal struct {
	mu     sync.Mutex
	out    io.Writer
	facade *facade.Facade

	raceToken uint64
	raceOpen  bool
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// show is the facade's BroadcastFn.
func (t *terminal) show(ev facade.GameEvent) {
	switch ev.Type {
	case facade.EventMatchStarted:
		t.printf("match started (%v)\n", ev.Payload["mode"])
	case facade.EventHandChanged:
		if ev.Hand != nil {
			t.printf("%s hand: %s\n", ev.Seat, formatHand(ev.Hand))
		} else {
			t.printf("%s holds %d cards\n", ev.Seat, ev.HandSize)
		}
	case facade.EventDiscardChanged:
		if ev.Card != nil {
			t.printf("discard: %s (active %v)\n", ev.Card, ev.Payload["activeColor"])
		}
	case facade.EventTurnChanged:
		t.printf("-- %s to move\n", ev.Seat)
	case facade.EventCardPlayed:
		t.printf("%s played %s\n", ev.Seat, ev.Card)
	case facade.EventCardDrawn:
		if ev.Card != nil {
			t.printf("%s drew %s\n", ev.Seat, ev.Card)
		} else if ev.Payload["noCard"] == true {
			t.printf("%s could not draw, the deck is empty\n", ev.Seat)
		} else {
			t.printf("%s drew a card\n", ev.Seat)
		}
	case facade.EventUnoCalled:
		t.printf("%s calls UNO!\n", ev.Seat)
	case facade.EventEffectTriggered:
		t.printf("effect: %v\n", ev.Payload["effect"])
	case facade.EventDeckReshuffled:
		t.printf("discard pile reshuffled into the deck\n")
	case facade.EventMinigameRequested:
		token, _ := ev.Payload["token"].(uint64)
		t.mu.Lock()
		t.raceToken, t.raceOpen = token, true
		t.mu.Unlock()
		t.printf("RACE! %s must answer: r win | r lose\n", ev.Seat)
	case facade.EventIllegalMove:
		t.printf("not allowed: %v\n", ev.Payload["reason"])
	case facade.EventSyncGap:
		t.printf("warning: lost sync with the peer (expected %v, got %v)\n", ev.Payload["expected"], ev.Payload["got"])
	case facade.EventMatchOver:
		if ev.Payload["abandoned"] == true {
			t.printf("match abandoned: %v\n", ev.Payload["reason"])
		} else {
			t.printf("match over, %s wins\n", ev.Seat)
		}
	}
}

// actor is the seat typed commands act for.
func (t *terminal) actor(mode models.Mode) models.Seat {
	switch mode {
	case models.ModeLocal2P:
		if st, ok := t.facade.State(); ok {
			if st.PendingRace != nil {
				return st.PendingRace.Target
			}
			return st.CurrentPlayer
		}
	case models.ModeOnline:
		return t.facade.LocalSeat()
	}
	return models.SeatHost
}

// loop reads commands until quit, end of input or the match ends and the user quits.
func (t *terminal) loop(ctx context.Context, in *bufio.Scanner, mode models.Mode) error {
	for in.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cmd, err := parseCommand(in.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			t.printf("%v\n", err)
			continue
		}
		if err := t.run(ctx, cmd, mode); err != nil && !isRuleError(err) {
			t.printf("error: %v\n", err)
		}
	}
	return in.Err()
}

func (t *terminal) run(ctx context.Context, cmd command, mode models.Mode) error {
	seat := t.actor(mode)
	switch cmd.verb {
	case "p":
		return t.facade.PlayCard(ctx, seat, cmd.index, cmd.color)
	case "d":
		return t.facade.DrawCard(ctx, seat)
	case "u":
		return t.facade.CallUno(ctx, seat)
	case "r":
		t.mu.Lock()
		token, open := t.raceToken, t.raceOpen
		t.raceOpen = false
		t.mu.Unlock()
		if !open {
			t.printf("there is no race to answer\n")
			return nil
		}
		return t.facade.ResolveMinigame(ctx, token, cmd.result)
	case "v":
		view, err := t.facade.View(seat)
		if err != nil {
			return err
		}
		t.printView(view)
	}
	return nil
}

func (t *terminal) printView(v game.TableView) {
	var b strings.Builder
	fmt.Fprintf(&b, "seq %d, %s, deck %d, active %s %s\n", v.Seq, v.Phase, v.DeckSize, v.ActiveColor, v.ActiveValue)
	for _, s := range v.Seats {
		marker := " "
		if s.IsTurn {
			marker = ">"
		}
		if s.Hand != nil {
			fmt.Fprintf(&b, "%s %s: %s\n", marker, s.Seat, formatHand(s.Hand))
		} else {
			fmt.Fprintf(&b, "%s %s: %d cards\n", marker, s.Seat, s.HandSize)
		}
	}
	t.printf("%s", b.String())
}

func formatHand(hand []models.Card) string {
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = fmt.Sprintf("[%d] %s", i, c)
	}
	return strings.Join(parts, "  ")
}

// isRuleError reports errors the facade already surfaced as illegal_move.
func isRuleError(err error) bool {
	for _, target := range []error{
		game.ErrNotStarted, game.ErrMatchOver, game.ErrAwaitingMinigame, game.ErrNotYourTurn,
		game.ErrInvalidIndex, game.ErrNotLocalSeat, game.ErrNotRemoteSeat, game.ErrUnplayable,
		game.ErrInvalidColor, game.ErrInvalidSeat, game.ErrNoMinigame, game.ErrStaleToken,
		game.ErrInvalidResult,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
