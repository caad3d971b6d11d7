// cmd/zerou/main.go is a terminal client: play the bot, pass-and-play, or a remote peer
// through the relay.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/facade"
	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/jason-s-yu/zerou/internal/peersync"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// roomTicket mirrors the relay's create/join response.
type roomTicket struct {
	RoomID uuid.UUID   `json:"roomId"`
	Seat   models.Seat `json:"seat"`
	Token  string      `json:"token"`
}

func main() {
	mode := flag.String("mode", string(models.ModeBot), "bot, local-2p or online")
	relayURL := flag.String("relay", config.GetEnv("RELAY_URL", "http://localhost:8080"), "relay base URL (online)")
	room := flag.String("room", "", "room id to join; empty creates a room (online)")
	password := flag.String("password", "", "room password (online)")
	rulesFlag := flag.String("rules", "", `house rule overrides as JSON, e.g. {"missedUnoPenalty":2}`)
	useRedis := flag.Bool("redis", config.GetEnvBool("ZEROU_REDIS", false), "publish actions and turn advisories through Redis")
	flag.Parse()

	logger := config.NewLogger()
	entry := logrus.NewEntry(logger)

	m := models.Mode(*mode)
	if !m.Valid() {
		logger.Fatalf("unknown mode %q", *mode)
	}
	rules := game.DefaultHouseRules()
	if *rulesFlag != "" {
		var overrides map[string]interface{}
		if err := json.Unmarshal([]byte(*rulesFlag), &overrides); err != nil {
			logger.WithError(err).Fatal("house rules must be a JSON object")
		}
		var err error
		if rules, err = game.ParseRules(overrides, rules); err != nil {
			logger.WithError(err).Fatal("bad house rules")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var advisory peersync.TurnAdvisory
	if *useRedis {
		if err := cache.ConnectRedis(); err != nil {
			logger.WithError(err).Warn("redis unavailable, continuing without it")
		} else {
			defer cache.Rdb.Close()
			advisory = cache.NewRedisTurnAdvisory(cache.Rdb)
		}
	}

	term := newTerminal(os.Stdout)
	cfg := facade.Config{Rules: rules, Logger: entry, LocalSeat: models.SeatHost}

	var sess *peersync.Session
	if m == models.ModeOnline {
		ticket, err := openRoom(ctx, *relayURL, *room, *password)
		if err != nil {
			logger.WithError(err).Fatal("could not reach the relay")
		}
		term.printf("room %s, you are %s\n", ticket.RoomID, ticket.Seat)
		transport, err := peersync.DialWebSocket(ctx, wsURL(*relayURL, ticket.RoomID), ticket.Token)
		if err != nil {
			logger.WithError(err).Fatal("could not open the peer channel")
		}
		sess, err = peersync.NewSession(peersync.SessionConfig{Transport: transport, Advisory: advisory, Logger: entry})
		if err != nil {
			logger.WithError(err).Fatal("session setup failed")
		}
		cfg.LocalSeat = ticket.Seat
		cfg.Peer = sess
	}

	f := facade.New(cfg, term.show)
	term.facade = f
	if err := f.StartMatch(ctx, m); err != nil {
		logger.WithError(err).Fatal("could not start the match")
	}
	if sess != nil {
		go func() {
			if err := sess.Run(ctx, f); err != nil {
				entry.WithError(err).Debug("peer session ended")
			}
		}()
	}

	term.printf("commands: p <index> [color] | d | u | r win|lose | v | q\n")
	if err := term.loop(ctx, bufio.NewScanner(os.Stdin), m); err != nil {
		logger.WithError(err).Warn("input closed")
	}
	f.Abandon(context.Background(), "player quit")
}

// openRoom creates a room, or joins roomID when given.
func openRoom(ctx context.Context, base, roomID, password string) (roomTicket, error) {
	path, body := "/room/create", map[string]interface{}{"password": password}
	if roomID != "" {
		id, err := uuid.Parse(roomID)
		if err != nil {
			return roomTicket{}, fmt.Errorf("room id: %w", err)
		}
		path, body = "/room/join", map[string]interface{}{"roomId": id, "password": password}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return roomTicket{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, bytes.NewReader(data))
	if err != nil {
		return roomTicket{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return roomTicket{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return roomTicket{}, fmt.Errorf("%s: %s", path, resp.Status)
	}
	var t roomTicket
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return roomTicket{}, fmt.Errorf("decode ticket: %w", err)
	}
	return t, nil
}

func wsURL(base string, room uuid.UUID) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/room/ws/" + room.String()
}
