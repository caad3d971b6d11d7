// internal/relay/server.go
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/auth"
	"github.com/jason-s-yu/zerou/internal/middleware"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/jason-s-yu/zerou/internal/peersync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Custom close codes sent to peers.
const (
	BadSubprotocolError = 3000 // Client connected without the zerou subprotocol.
	BacklogError        = 3004 // Client fell too far behind and was cut off.
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Options configure a Server.
type Options struct {
	// Namespace prefixes metric names.
	Namespace string
	// RoomTTL is how long a room may sit with nobody connected before Sweep drops it.
	RoomTTL time.Duration
	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
}

// Server is the peer relay: it pairs the two seats of a room and copies frames between
// them without interpreting the game.
type Server struct {
	Store    *RoomStore
	Metrics  *Metrics
	Registry *prometheus.Registry

	opts   Options
	logger *logrus.Logger
}

// NewServer builds a relay with its own metrics registry.
func NewServer(logger *logrus.Logger, opts Options) *Server {
	if opts.Namespace == "" {
		opts.Namespace = "zerou_relay"
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = 30 * time.Minute
	}
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = []string{"*"}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Server{
		Store:    NewRoomStore(),
		Metrics:  NewMetrics(opts.Namespace, reg),
		Registry: reg,
		opts:     opts,
		logger:   logger,
	}
}

// Handler routes the relay's HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /room/create", s.createRoom)
	mux.HandleFunc("POST /room/join", s.joinRoom)
	mux.HandleFunc("GET /room/ws/{roomID}", s.roomWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "rooms": s.Store.Len()})
	})
	return middleware.LogMiddleware(s.logger)(mux)
}

// RunJanitor drops rooms nobody ever connected to, every interval, until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep removes idle rooms older than the room TTL.
func (s *Server) Sweep(now time.Time) {
	removed, remaining := s.Store.Sweep(now, s.opts.RoomTTL)
	s.Metrics.ActiveRooms.Set(float64(remaining))
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("swept idle rooms")
	}
}

// RoomTicket is returned by create and join: the seat the caller holds and the bearer
// token for the websocket.
type RoomTicket struct {
	RoomID uuid.UUID   `json:"roomId"`
	Seat   models.Seat `json:"seat"`
	Token  string      `json:"token"`
}

type createRequest struct {
	Password string `json:"password"`
}

type joinRequest struct {
	RoomID   uuid.UUID `json:"roomId"`
	Password string    `json:"password"`
}

// createRoom opens a room and hands the caller the host seat.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad room request payload", http.StatusBadRequest)
		return
	}
	hash, err := auth.HashRoomPassword(req.Password)
	if err != nil {
		s.logger.WithError(err).Error("failed to hash room password")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	room := newRoom(hash)
	token, err := auth.CreateSeatToken(room.ID, models.SeatHost)
	if err != nil {
		s.logger.WithError(err).Error("failed to issue host token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Metrics.ActiveRooms.Set(float64(s.Store.AddRoom(room)))
	s.logger.WithFields(logrus.Fields{"room": room.ID, "private": hash != ""}).Info("room created")
	writeJSON(w, http.StatusOK, RoomTicket{RoomID: room.ID, Seat: models.SeatHost, Token: token})
}

// joinRoom hands the client seat to the first caller with the right password.
func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad join request payload", http.StatusBadRequest)
		return
	}
	room, ok := s.Store.GetRoom(req.RoomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if !auth.CheckRoomPassword(req.Password, room.PasswordHash) {
		http.Error(w, "wrong room password", http.StatusForbidden)
		return
	}
	if err := room.claimClient(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	token, err := auth.CreateSeatToken(room.ID, models.SeatClient)
	if err != nil {
		s.logger.WithError(err).Error("failed to issue client token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.logger.WithField("room", room.ID).Info("client joined room")
	writeJSON(w, http.StatusOK, RoomTicket{RoomID: room.ID, Seat: models.SeatClient, Token: token})
}

// roomWS attaches an authenticated seat to its room and relays frames until either side
// goes away.
func (s *Server) roomWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("roomID"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	room, ok := s.Store.GetRoom(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	claims, err := auth.AuthenticateSeatToken(bearerToken(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.Room != roomID {
		http.Error(w, "token is for another room", http.StatusForbidden)
		return
	}
	pc, err := room.attach(claims.Seat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	logger := s.logger.WithFields(logrus.Fields{"room": roomID, "seat": claims.Seat})
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{peersync.Subprotocol},
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		logger.WithError(err).Warn("websocket accept failed")
		room.detach(pc)
		return
	}
	if c.Subprotocol() != peersync.Subprotocol {
		c.Close(BadSubprotocolError, "client must use the zerou subprotocol")
		room.detach(pc)
		return
	}
	c.SetReadLimit(readLimit)
	s.Metrics.ConnectedSeats.Inc()
	middleware.LogWebSocketConnect(logger, r.RemoteAddr)

	err = s.pump(r.Context(), c, room, pc)
	s.Metrics.ConnectedSeats.Dec()
	s.Metrics.Disconnects.Inc()
	middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, err)

	if errors.Is(err, errBacklog) {
		c.Close(BacklogError, "peer backlog full")
	} else {
		c.Close(websocket.StatusNormalClosure, "")
	}
	s.release(room, pc, logger)
}

// pump copies frames from c into the room and from the room out to c.
func (s *Server) pump(ctx context.Context, c *websocket.Conn, room *Room, pc *conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			_, data, err := c.Read(gctx)
			if err != nil {
				return err
			}
			if err := room.forward(pc.seat, data); err != nil {
				s.Metrics.FramesDropped.Inc()
				s.logger.WithFields(logrus.Fields{"room": room.ID, "seat": pc.seat}).WithError(err).Warn("dropped frame")
				continue
			}
			s.Metrics.FramesRelayed.WithLabelValues(string(pc.seat)).Inc()
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-pc.done:
				return errBacklog
			case frame := <-pc.out:
				wctx, cancel := context.WithTimeout(gctx, writeTimeout)
				err := c.Write(wctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					return err
				}
			}
		}
	})
	err := g.Wait()
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return nil
	}
	return err
}

// release detaches pc, tells the opponent it left and drops the room once empty.
func (s *Server) release(room *Room, pc *conn, logger *logrus.Entry) {
	other, empty := room.detach(pc)
	if other != nil {
		frame, err := peersync.Encode(peersync.Message{Type: peersync.MsgPeerLeft, Reason: "peer disconnected"})
		if err == nil {
			select {
			case other.out <- frame:
			default:
				other.kick()
			}
		}
	}
	if empty {
		s.Metrics.ActiveRooms.Set(float64(s.Store.DeleteRoom(room.ID)))
		logger.Info("room closed")
	}
}

// bearerToken reads the token from the Authorization header, falling back to ?token=
// for browsers that cannot set headers on a websocket.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
