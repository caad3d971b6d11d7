// internal/relay/rooms.go
package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/models"
)

// maxPendingFrames bounds what a room holds for a seat that has not connected yet.
const maxPendingFrames = 256

var (
	errSeatTaken  = errors.New("seat already connected")
	errSeatJoined = errors.New("seat already claimed")
	errBacklog    = errors.New("peer backlog full")
)

// conn is one attached websocket as the room sees it.
type conn struct {
	seat models.Seat
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(seat models.Seat, backlog int) *conn {
	return &conn{
		seat: seat,
		out:  make(chan []byte, backlog+64),
		done: make(chan struct{}),
	}
}

// kick asks the writer to give up.
func (c *conn) kick() {
	c.once.Do(func() { close(c.done) })
}

// Room pairs the two seats of one match. Frames from one seat go to the other; frames for
// a seat that is not connected yet are queued.
type Room struct {
	ID           uuid.UUID
	PasswordHash string
	CreatedAt    time.Time

	mu            sync.Mutex
	clientClaimed bool
	conns         map[models.Seat]*conn
	pending       map[models.Seat][][]byte
}

func newRoom(passwordHash string) *Room {
	return &Room{
		ID:           uuid.New(),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		conns:        make(map[models.Seat]*conn),
		pending:      make(map[models.Seat][][]byte),
	}
}

// claimClient reserves the client seat for the first successful join.
func (r *Room) claimClient() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clientClaimed {
		return errSeatJoined
	}
	r.clientClaimed = true
	return nil
}

// attach connects seat and hands it everything queued for it.
func (r *Room) attach(seat models.Seat) (*conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[seat]; ok {
		return nil, errSeatTaken
	}
	queued := r.pending[seat]
	delete(r.pending, seat)
	c := newConn(seat, len(queued))
	for _, frame := range queued {
		c.out <- frame
	}
	r.conns[seat] = c
	return c, nil
}

// forward delivers a frame from seat to its opponent.
func (r *Room) forward(from models.Seat, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	to := from.Opponent()
	if c, ok := r.conns[to]; ok {
		select {
		case c.out <- frame:
			return nil
		default:
			c.kick()
			return errBacklog
		}
	}
	if len(r.pending[to]) >= maxPendingFrames {
		return errBacklog
	}
	r.pending[to] = append(r.pending[to], frame)
	return nil
}

// detach removes c and reports the opponent connection still attached, if any, and
// whether the room is now empty.
func (r *Room) detach(c *conn) (other *conn, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.seat] == c {
		delete(r.conns, c.seat)
	}
	c.kick()
	other = r.conns[c.seat.Opponent()]
	return other, len(r.conns) == 0
}

// idle reports whether no seat is connected and the room is older than ttl.
func (r *Room) idle(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) == 0 && now.Sub(r.CreatedAt) > ttl
}

// RoomStore holds the live rooms.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[uuid.UUID]*Room),
	}
}

func (s *RoomStore) AddRoom(room *Room) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return len(s.rooms)
}

func (s *RoomStore) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, exists := s.rooms[id]
	return r, exists
}

// DeleteRoom removes id and returns how many rooms remain.
func (s *RoomStore) DeleteRoom(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return len(s.rooms)
}

// Sweep drops rooms nobody is connected to that are older than ttl and returns the
// remaining count.
func (s *RoomStore) Sweep(now time.Time, ttl time.Duration) (removed, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rooms {
		if r.idle(now, ttl) {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed, len(s.rooms)
}

func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
