// internal/models/player.go
package models

import "fmt"

// Seat is one of the two fixed turn-taking identities in a match. Both peers of an
// online match use the same labels; only which seat is local differs.
type Seat string

const (
	SeatHost   Seat = "host"
	SeatClient Seat = "client"
)

// Seats lists both seats, host first (the dealing and starting order).
var Seats = []Seat{SeatHost, SeatClient}

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	if s == SeatHost {
		return SeatClient
	}
	return SeatHost
}

// Valid reports whether s names one of the two seats.
func (s Seat) Valid() bool {
	return s == SeatHost || s == SeatClient
}

// ParseSeat converts a wire string into a Seat.
func ParseSeat(v string) (Seat, error) {
	s := Seat(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown seat %q", v)
	}
	return s, nil
}

// Mode selects who sits in the client seat.
type Mode string

const (
	ModeBot     Mode = "bot"      // client seat is the local bot
	ModeLocal2P Mode = "local-2p" // pass-and-play, both seats local
	ModeOnline  Mode = "online"   // one seat local, the other a remote peer
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBot, ModeLocal2P, ModeOnline:
		return true
	}
	return false
}
