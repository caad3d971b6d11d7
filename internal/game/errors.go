package game

import "errors"

// Rejections. None of these change match state; callers surface them as an
// illegal-move signal and carry on.
var (
	ErrNotStarted       = errors.New("match has not started")
	ErrMatchOver        = errors.New("match is over")
	ErrAwaitingMinigame = errors.New("waiting for the race minigame result")
	ErrNotYourTurn      = errors.New("not this seat's turn")
	ErrInvalidIndex     = errors.New("card index out of range")
	ErrNotLocalSeat     = errors.New("seat is not controlled locally")
	ErrNotRemoteSeat    = errors.New("seat is not the remote seat")
	ErrUnplayable       = errors.New("card does not match the active color or value")
	ErrInvalidColor     = errors.New("wild card needs one of red, green, blue, yellow")
	ErrInvalidSeat      = errors.New("unknown seat")
	ErrNoMinigame       = errors.New("no race minigame is pending")
	ErrStaleToken       = errors.New("minigame token does not match the pending race")
	ErrInvalidResult    = errors.New("minigame result must be win or lose")
	ErrBadInitialState  = errors.New("initial state is not a valid match")
)
