// internal/peersync/protocol.go
package peersync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/zerou/internal/game"
	"github.com/jason-s-yu/zerou/internal/models"
)

// MessageType names a peer message.
type MessageType string

const (
	MsgInitGame       MessageType = "INIT_GAME"
	MsgPlay           MessageType = "PLAY"
	MsgDraw           MessageType = "DRAW"
	MsgUnoCall        MessageType = "UNO_CALL"
	MsgMinigameResult MessageType = "MINIGAME_RESULT"
	MsgTurnUpdate     MessageType = "TURN_UPDATE"
	MsgPeerLeft       MessageType = "PEER_LEFT"

	// legacy names accepted on the wire
	MsgMove       MessageType = "MOVE"
	MsgDrawAction MessageType = "DRAW_ACTION"
)

// ErrMalformed marks a message that cannot be applied. Such messages are dropped.
var ErrMalformed = errors.New("malformed peer message")

// Message is the JSON envelope exchanged between peers. Which fields are set depends on Type.
type Message struct {
	Type        MessageType         `json:"type"`
	Actor       models.Seat         `json:"actor,omitempty"`
	Seq         uint64              `json:"seq,omitempty"`
	CardIndex   *int                `json:"cardIndex,omitempty"`
	ChosenColor models.Color        `json:"chosenColor,omitempty"`
	Token       uint64              `json:"token,omitempty"`
	Result      game.MinigameResult `json:"result,omitempty"`
	CurrentTurn models.Seat         `json:"currentTurn,omitempty"`
	Init        *game.InitialState  `json:"init,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// Encode serializes m after validating it.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses and validates a peer message. Legacy type names are normalized.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Type {
	case MsgMove:
		m.Type = MsgPlay
	case MsgDrawAction:
		m.Type = MsgDraw
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that m carries the fields its type needs.
func (m Message) Validate() error {
	switch m.Type {
	case MsgInitGame:
		if m.Init == nil {
			return fmt.Errorf("%w: INIT_GAME without init", ErrMalformed)
		}
	case MsgPlay:
		if err := m.needActor(); err != nil {
			return err
		}
		if m.CardIndex == nil || *m.CardIndex < 0 {
			return fmt.Errorf("%w: PLAY without a card index", ErrMalformed)
		}
		if m.ChosenColor != "" && !m.ChosenColor.Valid() {
			return fmt.Errorf("%w: chosen color %q", ErrMalformed, m.ChosenColor)
		}
	case MsgDraw, MsgUnoCall:
		return m.needActor()
	case MsgMinigameResult:
		if err := m.needActor(); err != nil {
			return err
		}
		if !m.Result.Valid() {
			return fmt.Errorf("%w: minigame result %q", ErrMalformed, m.Result)
		}
	case MsgTurnUpdate:
		if !m.CurrentTurn.Valid() {
			return fmt.Errorf("%w: TURN_UPDATE seat %q", ErrMalformed, m.CurrentTurn)
		}
	case MsgPeerLeft:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return nil
}

func (m Message) needActor() error {
	if !m.Actor.Valid() {
		return fmt.Errorf("%w: %s actor %q", ErrMalformed, m.Type, m.Actor)
	}
	return nil
}

// IsOperation reports whether m replays an engine operation.
func (m Message) IsOperation() bool {
	switch m.Type {
	case MsgPlay, MsgDraw, MsgUnoCall, MsgMinigameResult:
		return true
	}
	return false
}

// FromOutcome builds the message that replays out on the peer. ok is false for outcomes
// the peer does not replay.
func FromOutcome(out *game.Outcome) (msg Message, ok bool) {
	if out == nil {
		return Message{}, false
	}
	msg = Message{Actor: out.Actor, Seq: out.Seq}
	switch out.Action {
	case models.ActionPlay:
		idx := out.Index
		msg.Type = MsgPlay
		msg.CardIndex = &idx
		msg.ChosenColor = out.ChosenColor
	case models.ActionDraw:
		msg.Type = MsgDraw
	case models.ActionUno:
		msg.Type = MsgUnoCall
	case models.ActionMinigame:
		msg.Type = MsgMinigameResult
		msg.Token = out.MinigameToken
		msg.Result = out.MinigameResult
	default:
		return Message{}, false
	}
	return msg, true
}
