// internal/models/card.go
package models

// Color is a card color. Wild cards carry ColorWild; a chosen color for a wild is
// always one of the four PlayColors.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorWild   Color = "wild"
)

// PlayColors is the fixed enumeration order of the four suit colors.
var PlayColors = []Color{ColorRed, ColorGreen, ColorBlue, ColorYellow}

// Valid reports whether c is one of the four suit colors (a color a wild may choose).
func (c Color) Valid() bool {
	for _, pc := range PlayColors {
		if c == pc {
			return true
		}
	}
	return false
}

// Kind groups card values into numbers, colored actions, and wilds.
type Kind string

const (
	KindNumber Kind = "number"
	KindAction Kind = "action"
	KindWild   Kind = "wild"
)

// Action and wild card values. Number cards use "0".."9".
const (
	ValueReverse = "reverse"
	ValuePlus2   = "plus2"
	ValueWild    = "wild"
	ValuePlus4   = "plus4"
	ValueRace    = "race" // race-wild: triggers the minigame instead of a draw effect
)

// Card is an immutable value. Two cards with equal fields are interchangeable.
type Card struct {
	Color Color  `json:"color"`
	Value string `json:"value"`
	Kind  Kind   `json:"type"`
}

// IsWild reports whether the card can be played on anything.
func (c Card) IsWild() bool {
	return c.Color == ColorWild
}

// TakesColorChoice reports whether playing the card requires a chosen color.
// The race-wild keeps the current active color.
func (c Card) TakesColorChoice() bool {
	return c.IsWild() && c.Value != ValueRace
}

func (c Card) String() string {
	return string(c.Color) + " " + c.Value
}
