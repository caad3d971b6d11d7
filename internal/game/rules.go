// internal/game/rules.go
package game

import (
	"fmt"
	"math"
)

// MaxHandSize leaves a non-wild starter in the deck after both hands are dealt.
const MaxHandSize = (DeckSize - WildCount - 1) / 2

// HouseRules holds the tunable parts of the fixed rule set. The host sends them in
// INIT_GAME so both peers resolve effects identically.
type HouseRules struct {
	HandSize         int `json:"handSize"`         // cards dealt to each seat at match start
	Plus2Draw        int `json:"plus2Draw"`        // cards the opponent draws on plus2
	Plus4Draw        int `json:"plus4Draw"`        // cards the opponent draws on plus4
	RaceLoseDraw     int `json:"raceLoseDraw"`     // cards the race target draws when it loses
	RaceWinDraw      int `json:"raceWinDraw"`      // cards the launcher draws when the target wins
	MissedUnoPenalty int `json:"missedUnoPenalty"` // cards drawn for going to one card without calling UNO; 0 disables
}

// DefaultHouseRules returns the standard configuration. The missed-UNO penalty is off.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		HandSize:         7,
		Plus2Draw:        2,
		Plus4Draw:        4,
		RaceLoseDraw:     1,
		RaceWinDraw:      2,
		MissedUnoPenalty: 0,
	}
}

// Validate checks that the rules can deal a legal match.
func (rules HouseRules) Validate() error {
	if rules.HandSize < 1 {
		return fmt.Errorf("handSize must be positive")
	}
	if rules.HandSize > MaxHandSize {
		return fmt.Errorf("handSize %d is too large, at most %d", rules.HandSize, MaxHandSize)
	}
	if rules.Plus2Draw < 0 || rules.Plus4Draw < 0 || rules.RaceLoseDraw < 0 || rules.RaceWinDraw < 0 {
		return fmt.Errorf("draw counts must be non-negative")
	}
	if rules.MissedUnoPenalty < 0 {
		return fmt.Errorf("missedUnoPenalty must be non-negative")
	}
	return nil
}

// Update will update the house rules with the new rules provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
// On error the receiver is left unchanged.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	next := *rules
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		// JSON numbers decode as float64
		switch v := val.(type) {
		case float64:
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s must be a whole number", key)
			}
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = n
		return nil
	}

	if err := assignInt(&next.HandSize, "handSize", 1); err != nil {
		return err
	}
	if err := assignInt(&next.Plus2Draw, "plus2Draw", 0); err != nil {
		return err
	}
	if err := assignInt(&next.Plus4Draw, "plus4Draw", 0); err != nil {
		return err
	}
	if err := assignInt(&next.RaceLoseDraw, "raceLoseDraw", 0); err != nil {
		return err
	}
	if err := assignInt(&next.RaceWinDraw, "raceWinDraw", 0); err != nil {
		return err
	}
	if err := assignInt(&next.MissedUnoPenalty, "missedUnoPenalty", 0); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*rules = next
	return nil
}

// ParseRules converts a map of rules to a HouseRules struct. It will ensure the types are valid.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}
