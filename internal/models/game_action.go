package models

// ActionType names a state-changing operation on a match.
type ActionType string

const (
	ActionStart    ActionType = "action_start"
	ActionPlay     ActionType = "action_play"
	ActionDraw     ActionType = "action_draw"
	ActionUno      ActionType = "action_uno"
	ActionMinigame ActionType = "action_minigame"
	ActionAbandon  ActionType = "action_abandon"
)
