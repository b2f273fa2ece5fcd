package models

// TurnState is the lifecycle phase of a single chat turn.
type TurnState string

const (
	TurnIdle       TurnState = "idle"
	TurnRequesting TurnState = "requesting"
	TurnStreaming  TurnState = "streaming"
	TurnDone       TurnState = "done"
	TurnFailed     TurnState = "failed"
	TurnCancelled  TurnState = "cancelled"
)

// Terminal reports whether no further transition can happen within the turn. A session accepts a new
// turn only from Idle or a terminal state.
func (s TurnState) Terminal() bool {
	switch s {
	case TurnDone, TurnFailed, TurnCancelled:
		return true
	}
	return false
}
