package flash

import "fmt"

// State is the progress of a flashing session
type State int

const (
	StateIdle State = iota
	StateReset
	StateIdentified
	StateErased
	StateWriting
	StateJumped
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateReset:      "reset",
	StateIdentified: "identified",
	StateErased:     "erased",
	StateWriting:    "writing",
	StateJumped:     "jumped",
	StateFailed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}
