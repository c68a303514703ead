package hand

import (
	"fmt"
	"strings"
)

// An Action is a player decision. The constant order is also the tie-break
// priority: when two actions have exactly the same EV the earlier one wins.
type Action uint8

const (
	Stand Action = iota
	Hit
	Double
	Split

	NumActions = 4
)

var Actions = [NumActions]Action{Stand, Hit, Double, Split}

var actionNames = [NumActions]string{"stand", "hit", "double", "split"}
var actionLetters = [NumActions]byte{'S', 'H', 'D', 'P'}

func (a Action) String() string {
	if int(a) < NumActions {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", a)
}

// Letter is the one-letter code used in strategy charts.
func (a Action) Letter() byte {
	return actionLetters[a]
}

// ParseAction accepts a chart letter (either case) or a full action name.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range Actions {
		if s == actionNames[a] || (len(s) == 1 && s[0] == actionLetters[a]+('a'-'A')) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}
