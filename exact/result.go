package exact

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
)

var ErrIllegalAction = errors.New("action is not legal here")

// Context is one decision point: the hand being played, how many hands the
// player holds this round, the dealer upcard, and every card the player has
// not seen. Unseen includes the dealer's hole card.
type Context struct {
	State  hand.State
	Hands  int
	Upcard deck.Rank
	Unseen deck.Composition
}

func (c Context) String() string {
	return fmt.Sprintf("%v (hands=%d) vs %v, unseen %v", c.State, c.Hands, c.Upcard, c.Unseen)
}

// Result holds the EV of every action, in units of the initial wager.
// Illegal actions have an EV of -Inf.
type Result struct {
	EVs  [hand.NumActions]float64
	Best hand.Action
}

func newResult() Result {
	var r Result
	for i := range r.EVs {
		r.EVs[i] = math.Inf(-1)
	}
	return r
}

// choose sets Best using the fixed action priority for ties.
func (r *Result) choose() {
	r.Best = hand.Stand
	for _, a := range hand.Actions[1:] {
		if r.EVs[a] > r.EVs[r.Best] {
			r.Best = a
		}
	}
}

// Value is the EV of the best action.
func (r Result) Value() float64 {
	return r.EVs[r.Best]
}

func (r Result) Legal(a hand.Action) bool {
	return !math.IsInf(r.EVs[a], -1)
}

// EV returns the EV of a single action.
func (r Result) EV(a hand.Action) (float64, error) {
	if int(a) >= hand.NumActions || !r.Legal(a) {
		return 0, fmt.Errorf("%v: %w", a, ErrIllegalAction)
	}
	return r.EVs[a], nil
}

// Gain is how much better the best action is than a, for a legal a.
func (r Result) Gain(a hand.Action) (float64, error) {
	ev, err := r.EV(a)
	if err != nil {
		return 0, err
	}
	return r.Value() - ev, nil
}

func (r Result) String() string {
	var sb strings.Builder
	for _, a := range hand.Actions {
		if !r.Legal(a) {
			continue
		}
		marker := " "
		if a == r.Best {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s%-6s %+.6f\n", marker, a, r.EVs[a])
	}
	return sb.String()
}

// An InvariantError means the model was asked something it cannot answer
// truthfully. It always indicates a bug or a corrupt shoe.
type InvariantError struct {
	Context Context
	Reason  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("exact: %s (context: %v)", e.Reason, e.Context)
}

// outOfCards is panicked deep in the recursion and recovered by Evaluate.
type outOfCards struct {
	where string
}
