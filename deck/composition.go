package deck

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MaxDecks is the largest shoe we can represent; 16 tens per deck must fit
// in a byte.
const MaxDecks = 15

var ErrRankExhausted = errors.New("no cards of that rank remain")

// A Composition is the exact number of undealt cards of every rank. It is a
// small value type: copying it is how hypothetical branches get their own
// snapshot without touching the real shoe.
type Composition struct {
	counts [NumRanks]uint8
	total  uint16
}

// NewComposition builds a composition from per-rank counts, indexed by Rank.
func NewComposition(counts [NumRanks]int) (Composition, error) {
	var c Composition
	for r, n := range counts {
		if n < 0 || n > 255 {
			return Composition{}, fmt.Errorf("count %d for rank %v out of range", n, Rank(r))
		}
		c.counts[r] = uint8(n)
		c.total += uint16(n)
	}
	return c, nil
}

// MustComposition is NewComposition for literals that are known to be valid.
func MustComposition(counts [NumRanks]int) Composition {
	c, err := NewComposition(counts)
	if err != nil {
		panic(err)
	}
	return c
}

// Full returns the composition of `decks` freshly shuffled 52-card decks.
func Full(decks int) Composition {
	var c Composition
	for _, r := range Ranks {
		if r == Ten {
			c.counts[r] = uint8(16 * decks)
		} else {
			c.counts[r] = uint8(4 * decks)
		}
	}
	c.total = uint16(52 * decks)
	return c
}

func (c Composition) Remaining(r Rank) int {
	return int(c.counts[r])
}

func (c Composition) Total() int {
	return int(c.total)
}

// Counts returns a copy of the per-rank counts.
func (c Composition) Counts() [NumRanks]uint8 {
	return c.counts
}

// Probability is the chance that the next card is of rank r. It is zero for
// an empty composition.
func (c Composition) Probability(r Rank) float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.counts[r]) / float64(c.total)
}

// Probabilities returns Probability for every rank in Ranks order.
func (c Composition) Probabilities() [NumRanks]float64 {
	var p [NumRanks]float64
	for _, r := range Ranks {
		p[r] = c.Probability(r)
	}
	return p
}

// ProbabilitySum sums Probabilities. It should be 1 for any non-empty
// composition.
func (c Composition) ProbabilitySum() float64 {
	p := c.Probabilities()
	return floats.Sum(p[:])
}

// Without returns a copy of the composition with one card of rank r removed.
func (c Composition) Without(r Rank) (Composition, error) {
	if c.counts[r] == 0 {
		return c, fmt.Errorf("remove %v from %v: %w", r, c, ErrRankExhausted)
	}
	c.counts[r]--
	c.total--
	return c, nil
}

// MustWithout is Without for callers that already checked Remaining(r) > 0.
// Removing a rank that is not there is a modeling bug, so it panics.
func (c Composition) MustWithout(r Rank) Composition {
	if c.counts[r] == 0 {
		panic(fmt.Sprintf("remove %v from %v: %v", r, c, ErrRankExhausted))
	}
	c.counts[r]--
	c.total--
	return c
}

// With returns a copy with one card of rank r added back.
func (c Composition) With(r Rank) Composition {
	c.counts[r]++
	c.total++
	return c
}

// Plus is c with every card of o added. Counts must stay within a uint8.
func (c Composition) Plus(o Composition) Composition {
	for _, r := range Ranks {
		c.counts[r] += o.counts[r]
	}
	c.total += o.total
	return c
}

// Draw removes one card of rank r in place.
func (c *Composition) Draw(r Rank) error {
	if c.counts[r] == 0 {
		return fmt.Errorf("draw %v from %v: %w", r, *c, ErrRankExhausted)
	}
	c.counts[r]--
	c.total--
	return nil
}

// Remove draws every rank in rs, stopping at the first failure.
func (c *Composition) Remove(rs ...Rank) error {
	for _, r := range rs {
		if err := c.Draw(r); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether every count in c is at most the count in o.
func (c Composition) Contains(o Composition) bool {
	for _, r := range Ranks {
		if o.counts[r] > c.counts[r] {
			return false
		}
	}
	return true
}

// String renders the counts in rank order, e.g. "A:4 2:4 ... T:16 (52)".
func (c Composition) String() string {
	var sb strings.Builder
	for _, r := range Ranks {
		fmt.Fprintf(&sb, "%v:%d ", r, c.counts[r])
	}
	fmt.Fprintf(&sb, "(%d)", c.total)
	return sb.String()
}
