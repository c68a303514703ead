package deck

import (
	"errors"
	"fmt"

	"lukechampine.com/frand"
)

// A Shoe is the real, physical pile of cards a worker deals from. Unlike a
// Composition, it is mutated as the game moves forward and draws at random.
// A Shoe is not safe for concurrent use; every worker owns its own.
type Shoe struct {
	definition Composition
	cards      Composition
	rng        *frand.RNG
}

// NewShoe creates a freshly shuffled shoe of `decks` decks.
func NewShoe(decks int) *Shoe {
	return newShoe(decks, frand.New())
}

// NewSeededShoe is NewShoe with a deterministic card order, for tests and
// reproducible runs.
func NewSeededShoe(decks int, seed [32]byte) *Shoe {
	return newShoe(decks, frand.NewCustom(seed[:], 1024, 12))
}

func newShoe(decks int, rng *frand.RNG) *Shoe {
	full := Full(decks)
	return &Shoe{definition: full, cards: full, rng: rng}
}

// Remaining is a snapshot of the undealt cards.
func (s *Shoe) Remaining() Composition {
	return s.cards
}

// Definition is the composition the shoe resets to.
func (s *Shoe) Definition() Composition {
	return s.definition
}

// DealtFraction is the fraction of the shoe that has been dealt.
func (s *Shoe) DealtFraction() float64 {
	return 1 - float64(s.cards.Total())/float64(s.definition.Total())
}

// Reset puts every card back.
func (s *Shoe) Reset() {
	s.cards = s.definition
}

// Draw deals one random card, weighted by the exact remaining counts.
func (s *Shoe) Draw() (Rank, error) {
	total := s.cards.Total()
	if total == 0 {
		return 0, errors.New("draw from an empty shoe")
	}
	idx := s.rng.Intn(total)
	for _, r := range Ranks {
		n := s.cards.Remaining(r)
		if idx < n {
			return r, s.cards.Draw(r)
		}
		idx -= n
	}
	// unreachable while counts and total agree.
	return 0, errors.New("shoe counts out of sync with total")
}

// Take removes a specific card, used to stack the shoe in tests and in the
// shell.
func (s *Shoe) Take(r Rank) error {
	return s.cards.Draw(r)
}

// Refill reshuffles every card except those in onTable, for a shoe that runs
// dry in the middle of a round.
func (s *Shoe) Refill(onTable Composition) error {
	if !s.definition.Contains(onTable) {
		return fmt.Errorf("cards on the table %v do not fit in the shoe %v", onTable, s.definition)
	}
	c := s.definition
	for _, r := range Ranks {
		c.counts[r] -= onTable.counts[r]
	}
	c.total -= onTable.total
	s.cards = c
	return nil
}
