// Package hand represents player and dealer hands. A Hand keeps the actual
// cards; a State is the small projection of a hand that decides what can
// happen next, and is what the exact enumerator recurses over.
package hand

import (
	"fmt"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/rules"
)

// A State is everything about a hand that matters for play: its total,
// whether an ace counts 11, and whether it is still a two-card hand (or a
// pair). Two hands with equal States are interchangeable for any decision.
//
// States are canonical: the first card is only remembered while it can
// still matter (a one-card hand, or a pair), so == on States is equality of
// decision situations.
type State struct {
	total uint8
	soft  bool
	// n is the number of cards, saturating at 3.
	n     uint8
	first deck.Rank
	pair  bool
}

// Empty is the state of a hand with no cards.
var Empty = State{}

// Single is a one-card hand; a dealer's upcard or one half of a split.
func Single(r deck.Rank) State {
	return Empty.Add(r)
}

// TwoCard is the state of the two-card hand a, b.
func TwoCard(a, b deck.Rank) State {
	return Empty.Add(a).Add(b)
}

// Add returns the state after drawing r.
func (s State) Add(r deck.Rank) State {
	prevSoft := s.soft
	total := int(s.total) + r.Value()
	soft := s.soft
	if total > 21 && prevSoft {
		total -= 10
		soft = false
	}
	if r == deck.Ace && total <= 11 {
		total += 10
		soft = true
	}
	ns := State{total: uint8(total), soft: soft, n: s.n + 1}
	if ns.n > 3 {
		ns.n = 3
	}
	switch ns.n {
	case 1:
		ns.first = r
	case 2:
		if s.first == r {
			ns.pair = true
			ns.first = r
		}
	}
	return ns
}

// Total returns the best total and whether it is soft.
func (s State) Total() (int, bool) {
	return int(s.total), s.soft
}

func (s State) Value() int {
	return int(s.total)
}

func (s State) Soft() bool {
	return s.soft
}

func (s State) IsBust() bool {
	return s.total > 21
}

func (s State) IsOneCard() bool {
	return s.n == 1
}

func (s State) IsTwoCard() bool {
	return s.n == 2
}

// Pair returns the paired rank of a two-card pair.
func (s State) Pair() (deck.Rank, bool) {
	return s.first, s.pair
}

// First is the rank of a one-card hand.
func (s State) First() deck.Rank {
	return s.first
}

// CanSplit reports whether a pair may be split when the player already has
// `hands` hands this round.
func (s State) CanSplit(r rules.RuleSet, hands int) bool {
	p, ok := s.Pair()
	if !ok {
		return false
	}
	limit := r.SplitHandsLimit
	if p == deck.Ace {
		limit = r.SplitAcesLimit
	}
	return hands < limit
}

// CanDouble reports whether the hand may be doubled. Once a player has
// split, `hands` is above 1 and double-after-split rules apply.
func (s State) CanDouble(r rules.RuleSet, hands int) bool {
	if !s.IsTwoCard() {
		return false
	}
	if hands > 1 && !r.DoubleAfterSplit {
		return false
	}
	if r.DoubleAnyTwo {
		return true
	}
	return !s.soft && int(s.total) >= r.DoubleMinTotal && s.total <= 11
}

// Code packs the state into an integer. Distinct states have distinct codes.
func (s State) Code() uint32 {
	c := uint32(s.total) | uint32(s.n)<<8 | uint32(s.first)<<10
	if s.soft {
		c |= 1 << 14
	}
	if s.pair {
		c |= 1 << 15
	}
	return c
}

func (s State) String() string {
	if s.pair {
		return fmt.Sprintf("pair %v", s.first)
	}
	kind := "hard"
	if s.soft {
		kind = "soft"
	}
	return fmt.Sprintf("%s %d", kind, s.total)
}
