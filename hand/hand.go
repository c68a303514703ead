package hand

import (
	"errors"
	"strings"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/rules"
)

// A Hand is the cards dealt to one player hand (or the dealer), in order.
// Totals are always derived from the cards; the only other thing a hand
// remembers is whether it was produced by a split.
type Hand struct {
	cards     []deck.Rank
	fromSplit bool
}

func New(cards ...deck.Rank) Hand {
	return Hand{cards: append([]deck.Rank(nil), cards...)}
}

// Parse builds a hand from a string like "A8" or "T,6".
func Parse(s string) (Hand, error) {
	rs, err := deck.ParseRanks(s)
	if err != nil {
		return Hand{}, err
	}
	return New(rs...), nil
}

// Add returns a new hand with r appended. The receiver is not modified.
func (h Hand) Add(r deck.Rank) Hand {
	cards := make([]deck.Rank, len(h.cards)+1)
	copy(cards, h.cards)
	cards[len(h.cards)] = r
	return Hand{cards: cards, fromSplit: h.fromSplit}
}

func (h Hand) Cards() []deck.Rank {
	return append([]deck.Rank(nil), h.cards...)
}

func (h Hand) Len() int {
	return len(h.cards)
}

func (h Hand) Card(i int) deck.Rank {
	return h.cards[i]
}

func (h Hand) FromSplit() bool {
	return h.fromSplit
}

// Total returns the best total and whether an ace is being counted as 11.
func (h Hand) Total() (int, bool) {
	total := 0
	hasAce := false
	for _, c := range h.cards {
		total += c.Value()
		if c == deck.Ace {
			hasAce = true
		}
	}
	if hasAce && total <= 11 {
		return total + 10, true
	}
	return total, false
}

func (h Hand) Value() int {
	t, _ := h.Total()
	return t
}

// IsPair reports whether the hand is exactly two cards of the same rank.
func (h Hand) IsPair() (deck.Rank, bool) {
	if len(h.cards) == 2 && h.cards[0] == h.cards[1] {
		return h.cards[0], true
	}
	return 0, false
}

func (h Hand) IsBust() bool {
	return h.Value() > 21
}

// IsBlackjack is a two-card 21 that did not come from a split.
func (h Hand) IsBlackjack() bool {
	return !h.fromSplit && len(h.cards) == 2 && h.Value() == 21
}

// State is the decision projection of the hand.
func (h Hand) State() State {
	s := Empty
	for _, c := range h.cards {
		s = s.Add(c)
	}
	return s
}

func (h Hand) CanSplit(r rules.RuleSet, hands int) bool {
	return h.State().CanSplit(r, hands)
}

func (h Hand) CanDouble(r rules.RuleSet, hands int) bool {
	return h.State().CanDouble(r, hands)
}

// SplitOff splits a pair into two one-card hands. The caller deals the
// second card to each.
func (h Hand) SplitOff() (Hand, Hand, error) {
	p, ok := h.IsPair()
	if !ok {
		return Hand{}, Hand{}, errors.New("only a pair can be split: " + h.String())
	}
	a := Hand{cards: []deck.Rank{p}, fromSplit: true}
	b := Hand{cards: []deck.Rank{p}, fromSplit: true}
	return a, b, nil
}

func (h Hand) String() string {
	var sb strings.Builder
	for _, c := range h.cards {
		sb.WriteString(c.String())
	}
	return sb.String()
}
