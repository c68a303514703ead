package exact

import (
	"fmt"

	"github.com/cespare/xxhash"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/memo"
)

// Outcomes is the distribution of the dealer's final hand: index 0 is a
// bust, indices 1 to 5 are totals 17 to 21.
type Outcomes [6]float64

const outcomeBust = 0

func outcomeIndex(total int) int {
	return total - 16
}

func (o Outcomes) Bust() float64 {
	return o[outcomeBust]
}

// Final is the probability of the dealer ending on total (17..21).
func (o Outcomes) Final(total int) float64 {
	if total < 17 || total > 21 {
		return 0
	}
	return o[outcomeIndex(total)]
}

func (o Outcomes) String() string {
	return fmt.Sprintf("bust %.4f 17 %.4f 18 %.4f 19 %.4f 20 %.4f 21 %.4f",
		o[0], o[1], o[2], o[3], o[4], o[5])
}

// standEV is the EV of standing on total against these outcomes.
func (o Outcomes) standEV(total int) float64 {
	if total > 21 {
		return -1
	}
	ev := o[outcomeBust]
	for t := 17; t <= 21; t++ {
		p := o[outcomeIndex(t)]
		switch {
		case total > t:
			ev += p
		case total < t:
			ev -= p
		}
	}
	return ev
}

// DealerKey identifies a dealer hand in progress. A one-card dealer hand is
// the upcard alone; the hole card is still to be drawn.
type DealerKey struct {
	total   uint8
	soft    bool
	oneCard bool
	counts  [deck.NumRanks]uint8
}

func (k DealerKey) Hash() uint64 {
	var b [3 + deck.NumRanks]byte
	b[0] = k.total
	if k.soft {
		b[1] = 1
	}
	if k.oneCard {
		b[2] = 1
	}
	copy(b[3:], k.counts[:])
	return xxhash.Sum64(b[:])
}

// NewDealerTable creates a dealer outcome table. A dealer table must only be
// shared between calculators whose rules agree on soft 17.
func NewDealerTable(capacity int) *memo.Table[DealerKey, Outcomes] {
	return memo.NewTable[DealerKey, Outcomes]("dealer", capacity, memo.DefaultShards, DealerKey.Hash)
}

// excludedHoleRank is the rank the hole card cannot be once the dealer has
// peeked and found no blackjack.
func excludedHoleRank(up deck.Rank) (deck.Rank, bool) {
	switch up {
	case deck.Ace:
		return deck.Ten, true
	case deck.Ten:
		return deck.Ace, true
	}
	return 0, false
}

// dealer computes the outcome distribution of a dealer hand drawing from d.
// The first card drawn to a one-card hand is the hole card and is conditioned
// on the dealer not having blackjack.
func (c *Calculator) dealer(ds hand.State, d deck.Composition) Outcomes {
	var out Outcomes
	total, soft := ds.Total()
	if total > 21 {
		out[outcomeBust] = 1
		return out
	}
	if !c.rules.DealerHits(total, soft) {
		out[outcomeIndex(total)] = 1
		return out
	}
	key := DealerKey{total: uint8(total), soft: soft, oneCard: ds.IsOneCard(), counts: d.Counts()}
	if c.dealers != nil {
		if o, ok := c.dealers.Get(key); ok {
			return o
		}
	}

	n := d.Total()
	excluded, hasExcluded := deck.Rank(0), false
	if ds.IsOneCard() {
		excluded, hasExcluded = excludedHoleRank(ds.First())
		if hasExcluded {
			n -= d.Remaining(excluded)
		}
	}
	if n <= 0 && !ds.IsOneCard() {
		// the shoe ran dry with the dealer still drawing; keep drawing from a
		// fresh one.
		d = c.rules.FullShoe()
		n = d.Total()
	}
	if n <= 0 {
		panic(outOfCards{where: "dealer draw"})
	}
	for _, r := range deck.Ranks {
		cnt := d.Remaining(r)
		if cnt == 0 || (hasExcluded && r == excluded) {
			continue
		}
		p := float64(cnt) / float64(n)
		sub := c.dealer(ds.Add(r), d.MustWithout(r))
		for i := range out {
			out[i] += p * sub[i]
		}
	}
	if c.dealers != nil {
		c.dealers.Put(key, out)
	}
	return out
}

// DealerOutcomes returns the final-hand distribution of a dealer showing up,
// given that the dealer does not have blackjack. unseen includes the hole
// card.
func (c *Calculator) DealerOutcomes(up deck.Rank, unseen deck.Composition) (o Outcomes, err error) {
	ctx := Context{Upcard: up, Unseen: unseen, Hands: 1}
	if unseen.Total() == 0 {
		return o, &InvariantError{Context: ctx, Reason: "empty composition"}
	}
	if noBlackjackWeight(up, unseen) == 0 {
		return o, &InvariantError{Context: ctx, Reason: "dealer must hold blackjack"}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = asInvariant(ctx, rec)
		}
	}()
	return c.dealer(hand.Single(up), unseen), nil
}
