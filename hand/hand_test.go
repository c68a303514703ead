package hand

import (
	"math/rand/v2"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/rules"
)

func mustParse(s string) Hand {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

func TestTotals(t *testing.T) {
	is := is.New(t)
	type tc struct {
		cards string
		total int
		soft  bool
	}
	for _, c := range []tc{
		{"A", 11, true},
		{"AT", 21, true},
		{"AA", 12, true},
		{"A6", 17, true},
		{"A6T", 17, false},
		{"A5A", 17, true},
		{"AAAA", 14, true},
		{"T6", 16, false},
		{"T6A", 17, false},
		{"T6AT", 27, false},
		{"55A", 21, true},
		{"88", 16, false},
	} {
		h := mustParse(c.cards)
		total, soft := h.Total()
		is.Equal(total, c.total)
		is.Equal(soft, c.soft)
		st, ss := h.State().Total()
		is.Equal(st, c.total)
		is.Equal(ss, c.soft)
	}
}

// The incremental State must agree with recomputing from the cards for
// any sequence that has not busted.
func TestStateMatchesCards(t *testing.T) {
	is := is.New(t)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20000; i++ {
		h := New()
		for !h.IsBust() && h.Len() < 8 {
			h = h.Add(deck.Rank(rng.IntN(deck.NumRanks)))
			total, soft := h.Total()
			st, ss := h.State().Total()
			is.Equal(total, st)
			is.Equal(soft, ss)
			is.Equal(h.IsBust(), h.State().IsBust())
			p, ok := h.IsPair()
			sp, sok := h.State().Pair()
			is.Equal(ok, sok)
			if ok {
				is.Equal(p, sp)
			}
		}
	}
}

func TestStateCanonical(t *testing.T) {
	is := is.New(t)
	// same totals reached through different cards are the same state once
	// there are three cards.
	is.Equal(mustParse("T52").State(), mustParse("872").State())
	is.Equal(mustParse("T7").State(), mustParse("98").State())
	is.True(mustParse("88").State() != mustParse("T6").State())
	is.True(mustParse("A6").State() != mustParse("T7").State())
}

func TestAddDoesNotMutate(t *testing.T) {
	is := is.New(t)
	h := mustParse("T")
	h2 := h.Add(deck.Six)
	is.Equal(h.Len(), 1)
	is.Equal(h2.Len(), 2)
	is.Equal(h2.String(), "T6")
}

func TestBlackjack(t *testing.T) {
	is := is.New(t)
	is.True(mustParse("AT").IsBlackjack())
	is.True(!mustParse("A55").IsBlackjack())
	a, _, err := mustParse("AA").SplitOff()
	is.NoErr(err)
	is.True(!a.Add(deck.Ten).IsBlackjack())
	is.True(a.FromSplit())
}

func TestSplitLimits(t *testing.T) {
	is := is.New(t)
	r := rules.MustPreset(rules.Preset6DeckH17DASDAny)
	eights := mustParse("88")
	aces := mustParse("AA")
	is.True(eights.CanSplit(r, 1))
	is.True(eights.CanSplit(r, 3))
	is.True(!eights.CanSplit(r, 4))
	is.True(aces.CanSplit(r, 1))
	is.True(!aces.CanSplit(r, 2))
	is.True(!mustParse("T6").CanSplit(r, 1))
	is.True(!mustParse("888").CanSplit(r, 1))

	_, _, err := mustParse("T6").SplitOff()
	is.True(err != nil)
}

func TestDoubleRules(t *testing.T) {
	is := is.New(t)
	das := rules.MustPreset(rules.Preset6DeckH17DASDAny)
	d10 := rules.MustPreset(rules.Preset1DeckH17NDASD10)

	is.True(mustParse("A7").CanDouble(das, 1))
	is.True(mustParse("A7").CanDouble(das, 2))
	is.True(!mustParse("A7").CanDouble(d10, 1))
	is.True(mustParse("64").CanDouble(d10, 1))
	is.True(mustParse("65").CanDouble(d10, 1))
	is.True(!mustParse("63").CanDouble(d10, 1))
	is.True(!mustParse("64").CanDouble(d10, 2))
	is.True(!mustParse("532").CanDouble(das, 1))
}
