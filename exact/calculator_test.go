package exact

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/rules"
)

var singleDeck = rules.MustPreset(rules.Preset1DeckH17NDASD10)

func newCalc(t *testing.T, r rules.RuleSet, opts ...Option) *Calculator {
	t.Helper()
	c, err := NewCalculator(r, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// freshMinus is a fresh shoe with the given cards removed.
func freshMinus(r rules.RuleSet, cards ...deck.Rank) deck.Composition {
	c := r.FullShoe()
	if err := c.Remove(cards...); err != nil {
		panic(err)
	}
	return c
}

func TestStandAgainstCertainTwenty(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	var counts [deck.NumRanks]int
	counts[deck.Ten] = 10
	unseen := deck.MustComposition(counts)

	out, err := calc.DealerOutcomes(deck.Ten, unseen)
	is.NoErr(err)
	is.Equal(out.Final(20), 1.0)

	res, err := calc.Evaluate(Context{State: hand.TwoCard(deck.Ten, deck.Nine), Hands: 1,
		Upcard: deck.Ten, Unseen: unseen})
	is.NoErr(err)
	is.Equal(res.EVs[hand.Stand], -1.0)

	res, err = calc.Evaluate(Context{State: hand.TwoCard(deck.Ten, deck.Ten), Hands: 1,
		Upcard: deck.Ten, Unseen: unseen})
	is.NoErr(err)
	is.Equal(res.EVs[hand.Stand], 0.0)
	is.Equal(res.Best, hand.Stand)
}

func TestStandClosedForm(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	var counts [deck.NumRanks]int
	counts[deck.Ten] = 3
	counts[deck.Nine] = 1
	unseen := deck.MustComposition(counts)

	// hole card is a ten 3/4 of the time (20) and a nine otherwise (19).
	out, err := calc.DealerOutcomes(deck.Ten, unseen)
	is.NoErr(err)
	is.Equal(out.Final(20), 0.75)
	is.Equal(out.Final(19), 0.25)

	res, err := calc.Evaluate(Context{State: hand.TwoCard(deck.Ten, deck.Nine), Hands: 1,
		Upcard: deck.Ten, Unseen: unseen})
	is.NoErr(err)
	is.Equal(res.EVs[hand.Stand], -0.75)
	is.Equal(res.EVs[hand.Hit], -1.0)
	is.Equal(res.Best, hand.Stand)
	_, err = res.EV(hand.Double)
	is.True(errors.Is(err, ErrIllegalAction))
}

func TestSplitEightsAgainstSix(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	unseen := freshMinus(singleDeck, deck.Eight, deck.Eight, deck.Six)
	ctx := Context{State: hand.TwoCard(deck.Eight, deck.Eight), Hands: 1, Upcard: deck.Six, Unseen: unseen}

	res, err := calc.Evaluate(ctx)
	is.NoErr(err)
	is.Equal(res.Best, hand.Split)
	is.True(res.EVs[hand.Split] > res.EVs[hand.Hit])
	is.True(res.EVs[hand.Split] > res.EVs[hand.Stand])
	is.True(!res.Legal(hand.Double))

	// the split EV is the sum of the two sub-hands, each played on its own.
	sum := 0.0
	for _, r := range deck.Ranks {
		if unseen.Remaining(r) == 0 {
			continue
		}
		sub, err := calc.Evaluate(Context{State: hand.TwoCard(deck.Eight, r), Hands: 2,
			Upcard: deck.Six, Unseen: unseen.MustWithout(r)})
		is.NoErr(err)
		sum += unseen.Probability(r) * sub.Value()
	}
	assert.InDelta(t, 2*sum, res.EVs[hand.Split], 1e-12)

	// composition play gives the same answer from the cards alone.
	cp, err := calc.CompositionPlay(hand.New(deck.Eight, deck.Eight), 1, deck.Six)
	is.NoErr(err)
	is.Equal(cp, res)
}

func TestNoResplit(t *testing.T) {
	is := is.New(t)
	r := singleDeck
	r.Name = "no-resplit"
	r.SplitHandsLimit = 2
	calc := newCalc(t, r)
	unseen := freshMinus(r, deck.Eight, deck.Eight, deck.Six)

	// a second pair of eights after splitting cannot be split again.
	sub, err := calc.Evaluate(Context{State: hand.TwoCard(deck.Eight, deck.Eight), Hands: 2,
		Upcard: deck.Six, Unseen: unseen.MustWithout(deck.Eight)})
	is.NoErr(err)
	_, err = sub.EV(hand.Split)
	is.True(errors.Is(err, ErrIllegalAction))

	capped, err := calc.Evaluate(Context{State: hand.TwoCard(deck.Eight, deck.Eight), Hands: 1,
		Upcard: deck.Six, Unseen: unseen})
	is.NoErr(err)
	full, err := newCalc(t, singleDeck).Evaluate(Context{State: hand.TwoCard(deck.Eight, deck.Eight),
		Hands: 1, Upcard: deck.Six, Unseen: unseen})
	is.NoErr(err)
	is.True(capped.Legal(hand.Split))
	is.True(full.EVs[hand.Split] >= capped.EVs[hand.Split])
	// nothing but the split branch changes.
	is.Equal(full.EVs[hand.Stand], capped.EVs[hand.Stand])
	is.Equal(full.EVs[hand.Hit], capped.EVs[hand.Hit])
}

func TestDoubleElevenAgainstSix(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	cp, err := calc.CompositionPlay(hand.New(deck.Six, deck.Five), 1, deck.Six)
	is.NoErr(err)
	is.Equal(cp.Best, hand.Double)
	is.True(cp.Value() > 0)
}

func TestInsurance(t *testing.T) {
	is := is.New(t)
	unseen := freshMinus(singleDeck, deck.Seven, deck.Eight, deck.Ace)
	is.Equal(unseen.Total(), 49)

	calc := newCalc(t, singleDeck)
	ev, err := calc.Insurance(deck.Ace, unseen)
	is.NoErr(err)
	assert.InDelta(t, 16.0/49*2-(1-16.0/49), ev, 1e-12)

	evenMoney := singleDeck
	evenMoney.InsurancePayout = 1
	calc = newCalc(t, evenMoney)
	ev, err = calc.Insurance(deck.Ace, unseen)
	is.NoErr(err)
	assert.InDelta(t, 16.0/49*2-1, ev, 1e-12)

	_, err = calc.Insurance(deck.Six, unseen)
	var ie *InvariantError
	is.True(errors.As(err, &ie))
}

func TestDealerOutcomesSumToOne(t *testing.T) {
	calc := newCalc(t, singleDeck)
	for _, up := range deck.Ranks {
		out, err := calc.DealerOutcomes(up, freshMinus(singleDeck, up))
		if err != nil {
			t.Fatal(err)
		}
		sum := 0.0
		for _, p := range out {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "upcard %v", up)
	}
}

func TestDrawWeightsSumToOne(t *testing.T) {
	d := freshMinus(singleDeck, deck.Ace, deck.Nine, deck.Seven)
	for _, up := range []deck.Rank{deck.Ace, deck.Ten, deck.Five} {
		w := drawWeights(up, d)
		sum := 0.0
		for _, p := range w {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
	// with an ace up the hole card is known not to be a ten, so the player
	// is more likely to draw one than its share of the unseen cards.
	w := drawWeights(deck.Ace, d)
	assert.Greater(t, w[deck.Ten], d.Probability(deck.Ten))
	assert.Less(t, w[deck.Five], d.Probability(deck.Five))
}

func TestTieBreakPriority(t *testing.T) {
	is := is.New(t)
	r := newResult()
	r.EVs[hand.Stand] = 0.25
	r.EVs[hand.Hit] = 0.25
	r.EVs[hand.Double] = 0.25
	r.choose()
	is.Equal(r.Best, hand.Stand)
	r.EVs[hand.Double] = 0.5
	r.EVs[hand.Split] = 0.5
	r.choose()
	is.Equal(r.Best, hand.Double)
}

func TestEvaluateErrors(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	fresh := singleDeck.FullShoe()
	var tens [deck.NumRanks]int
	tens[deck.Ten] = 5
	var twos [deck.NumRanks]int
	twos[deck.Two] = 2

	for _, ctx := range []Context{
		{State: hand.TwoCard(deck.Ten, deck.Six), Hands: 1, Upcard: deck.Six},
		{State: hand.TwoCard(deck.Ten, deck.Six).Add(deck.Ten), Hands: 1, Upcard: deck.Six, Unseen: fresh},
		{State: hand.Single(deck.Ten), Hands: 1, Upcard: deck.Six, Unseen: fresh},
		{State: hand.TwoCard(deck.Ten, deck.Six), Hands: 0, Upcard: deck.Six, Unseen: fresh},
		{State: hand.TwoCard(deck.Ten, deck.Six), Hands: 1, Upcard: deck.Ace, Unseen: deck.MustComposition(tens)},
		{State: hand.TwoCard(deck.Two, deck.Two), Hands: 1, Upcard: deck.Two, Unseen: deck.MustComposition(twos)},
		{State: hand.TwoCard(deck.Ten, deck.Six), Hands: 1, Upcard: deck.Six, Unseen: deck.Full(2)},
	} {
		_, err := calc.Evaluate(ctx)
		var ie *InvariantError
		is.True(errors.As(err, &ie))
	}
}

func TestExhaustedCompositionsSettle(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	cases := []Context{
		{State: hand.TwoCard(deck.Two, deck.Two), Hands: 1, Upcard: deck.Two,
			Unseen: deck.MustComposition([deck.NumRanks]int{deck.Two: 2})},
		{State: hand.TwoCard(deck.Ten, deck.Two), Hands: 1, Upcard: deck.Six,
			Unseen: deck.MustComposition([deck.NumRanks]int{deck.Ace: 2, deck.Two: 2, deck.Three: 1, deck.Ten: 1})},
		{State: hand.TwoCard(deck.Five, deck.Six), Hands: 1, Upcard: deck.Ace,
			Unseen: deck.MustComposition([deck.NumRanks]int{deck.Four: 1, deck.Ten: 1})},
	}
	for _, ctx := range cases {
		res, err := calc.Evaluate(ctx)
		is.NoErr(err)
		for _, a := range hand.Actions {
			if !res.Legal(a) {
				continue
			}
			ev := res.EVs[a]
			is.True(!math.IsNaN(ev))
			is.True(ev >= -8 && ev <= 8)
		}
		is.True(res.EVs[hand.Stand] >= -1 && res.EVs[hand.Stand] <= 1)
	}

	// the dealer hits soft 17 with nothing left to draw.
	o, err := calc.DealerOutcomes(deck.Six, deck.MustComposition([deck.NumRanks]int{deck.Ace: 1}))
	is.NoErr(err)
	sum := 0.0
	for _, p := range o {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-9)
	is.True(o[0] > 0)
}

// randomHighCardContext builds a decision over a small composition of
// sixes through tens (and maybe an ace upcard) so that the unmemoized tree
// stays small.
func randomHighCardContext(rng *rand.Rand) Context {
	for {
		var counts [deck.NumRanks]int
		for r := deck.Six; r <= deck.Nine; r++ {
			counts[r] = rng.IntN(5)
		}
		counts[deck.Ten] = rng.IntN(9)
		c := deck.MustComposition(counts)
		if c.Total() < 10 {
			continue
		}
		high := func() deck.Rank { return deck.Six + deck.Rank(rng.IntN(5)) }
		up := high()
		if rng.IntN(4) == 0 {
			up = deck.Ace
		}
		st := hand.TwoCard(high(), high())
		if rng.IntN(3) == 0 {
			p := high()
			st = hand.TwoCard(p, p)
		}
		hands := 1 + rng.IntN(2)
		return Context{State: st, Hands: hands, Upcard: up, Unseen: c}
	}
}

func TestMemoMatchesNoMemo(t *testing.T) {
	is := is.New(t)
	r := rules.MustPreset(rules.Preset6DeckH17DASDAny)
	memoized := newCalc(t, r, WithPlayerTable(NewPlayerTable(1<<16)), WithDealerTable(NewDealerTable(1<<16)))
	plain := newCalc(t, r, WithoutMemo())
	rng := rand.New(rand.NewPCG(42, 7))

	for i := 0; i < 200; i++ {
		ctx := randomHighCardContext(rng)
		want, err := plain.Evaluate(ctx)
		is.NoErr(err)
		got, err := memoized.Evaluate(ctx)
		is.NoErr(err)
		is.Equal(got, want)
		// and again, now straight from the table.
		again, err := memoized.Evaluate(ctx)
		is.NoErr(err)
		is.Equal(again, want)
		for _, ev := range want.EVs {
			is.True(!math.IsNaN(ev))
		}
	}
	ps, ds := memoized.TableStats()
	is.True(ps.Hits > 0)
	is.True(ds.Hits > 0)
}

func TestDeterminism(t *testing.T) {
	is := is.New(t)
	calc := newCalc(t, singleDeck)
	ctx := Context{State: hand.TwoCard(deck.Ten, deck.Six), Hands: 1, Upcard: deck.Ten,
		Unseen: freshMinus(singleDeck, deck.Ten, deck.Six, deck.Ten)}
	first, err := calc.Evaluate(ctx)
	is.NoErr(err)
	calc.ResetTables()
	second, err := calc.Evaluate(ctx)
	is.NoErr(err)
	is.Equal(first, second)
}
