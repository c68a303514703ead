// Package exact computes the exact expected value of every blackjack action
// by enumerating all remaining card sequences.
//
// All EVs assume the dealer peeks: with an Ace or Ten up they are conditional
// on the dealer not holding blackjack, which is the only case in which the
// player gets to act. Every probability in the tree carries that condition.
package exact

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/rules"
)

// Key is the memoization key of a player decision. Everything that can
// change the EV of any action is in it, and nothing else.
type Key struct {
	state hand.State
	// split is the canonical number-of-hands state. Pairs need the exact
	// count (it bounds resplitting); other two-card hands only need to know
	// whether they came from a split (double after split); larger hands
	// need nothing.
	split  uint8
	upcard deck.Rank
	counts [deck.NumRanks]uint8
}

func canonicalSplit(st hand.State, hands int) uint8 {
	if _, ok := st.Pair(); ok {
		return uint8(hands)
	}
	if st.IsTwoCard() {
		return uint8(min(hands, 2))
	}
	return 0
}

func makeKey(st hand.State, hands int, up deck.Rank, d deck.Composition) Key {
	return Key{state: st, split: canonicalSplit(st, hands), upcard: up, counts: d.Counts()}
}

func (k Key) Hash() uint64 {
	var b [6 + deck.NumRanks]byte
	binary.LittleEndian.PutUint32(b[:4], k.state.Code())
	b[4] = k.split
	b[5] = byte(k.upcard)
	copy(b[6:], k.counts[:])
	return xxhash.Sum64(b[:])
}

// NewPlayerTable creates a player decision table. Like a dealer table it is
// only valid for calculators sharing one rule set.
func NewPlayerTable(capacity int) *memo.Table[Key, Result] {
	return memo.NewTable[Key, Result]("player", capacity, memo.DefaultShards, Key.Hash)
}

// Calculator evaluates decisions under a fixed rule set. It is safe for
// concurrent use; its tables are shared by all callers.
type Calculator struct {
	rules   rules.RuleSet
	players *memo.Table[Key, Result]
	dealers *memo.Table[DealerKey, Outcomes]
	noMemo  bool
}

type Option func(*Calculator)

func WithPlayerTable(t *memo.Table[Key, Result]) Option {
	return func(c *Calculator) { c.players = t }
}

func WithDealerTable(t *memo.Table[DealerKey, Outcomes]) Option {
	return func(c *Calculator) { c.dealers = t }
}

// WithoutMemo disables both tables. Only useful for testing small
// compositions; a full shoe takes far too long without memoization.
func WithoutMemo() Option {
	return func(c *Calculator) { c.noMemo = true }
}

func NewCalculator(r rules.RuleSet, opts ...Option) (*Calculator, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules %v: %w", r.Name, err)
	}
	c := &Calculator{rules: r}
	for _, o := range opts {
		o(c)
	}
	if c.noMemo {
		c.players, c.dealers = nil, nil
		return c, nil
	}
	if c.players == nil {
		c.players = NewPlayerTable(memo.DefaultCapacity)
	}
	if c.dealers == nil {
		c.dealers = NewDealerTable(memo.DefaultCapacity)
	}
	return c, nil
}

// Approximate memory per table entry, map overhead included.
const (
	PlayerEntrySize = 128
	DealerEntrySize = 112
)

// NewCalculatorForMemory sizes the player and dealer tables to share
// `fraction` of system memory between them.
func NewCalculatorForMemory(r rules.RuleSet, fraction float64) (*Calculator, error) {
	return NewCalculator(r,
		WithPlayerTable(NewPlayerTable(memo.CapacityForMemory(fraction*0.75, PlayerEntrySize))),
		WithDealerTable(NewDealerTable(memo.CapacityForMemory(fraction*0.25, DealerEntrySize))))
}

func (c *Calculator) Rules() rules.RuleSet {
	return c.rules
}

// TableStats returns the player and dealer table counters. Both are zero
// when memoization is off.
func (c *Calculator) TableStats() (memo.Stats, memo.Stats) {
	var p, d memo.Stats
	if c.players != nil {
		p = c.players.Stats()
	}
	if c.dealers != nil {
		d = c.dealers.Stats()
	}
	return p, d
}

// ResetTables empties both tables.
func (c *Calculator) ResetTables() {
	if c.players != nil {
		c.players.Reset()
	}
	if c.dealers != nil {
		c.dealers.Reset()
	}
}

// Evaluate returns the EV of every action available at ctx.
func (c *Calculator) Evaluate(ctx Context) (res Result, err error) {
	if err := c.check(ctx); err != nil {
		return Result{}, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = asInvariant(ctx, rec)
			log.Error().Err(err).Msg("evaluate-failed")
		}
	}()
	return c.evaluate(ctx.State, ctx.Hands, ctx.Upcard, ctx.Unseen), nil
}

func (c *Calculator) check(ctx Context) error {
	fail := func(reason string) error {
		return &InvariantError{Context: ctx, Reason: reason}
	}
	switch {
	case ctx.Unseen.Total() == 0:
		return fail("empty composition")
	case ctx.State.IsBust():
		return fail("hand is already bust")
	case ctx.State.IsOneCard() || ctx.State == hand.Empty:
		return fail("a decision needs at least two cards")
	case ctx.Hands < 1 || ctx.Hands > c.rules.SplitHandsLimit:
		return fail(fmt.Sprintf("hands must be between 1 and %d", c.rules.SplitHandsLimit))
	case !c.rules.FullShoe().Contains(ctx.Unseen):
		return fail("unseen cards do not fit in the shoe")
	case noBlackjackWeight(ctx.Upcard, ctx.Unseen) == 0:
		return fail("dealer must hold blackjack")
	}
	return nil
}

func asInvariant(ctx Context, rec any) error {
	switch v := rec.(type) {
	case outOfCards:
		return &InvariantError{Context: ctx, Reason: "ran out of cards during " + v.where}
	case error:
		return &InvariantError{Context: ctx, Reason: v.Error()}
	default:
		return &InvariantError{Context: ctx, Reason: fmt.Sprint(v)}
	}
}

// noBlackjackWeight is the number of unseen cards the hole card may be, given
// the dealer has checked for blackjack.
func noBlackjackWeight(up deck.Rank, d deck.Composition) int {
	if ex, ok := excludedHoleRank(up); ok {
		return d.Total() - d.Remaining(ex)
	}
	return d.Total()
}

// drawWeights returns the probability of each rank being the player's next
// card, conditioned on the dealer not holding blackjack. The hole card is
// one of the unseen cards but cannot be the blackjack rank, so that rank is
// a little more likely to come to the player than its share of the unseen
// cards, and every other rank a little less.
func drawWeights(up deck.Rank, d deck.Composition) [deck.NumRanks]float64 {
	var w [deck.NumRanks]float64
	n := d.Total()
	// the player cannot draw the hole card.
	if n < 2 {
		panic(outOfCards{where: "player draw"})
	}
	ex, peeks := excludedHoleRank(up)
	if !peeks {
		for _, r := range deck.Ranks {
			w[r] = d.Probability(r)
		}
		return w
	}
	b := d.Remaining(ex)
	denom := float64(n-1) * float64(n-b)
	for _, r := range deck.Ranks {
		cnt := d.Remaining(r)
		if cnt == 0 {
			continue
		}
		bb := b
		if r == ex {
			bb--
		}
		w[r] = float64(cnt) * float64(n-1-bb) / denom
	}
	return w
}

// drawable tops d up with a fresh shoe when nothing but the hole card is
// left for the player to draw, the way the table reshuffles a shoe that
// runs dry mid-round.
func (c *Calculator) drawable(d deck.Composition) deck.Composition {
	if d.Total() >= 2 {
		return d
	}
	return d.Plus(c.rules.FullShoe())
}

func (c *Calculator) evaluate(st hand.State, hands int, up deck.Rank, d deck.Composition) Result {
	var key Key
	if c.players != nil {
		key = makeKey(st, hands, up, d)
		if r, ok := c.players.Get(key); ok {
			return r
		}
	}
	res := newResult()
	if st.IsBust() {
		res.EVs[hand.Stand] = -1
		res.Best = hand.Stand
		return res
	}
	res.EVs[hand.Stand] = c.stand(st, up, d)
	res.EVs[hand.Hit] = c.hit(st, hands, up, d)
	if st.CanDouble(c.rules, hands) {
		res.EVs[hand.Double] = c.double(st, up, d)
	}
	if st.CanSplit(c.rules, hands) {
		res.EVs[hand.Split] = c.split(st, hands, up, d)
	}
	res.choose()
	if c.players != nil {
		c.players.Put(key, res)
	}
	return res
}

func (c *Calculator) stand(st hand.State, up deck.Rank, d deck.Composition) float64 {
	if st.IsBust() {
		return -1
	}
	return c.dealer(hand.Single(up), d).standEV(st.Value())
}

func (c *Calculator) hit(st hand.State, hands int, up deck.Rank, d deck.Composition) float64 {
	d = c.drawable(d)
	w := drawWeights(up, d)
	ev := 0.0
	for _, r := range deck.Ranks {
		if w[r] == 0 {
			continue
		}
		ev += w[r] * c.evaluate(st.Add(r), hands, up, d.MustWithout(r)).Value()
	}
	return ev
}

func (c *Calculator) double(st hand.State, up deck.Rank, d deck.Composition) float64 {
	d = c.drawable(d)
	w := drawWeights(up, d)
	ev := 0.0
	for _, r := range deck.Ranks {
		if w[r] == 0 {
			continue
		}
		ev += w[r] * c.stand(st.Add(r), up, d.MustWithout(r))
	}
	return 2 * ev
}

// split returns the combined EV of both hands. Each hand is evaluated on its
// own against the composition left after its second card; the two are
// symmetric so the total is twice one hand.
func (c *Calculator) split(st hand.State, hands int, up deck.Rank, d deck.Composition) float64 {
	p, _ := st.Pair()
	standOnly := p == deck.Ace && !c.rules.HitSplitAces
	d = c.drawable(d)
	w := drawWeights(up, d)
	ev := 0.0
	for _, r := range deck.Ranks {
		if w[r] == 0 {
			continue
		}
		sub := hand.TwoCard(p, r)
		rest := d.MustWithout(r)
		if standOnly {
			ev += w[r] * c.stand(sub, up, rest)
		} else {
			ev += w[r] * c.evaluate(sub, hands+1, up, rest).Value()
		}
	}
	return 2 * ev
}

// Insurance is the EV of a one-unit insurance bet, which pays
// InsurancePayout to one when the hole card is a ten.
func (c *Calculator) Insurance(up deck.Rank, unseen deck.Composition) (float64, error) {
	ctx := Context{Upcard: up, Unseen: unseen, Hands: 1}
	if up != deck.Ace {
		return 0, &InvariantError{Context: ctx, Reason: "insurance is only offered against an ace"}
	}
	if unseen.Total() == 0 {
		return 0, &InvariantError{Context: ctx, Reason: "empty composition"}
	}
	p := unseen.Probability(deck.Ten)
	return p*c.rules.InsurancePayout - (1 - p), nil
}

// CompositionPlay evaluates h against a fresh shoe with only the player's
// cards and the upcard removed.
func (c *Calculator) CompositionPlay(h hand.Hand, hands int, up deck.Rank) (Result, error) {
	unseen := c.rules.FullShoe()
	if err := unseen.Remove(h.Cards()...); err != nil {
		return Result{}, err
	}
	if err := unseen.Draw(up); err != nil {
		return Result{}, err
	}
	return c.Evaluate(Context{State: h.State(), Hands: hands, Upcard: up, Unseen: unseen})
}
