package sim

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/exact"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/rules"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/strategy"
)

// insuranceBet is the size of an insurance bet, half the initial wager.
const insuranceBet = 0.5

type seat struct {
	h   hand.Hand
	bet float64
}

type round struct {
	s     *Simulator
	ctx   context.Context
	shoe  *deck.Shoe
	p     *stats.Partial
	table deck.Composition
	up    deck.Rank
	hole  deck.Rank
	net   float64
}

// PlayRound plays a single round from shoe and tallies it into p. If the
// shoe runs out during the round, the cards not on the table are shuffled
// back in.
func (s *Simulator) PlayRound(ctx context.Context, shoe *deck.Shoe, p *stats.Partial) error {
	rd := &round{s: s, ctx: ctx, shoe: shoe, p: p}
	return rd.play()
}

func (rd *round) draw() (deck.Rank, error) {
	if rd.shoe.Remaining().Total() == 0 {
		if err := rd.shoe.Refill(rd.table); err != nil {
			return 0, err
		}
		zerolog.Ctx(rd.ctx).Debug().Msg("shoe-refilled-mid-round")
	}
	c, err := rd.shoe.Draw()
	if err != nil {
		return 0, err
	}
	rd.table = rd.table.With(c)
	return c, nil
}

// unseen is what the player has not seen: the shoe and the hole card.
func (rd *round) unseen() deck.Composition {
	return rd.shoe.Remaining().With(rd.hole)
}

func (rd *round) settle(amount float64) {
	rd.net += amount
}

func (rd *round) finish() {
	rd.p.UnitsReturned += rd.net
	rd.p.Returns.Push(rd.net)
}

func (rd *round) play() error {
	var cards [4]deck.Rank
	for i := range cards {
		c, err := rd.draw()
		if err != nil {
			return fmt.Errorf("dealing: %w", err)
		}
		cards[i] = c
	}
	player := hand.New(cards[0], cards[2])
	rd.up, rd.hole = cards[1], cards[3]
	dealer := hand.New(rd.up, rd.hole)
	rd.p.Rounds++
	r := rd.s.rules

	if rd.up == deck.Ace && r.InsuranceOffered {
		if err := rd.insurance(); err != nil {
			return err
		}
	}

	switch {
	case dealer.IsBlackjack():
		rd.p.Hands++
		rd.p.UnitsWagered++
		if !player.IsBlackjack() {
			rd.settle(-1)
		}
		rd.finish()
		return nil
	case player.IsBlackjack():
		rd.p.Hands++
		rd.p.UnitsWagered++
		rd.settle(r.BlackjackPayout)
		rd.finish()
		return nil
	}

	seats, err := rd.playHands(player)
	if err != nil {
		return err
	}
	if lo.SomeBy(seats, func(st seat) bool { return !st.h.IsBust() }) {
		for {
			t, soft := dealer.Total()
			if !r.DealerHits(t, soft) {
				break
			}
			c, err := rd.draw()
			if err != nil {
				return fmt.Errorf("dealer drawing: %w", err)
			}
			dealer = dealer.Add(c)
		}
	}

	dv := dealer.Value()
	for _, st := range seats {
		rd.p.Hands++
		rd.p.UnitsWagered += st.bet
		pv := st.h.Value()
		switch {
		case pv > 21:
			rd.settle(-st.bet)
		case dv > 21 || pv > dv:
			rd.settle(st.bet)
		case pv < dv:
			rd.settle(-st.bet)
		}
	}
	rd.finish()
	return nil
}

// insurance is offered before the dealer peeks. The exact methods take it
// whenever its EV is positive; the chart never takes it.
func (rd *round) insurance() error {
	s := rd.s
	rd.p.InsuranceOffered++
	if !s.method.usesExact() {
		return nil
	}
	ev, err := s.calc.Insurance(rd.up, rd.unseen())
	if err != nil {
		return err
	}
	if ev <= 0 {
		return nil
	}
	gain := insuranceBet * ev
	if s.method == MethodCompare {
		rd.p.InsuranceDeviations++
		rd.p.EVGain += gain
	}
	rd.p.InsuranceTaken++
	rd.p.InsuranceEV += gain
	rd.p.UnitsWagered += insuranceBet

	net := -insuranceBet
	if rd.hole == deck.Ten {
		net = insuranceBet * s.rules.InsurancePayout
		rd.p.InsuranceWon++
	}
	rd.p.InsuranceNet += net
	rd.settle(net)
	return nil
}

// playHands plays the player's hand, and every hand split from it, to
// completion. Split hands are played left to right; the second card of a
// split hand is dealt when its turn comes.
func (rd *round) playHands(first hand.Hand) ([]seat, error) {
	r := rd.s.rules
	seats := []seat{{h: first, bet: 1}}
	for i := 0; i < len(seats); i++ {
	turn:
		for {
			h := seats[i].h
			if h.Len() == 1 {
				c, err := rd.draw()
				if err != nil {
					return nil, err
				}
				seats[i].h = h.Add(c)
				continue
			}
			if h.FromSplit() && h.Card(0) == deck.Ace && !r.HitSplitAces {
				break
			}
			if h.Value() >= 21 {
				break
			}
			a, err := rd.decide(h, len(seats))
			if err != nil {
				return nil, err
			}
			switch a {
			case hand.Stand:
				break turn
			case hand.Hit, hand.Double:
				c, err := rd.draw()
				if err != nil {
					return nil, err
				}
				seats[i].h = h.Add(c)
				if a == hand.Double {
					seats[i].bet *= 2
					break turn
				}
			case hand.Split:
				left, right, err := h.SplitOff()
				if err != nil {
					return nil, err
				}
				seats[i].h = left
				seats = slices.Insert(seats, i+1, seat{h: right, bet: seats[i].bet})
			}
		}
	}
	return seats, nil
}

// decide picks the action for h under the simulator's method and records
// the decision, plus any deviation between the exact play and the chart.
func (rd *round) decide(h hand.Hand, hands int) (hand.Action, error) {
	s := rd.s
	st := h.State()
	cat := strategy.CategoryOf(st)
	rd.p.Decisions++
	rd.p.DecisionMap[cat.Index()][rd.up]++

	var ref hand.Action
	if s.method.usesChart() {
		var err error
		ref, err = s.chart.Play(st, rd.up, hands)
		if err != nil {
			return 0, err
		}
		if s.method == MethodReference {
			return ref, nil
		}
	}
	if a, ok := shortcut(st, s.rules, hands); ok {
		return a, nil
	}
	ctx := exact.Context{State: st, Hands: hands, Upcard: rd.up, Unseen: rd.unseen()}
	res, err := s.calc.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	if s.method == MethodExact || res.Best == ref {
		return res.Best, nil
	}
	gain, err := res.Gain(ref)
	if err != nil {
		return 0, fmt.Errorf("chart plays %v with %v vs %v: %w", ref, h, rd.up, err)
	}
	if gain > 0 {
		refEV, _ := res.EV(ref)
		rd.deviate(Deviation{
			Time:      time.Now(),
			Category:  cat,
			Upcard:    rd.up,
			Hand:      h.String(),
			Hands:     hands,
			Unseen:    ctx.Unseen,
			Exact:     res.Best,
			Reference: ref,
			ExactEV:   res.Value(),
			RefEV:     refEV,
			Gain:      gain,
		})
	}
	return res.Best, nil
}

// shortcut returns the play for hands that need no enumeration: stand on
// 21, and hit a hard total that cannot bust when doubling and splitting are
// not allowed.
func shortcut(st hand.State, r rules.RuleSet, hands int) (hand.Action, bool) {
	switch {
	case st.Value() == 21:
		return hand.Stand, true
	case !st.Soft() && st.Value() <= 11 && !st.CanDouble(r, hands) && !st.CanSplit(r, hands):
		return hand.Hit, true
	}
	return 0, false
}

func (rd *round) deviate(d Deviation) {
	s := rd.s
	rd.p.Deviations++
	rd.p.DeviationMap[d.Category.Index()][d.Upcard]++
	rd.p.EVGain += d.Gain
	if len(rd.p.Gains) < stats.MaxGainSamples {
		rd.p.Gains = append(rd.p.Gains, d.Gain)
	}
	sev, ok := SeverityOf(d.Gain)
	if ok {
		rd.p.Severity[sev]++
	}
	if d.Gain <= s.threshold {
		return
	}
	logger := zerolog.Ctx(rd.ctx)
	ev := logger.Debug()
	if ok && sev == Critical {
		ev = logger.Info()
	}
	ev.Str("hand", d.Hand).Stringer("upcard", d.Upcard).Int("hands", d.Hands).
		Stringer("exact", d.Exact).Stringer("reference", d.Reference).
		Float64("gain", d.Gain).Stringer("unseen", d.Unseen).Msg("deviation")
	if s.sink != nil {
		if err := s.sink.RecordDeviation(rd.ctx, d); err != nil {
			logger.Err(err).Msg("record-deviation")
		}
	}
}
