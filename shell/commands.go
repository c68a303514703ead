package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/domino14/bjsim/cache"
	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/exact"
	"github.com/domino14/bjsim/hand"
)

// calculatorFor returns the calculator for the deck count in the -decks
// option, building one with its own tables if the count differs from the
// configured rules.
func (sc *ShellController) calculatorFor(cmd *shellcmd) (*exact.Calculator, error) {
	decks, err := cmd.intOption("decks", sc.rules.Decks)
	if err != nil {
		return nil, err
	}
	sc.calcMu.Lock()
	defer sc.calcMu.Unlock()
	if c, ok := sc.calcs[decks]; ok {
		return c, nil
	}
	r := sc.rules
	r.Decks = decks
	r.Name = fmt.Sprintf("%s (%d decks)", sc.rules.Name, decks)
	c, err := exact.NewCalculator(r)
	if err != nil {
		return nil, err
	}
	sc.calcs[decks] = c
	return c, nil
}

// unseenFor is a full shoe for calc minus the given cards and whatever the
// -remove option lists.
func unseenFor(calc *exact.Calculator, cmd *shellcmd, visible ...deck.Rank) (deck.Composition, error) {
	unseen := calc.Rules().FullShoe()
	if err := unseen.Remove(visible...); err != nil {
		return deck.Composition{}, err
	}
	if s, ok := cmd.options["remove"]; ok {
		rs, err := deck.ParseRanks(s)
		if err != nil {
			return deck.Composition{}, err
		}
		if err := unseen.Remove(rs...); err != nil {
			return deck.Composition{}, err
		}
	}
	return unseen, nil
}

func (sc *ShellController) ev(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 2 {
		return nil, errors.New("usage: ev <cards> <upcard> [-hands N] [-remove cards] [-decks N]")
	}
	h, err := hand.Parse(cmd.args[0])
	if err != nil {
		return nil, err
	}
	up, err := deck.ParseRank(cmd.args[1])
	if err != nil {
		return nil, err
	}
	hands, err := cmd.intOption("hands", 1)
	if err != nil {
		return nil, err
	}
	calc, err := sc.calculatorFor(cmd)
	if err != nil {
		return nil, err
	}
	unseen, err := unseenFor(calc, cmd, append(h.Cards(), up)...)
	if err != nil {
		return nil, err
	}
	res, err := calc.Evaluate(exact.Context{State: h.State(), Hands: hands, Upcard: up, Unseen: unseen})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%v vs %v (%d hands), %d cards unseen\n", h, up, hands, unseen.Total())
	for _, a := range hand.Actions {
		if !res.Legal(a) {
			continue
		}
		mark := ""
		if a == res.Best {
			mark = "  <-"
		}
		fmt.Fprintf(&sb, "  %-7s %+.6f%s\n", a, res.EVs[a], mark)
	}
	if sc.chart != nil && calc == sc.calc {
		ref, err := sc.chart.Play(h.State(), up, hands)
		if err != nil {
			return nil, err
		}
		gain, err := res.Gain(ref)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, "Chart %s plays %v", sc.chart.Name(), ref)
		if gain > 0 {
			fmt.Fprintf(&sb, ", giving up %.6f", gain)
		}
		sb.WriteString("\n")
	}
	return msg(sb.String()), nil
}

func (sc *ShellController) insurance(cmd *shellcmd) (*Response, error) {
	calc, err := sc.calculatorFor(cmd)
	if err != nil {
		return nil, err
	}
	unseen, err := unseenFor(calc, cmd, deck.Ace)
	if err != nil {
		return nil, err
	}
	ev, err := calc.Insurance(deck.Ace, unseen)
	if err != nil {
		return nil, err
	}
	verdict := "decline"
	if ev > 0 {
		verdict = "take"
	}
	return msg(fmt.Sprintf("Insurance EV %+.6f per unit (%d tens in %d unseen): %s",
		ev, unseen.Remaining(deck.Ten), unseen.Total(), verdict)), nil
}

func (sc *ShellController) dealer(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: dealer <upcard> [-remove cards] [-decks N]")
	}
	up, err := deck.ParseRank(cmd.args[0])
	if err != nil {
		return nil, err
	}
	calc, err := sc.calculatorFor(cmd)
	if err != nil {
		return nil, err
	}
	unseen, err := unseenFor(calc, cmd, up)
	if err != nil {
		return nil, err
	}
	o, err := calc.DealerOutcomes(up, unseen)
	if err != nil {
		return nil, err
	}
	return msg(fmt.Sprintf("Dealer %v: %v", up, o)), nil
}

func (sc *ShellController) showChart(cmd *shellcmd) (*Response, error) {
	if sc.chart == nil {
		return nil, fmt.Errorf("no reference chart for rules %s", sc.rules.Name)
	}
	return msg(sc.chart.Name() + "\n" + sc.chart.String()), nil
}

func (sc *ShellController) showCache(cmd *shellcmd) (*Response, error) {
	keys := cache.Keys()
	if len(keys) == 0 {
		return msg("cache is empty"), nil
	}
	return msg(strings.Join(keys, "\n")), nil
}
