// Package strategy holds the static reference strategy the exact engine is
// compared against: a chart of actions by hand category and dealer upcard.
package strategy

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/rules"
)

//go:embed charts/*.csv
var chartFS embed.FS

var ErrNoChart = errors.New("no builtin chart for these rules")

// A Chart maps (category, upcard) to a list of actions. The first action is
// the recommendation; the rest are fallbacks when it is not allowed.
type Chart struct {
	name  string
	rules rules.RuleSet
	cells [NumCategories][deck.NumRanks][]hand.Action
}

type builtin struct {
	file  string
	match func(r rules.RuleSet) bool
}

var builtins = []builtin{
	{
		file: "1d-h17-ndas-d10",
		match: func(r rules.RuleSet) bool {
			return r.Decks == 1 && r.HitSoft17 && !r.DoubleAnyTwo && r.DoubleMinTotal == 10 &&
				!r.DoubleAfterSplit
		},
	},
	{
		file: "6d-h17-das-dany",
		match: func(r rules.RuleSet) bool {
			return r.Decks >= 4 && r.HitSoft17 && r.DoubleAnyTwo && r.DoubleAfterSplit
		},
	},
	{
		file: "8d-h17-ndas-d9",
		match: func(r rules.RuleSet) bool {
			return r.Decks >= 4 && r.HitSoft17 && !r.DoubleAnyTwo && r.DoubleMinTotal == 9 &&
				!r.DoubleAfterSplit
		},
	},
}

// ForRules returns the builtin chart written for r.
func ForRules(r rules.RuleSet) (*Chart, error) {
	b, ok := lo.Find(builtins, func(b builtin) bool { return b.match(r) })
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoChart, r.Name)
	}
	f, err := chartFS.Open("charts/" + b.file + ".csv")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, b.file, r)
}

// BuiltinNames lists the embedded charts.
func BuiltinNames() []string {
	return lo.Map(builtins, func(b builtin, _ int) string { return b.file })
}

// Load reads a chart file for the rules r.
func Load(path string, r rules.RuleSet) (*Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path, r)
}

// Parse reads a chart in CSV form. A section starts with a header row such
// as "Hard,2,3,4,5,6,7,8,9,10,A"; each following row is a total (or a pair
// rank) and one action string per upcard.
func Parse(rd io.Reader, name string, r rules.RuleSet) (*Chart, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chart %v: %w", name, err)
	}
	c := &Chart{name: name, rules: r}
	var (
		kind    Kind
		upcards []deck.Rank
	)
	for i, rec := range records {
		line := i + 1
		switch strings.TrimSpace(rec[0]) {
		case "Hard", "Soft", "Pair":
			kind = map[string]Kind{"Hard": Hard, "Soft": Soft, "Pair": Pair}[strings.TrimSpace(rec[0])]
			upcards = upcards[:0]
			for _, f := range rec[1:] {
				up, err := deck.ParseRank(strings.TrimSpace(f))
				if err != nil {
					return nil, fmt.Errorf("chart %v line %d: %w", name, line, err)
				}
				upcards = append(upcards, up)
			}
			continue
		}
		if upcards == nil {
			return nil, fmt.Errorf("chart %v line %d: row before any section header", name, line)
		}
		if len(rec) != len(upcards)+1 {
			return nil, fmt.Errorf("chart %v line %d: have %d actions for %d upcards", name, line, len(rec)-1, len(upcards))
		}
		cat := Category{Kind: kind}
		if kind == Pair {
			p, err := deck.ParseRank(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("chart %v line %d: %w", name, line, err)
			}
			cat.Value = int(p)
		} else {
			cat.Value, err = strconv.Atoi(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("chart %v line %d: %w", name, line, err)
			}
		}
		if !cat.Valid() {
			return nil, fmt.Errorf("chart %v line %d: no such row %v", name, line, cat)
		}
		for j, f := range rec[1:] {
			actions, err := ParseActions(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("chart %v line %d: %w", name, line, err)
			}
			c.cells[cat.Index()][upcards[j]] = actions
		}
	}
	log.Debug().Str("chart", name).Msg("loaded-chart")
	return c, nil
}

// ParseActions reads an action string such as "Dh" (double, else hit).
func ParseActions(s string) ([]hand.Action, error) {
	if s == "" {
		return nil, errors.New("empty action")
	}
	actions := make([]hand.Action, 0, len(s))
	for _, ch := range s {
		a, err := hand.ParseAction(string(ch))
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// ActionLetters is the inverse of ParseActions.
func ActionLetters(actions []hand.Action) string {
	var sb strings.Builder
	for i, a := range actions {
		l := a.Letter()
		if i > 0 {
			l += 'a' - 'A'
		}
		sb.WriteByte(l)
	}
	return sb.String()
}

func (c *Chart) Name() string {
	return c.name
}

func (c *Chart) Rules() rules.RuleSet {
	return c.rules
}

func (c *Chart) cell(cat Category, up deck.Rank) []hand.Action {
	if !cat.Valid() {
		return nil
	}
	return c.cells[cat.Index()][up]
}

// Plays lists the chart's actions for st against up, without regard to
// whether they are allowed. A split recommendation is followed by the
// actions for the same total played as an unsplittable hand.
func (c *Chart) Plays(st hand.State, up deck.Rank) ([]hand.Action, error) {
	cat := CategoryOf(st)
	actions := c.cell(cat, up)
	if actions == nil {
		return nil, fmt.Errorf("chart %v has no entry for %v vs %v", c.name, cat, up)
	}
	actions = append([]hand.Action(nil), actions...)
	if actions[0] == hand.Split {
		// missing backup rows are only an error if the backup is needed.
		actions = append(actions, c.cell(UnsplitCategoryOf(st), up)...)
	}
	return actions, nil
}

// Play returns the first of Plays that is allowed for a player holding
// `hands` hands.
func (c *Chart) Play(st hand.State, up deck.Rank, hands int) (hand.Action, error) {
	actions, err := c.Plays(st, up)
	if err != nil {
		return 0, err
	}
	a, ok := lo.Find(actions, func(a hand.Action) bool {
		switch a {
		case hand.Double:
			return st.CanDouble(c.rules, hands)
		case hand.Split:
			return st.CanSplit(c.rules, hands)
		}
		return true
	})
	if !ok {
		return 0, fmt.Errorf("chart %v: no allowed action for %v vs %v with %d hands (have %v)",
			c.name, st, up, hands, ActionLetters(actions))
	}
	return a, nil
}

var displayUpcards = []deck.Rank{deck.Two, deck.Three, deck.Four, deck.Five, deck.Six,
	deck.Seven, deck.Eight, deck.Nine, deck.Ten, deck.Ace}

// String renders the chart as a grid.
func (c *Chart) String() string {
	var sb strings.Builder
	header := func(k Kind) {
		fmt.Fprintf(&sb, "%-5s", k)
		for _, up := range displayUpcards {
			fmt.Fprintf(&sb, " %-3v", up)
		}
		sb.WriteByte('\n')
	}
	kind := Kind(255)
	for i := 0; i < NumCategories; i++ {
		cat := CategoryAt(i)
		if cat.Kind != kind {
			kind = cat.Kind
			header(kind)
		}
		label := strconv.Itoa(cat.Value)
		if cat.Kind == Pair {
			label = deck.Rank(cat.Value).String()
		}
		fmt.Fprintf(&sb, "%-5s", label)
		for _, up := range displayUpcards {
			cell := c.cell(cat, up)
			text := "-"
			if cell != nil {
				text = ActionLetters(cell)
			}
			fmt.Fprintf(&sb, " %-3s", text)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
