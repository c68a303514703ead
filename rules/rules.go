// Package rules holds the table rules every other package consults: how
// many decks, when to reshuffle, what the dealer does on soft 17, and what
// the player may split or double.
package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/domino14/bjsim/deck"
)

// MinCardsAtReshuffle is the smallest number of undealt cards we allow at the
// reshuffle point. Rounds that start this deep into the shoe seldom need a
// mid-round refill.
const MinCardsAtReshuffle = 20

// MaxHands caps SplitHandsLimit.
const MaxHands = 8

// RuleSet is a complete description of the game being analyzed.
type RuleSet struct {
	Name string `yaml:"name"`

	Decks int `yaml:"decks"`
	// Penetration is the fraction of the shoe dealt before a reshuffle.
	Penetration float64 `yaml:"penetration"`

	HitSoft17       bool    `yaml:"hit_soft_17"`
	BlackjackPayout float64 `yaml:"blackjack_payout"`

	// SplitHandsLimit is the total number of hands a player may end up with
	// after splitting; 1 disables splitting.
	SplitHandsLimit int `yaml:"split_hands_limit"`
	// SplitAcesLimit is the same limit for aces; 2 means aces split once.
	SplitAcesLimit int  `yaml:"split_aces_limit"`
	HitSplitAces   bool `yaml:"hit_split_aces"`

	DoubleAnyTwo bool `yaml:"double_any_two"`
	// DoubleMinTotal is the lowest hard total that may be doubled when
	// DoubleAnyTwo is false. Doubling is allowed on hard DoubleMinTotal..11.
	DoubleMinTotal   int  `yaml:"double_min_total"`
	DoubleAfterSplit bool `yaml:"double_after_split"`

	InsuranceOffered bool    `yaml:"insurance_offered"`
	InsurancePayout  float64 `yaml:"insurance_payout"`
}

const (
	Preset1DeckH17NDASD10 = "1d-h17-ndas-d10"
	Preset6DeckH17DASDAny = "6d-h17-das-dany"
	Preset8DeckH17NDASD9  = "8d-h17-ndas-d9"

	DefaultPreset = Preset6DeckH17DASDAny
)

var presets = map[string]RuleSet{
	Preset1DeckH17NDASD10: {
		Name:             Preset1DeckH17NDASD10,
		Decks:            1,
		Penetration:      0.6,
		HitSoft17:        true,
		BlackjackPayout:  1.5,
		SplitHandsLimit:  4,
		SplitAcesLimit:   2,
		DoubleMinTotal:   10,
		InsuranceOffered: true,
		InsurancePayout:  2,
	},
	Preset6DeckH17DASDAny: {
		Name:             Preset6DeckH17DASDAny,
		Decks:            6,
		Penetration:      0.75,
		HitSoft17:        true,
		BlackjackPayout:  1.5,
		SplitHandsLimit:  4,
		SplitAcesLimit:   2,
		DoubleAnyTwo:     true,
		DoubleMinTotal:   2,
		DoubleAfterSplit: true,
		InsuranceOffered: true,
		InsurancePayout:  2,
	},
	Preset8DeckH17NDASD9: {
		Name:             Preset8DeckH17NDASD9,
		Decks:            8,
		Penetration:      0.75,
		HitSoft17:        true,
		BlackjackPayout:  1.5,
		SplitHandsLimit:  4,
		SplitAcesLimit:   2,
		DoubleMinTotal:   9,
		InsuranceOffered: true,
		InsurancePayout:  2,
	},
}

// Preset returns a named builtin rule set.
func Preset(name string) (RuleSet, error) {
	r, ok := presets[name]
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rules preset %q (have %v)", name, PresetNames())
	}
	return r, nil
}

// MustPreset is Preset for names known at compile time.
func MustPreset(name string) RuleSet {
	r, err := Preset(name)
	if err != nil {
		panic(err)
	}
	return r
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load reads a YAML rule set. Fields missing from the file keep the values
// of the default preset.
func Load(path string) (RuleSet, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, err
	}
	r := presets[DefaultPreset]
	r.Name = ""
	if err := yaml.Unmarshal(bts, &r); err != nil {
		return RuleSet{}, fmt.Errorf("parsing rules file %v: %w", path, err)
	}
	if r.Name == "" {
		r.Name = path
	}
	return r, r.Validate()
}

// Validate reports every unsupported option at once.
func (r RuleSet) Validate() error {
	var errs []error
	if r.Decks < 1 || r.Decks > deck.MaxDecks {
		errs = append(errs, fmt.Errorf("decks must be between 1 and %d, got %d", deck.MaxDecks, r.Decks))
	}
	if r.Penetration <= 0 || r.Penetration >= 1 {
		errs = append(errs, fmt.Errorf("penetration must be in (0, 1), got %v", r.Penetration))
	} else if r.Decks >= 1 && r.ReshuffleAt() < MinCardsAtReshuffle {
		errs = append(errs, fmt.Errorf("penetration %v leaves %d cards at the reshuffle point; need at least %d",
			r.Penetration, r.ReshuffleAt(), MinCardsAtReshuffle))
	}
	if r.BlackjackPayout < 1 || r.BlackjackPayout > 2 {
		errs = append(errs, fmt.Errorf("blackjack payout must be between 1 and 2, got %v", r.BlackjackPayout))
	}
	if r.SplitHandsLimit < 1 || r.SplitHandsLimit > MaxHands {
		errs = append(errs, fmt.Errorf("split hands limit must be between 1 and %d, got %d", MaxHands, r.SplitHandsLimit))
	}
	if r.SplitAcesLimit < 1 || r.SplitAcesLimit > r.SplitHandsLimit {
		errs = append(errs, fmt.Errorf("split aces limit must be between 1 and the split hands limit, got %d", r.SplitAcesLimit))
	}
	if !r.HitSplitAces && r.SplitAcesLimit > 2 {
		errs = append(errs, errors.New("resplitting aces is only supported when split aces may be hit"))
	}
	if !r.DoubleAnyTwo && (r.DoubleMinTotal < 2 || r.DoubleMinTotal > 11) {
		errs = append(errs, fmt.Errorf("double min total must be between 2 and 11, got %d", r.DoubleMinTotal))
	}
	if r.InsuranceOffered && (r.InsurancePayout <= 0 || r.InsurancePayout > 3) {
		errs = append(errs, fmt.Errorf("insurance payout must be in (0, 3], got %v", r.InsurancePayout))
	}
	return errors.Join(errs...)
}

// FullShoe is the composition of a freshly shuffled shoe.
func (r RuleSet) FullShoe() deck.Composition {
	return deck.Full(r.Decks)
}

// ReshuffleAt is the number of undealt cards at or below which the shoe is
// reshuffled before the next round.
func (r RuleSet) ReshuffleAt() int {
	return int(float64(52*r.Decks) * (1 - r.Penetration))
}

// NeedsReshuffle reports whether a round should not be started from a shoe
// with `remaining` cards.
func (r RuleSet) NeedsReshuffle(remaining int) bool {
	return remaining <= r.ReshuffleAt()
}

// DealerHits reports whether the dealer draws to the given total.
func (r RuleSet) DealerHits(total int, soft bool) bool {
	if total < 17 {
		return true
	}
	return total == 17 && soft && r.HitSoft17
}

func (r RuleSet) String() string {
	bts, err := yaml.Marshal(r)
	if err != nil {
		// plain has no String method, so %+v prints the fields.
		type plain RuleSet
		return fmt.Sprintf("%+v", plain(r))
	}
	return string(bts)
}
