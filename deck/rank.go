// Package deck models the cards left in a blackjack shoe as exact per-rank
// counts. Everything that needs probabilities (the exact enumerator, the
// insurance calculation, the random shoe) reads them from here.
package deck

import (
	"fmt"
	"strings"
)

// A Rank is a card denomination. All ten-valued cards collapse into Ten,
// since suits and faces never matter in blackjack.
type Rank uint8

const (
	Ace Rank = iota
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
)

// NumRanks is the number of distinct denominations.
const NumRanks = 10

// Ranks lists every rank in the fixed iteration order. Anything that sums
// floating point values over ranks must use this order so that results are
// reproducible bit for bit.
var Ranks = [NumRanks]Rank{Ace, Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten}

// Value is the hard value of the card; aces count 1 here and the hand
// decides whether one of them can count 11.
func (r Rank) Value() int {
	return int(r) + 1
}

func (r Rank) String() string {
	switch r {
	case Ace:
		return "A"
	case Ten:
		return "T"
	}
	if r < NumRanks {
		return fmt.Sprintf("%d", r.Value())
	}
	return "?"
}

// ParseRank accepts A, 2-9, T, 10, J, Q and K (case-insensitive).
func ParseRank(s string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "1", "11":
		return Ace, nil
	case "T", "10", "J", "Q", "K":
		return Ten, nil
	case "2":
		return Two, nil
	case "3":
		return Three, nil
	case "4":
		return Four, nil
	case "5":
		return Five, nil
	case "6":
		return Six, nil
	case "7":
		return Seven, nil
	case "8":
		return Eight, nil
	case "9":
		return Nine, nil
	}
	return 0, fmt.Errorf("unrecognized rank %q", s)
}

// ParseRanks parses a compact card string such as "A8" or "T,6,5".
// Commas and spaces are ignored; "10" is read as a single Ten.
func ParseRanks(s string) ([]Rank, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "10", "T")
	ranks := make([]Rank, 0, len(s))
	for _, c := range s {
		r, err := ParseRank(string(c))
		if err != nil {
			return nil, err
		}
		ranks = append(ranks, r)
	}
	return ranks, nil
}
