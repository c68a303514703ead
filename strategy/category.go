package strategy

import (
	"fmt"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
)

type Kind uint8

const (
	Hard Kind = iota
	Soft
	Pair
)

func (k Kind) String() string {
	switch k {
	case Hard:
		return "Hard"
	case Soft:
		return "Soft"
	case Pair:
		return "Pair"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

const (
	minHard = 4
	maxHard = 21
	minSoft = 12
	maxSoft = 21

	numHard = maxHard - minHard + 1
	numSoft = maxSoft - minSoft + 1

	// NumCategories is the number of rows in a chart: hard 4-21, soft 12-21,
	// and a pair of every rank.
	NumCategories = numHard + numSoft + deck.NumRanks
)

// A Category is a chart row. Value is the total for hard and soft rows and
// the paired Rank for pair rows.
type Category struct {
	Kind  Kind
	Value int
}

// CategoryOf is the row a hand is played from.
func CategoryOf(st hand.State) Category {
	if p, ok := st.Pair(); ok {
		return Category{Kind: Pair, Value: int(p)}
	}
	return UnsplitCategoryOf(st)
}

// UnsplitCategoryOf ignores pairs; it is the row used when a pair cannot be
// split.
func UnsplitCategoryOf(st hand.State) Category {
	total, soft := st.Total()
	if soft {
		return Category{Kind: Soft, Value: total}
	}
	return Category{Kind: Hard, Value: total}
}

func (c Category) Valid() bool {
	switch c.Kind {
	case Hard:
		return c.Value >= minHard && c.Value <= maxHard
	case Soft:
		return c.Value >= minSoft && c.Value <= maxSoft
	case Pair:
		return c.Value >= 0 && c.Value < deck.NumRanks
	}
	return false
}

// Index is a dense index in [0, NumCategories). It panics on an invalid
// category.
func (c Category) Index() int {
	if !c.Valid() {
		panic(fmt.Sprintf("invalid category %v", c))
	}
	switch c.Kind {
	case Hard:
		return c.Value - minHard
	case Soft:
		return numHard + c.Value - minSoft
	}
	return numHard + numSoft + c.Value
}

// CategoryAt is the inverse of Index.
func CategoryAt(i int) Category {
	switch {
	case i < numHard:
		return Category{Kind: Hard, Value: i + minHard}
	case i < numHard+numSoft:
		return Category{Kind: Soft, Value: i - numHard + minSoft}
	}
	return Category{Kind: Pair, Value: i - numHard - numSoft}
}

func (c Category) String() string {
	if c.Kind == Pair {
		r := deck.Rank(c.Value)
		return fmt.Sprintf("%v,%v", r, r)
	}
	return fmt.Sprintf("%s %d", c.Kind, c.Value)
}
