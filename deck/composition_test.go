package deck

import (
	"errors"
	"math"
	"testing"

	"github.com/matryer/is"
)

func TestFullComposition(t *testing.T) {
	is := is.New(t)
	for decks := 1; decks <= MaxDecks; decks++ {
		c := Full(decks)
		is.Equal(c.Total(), 52*decks)
		is.Equal(c.Remaining(Ten), 16*decks)
		is.Equal(c.Remaining(Ace), 4*decks)
		sum := 0
		for _, r := range Ranks {
			sum += c.Remaining(r)
		}
		is.Equal(sum, c.Total())
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	is := is.New(t)
	cases := []Composition{
		Full(1),
		Full(8),
		MustComposition([NumRanks]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1}),
		MustComposition([NumRanks]int{1, 3, 0, 7, 2, 0, 0, 5, 1, 9}),
	}
	for _, c := range cases {
		is.True(math.Abs(c.ProbabilitySum()-1) < 1e-12)
	}
	var empty Composition
	is.Equal(empty.ProbabilitySum(), 0.0)
}

func TestWithoutDoesNotMutate(t *testing.T) {
	is := is.New(t)
	c := Full(1)
	d, err := c.Without(Five)
	is.NoErr(err)
	is.Equal(c.Remaining(Five), 4)
	is.Equal(d.Remaining(Five), 3)
	is.Equal(d.Total(), 51)
	is.Equal(d.With(Five), c)
}

func TestDrawExhausted(t *testing.T) {
	is := is.New(t)
	c := MustComposition([NumRanks]int{1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	is.NoErr(c.Draw(Ace))
	err := c.Draw(Ace)
	is.True(errors.Is(err, ErrRankExhausted))
	is.Equal(c.Total(), 0)

	_, err = c.Without(Ten)
	is.True(errors.Is(err, ErrRankExhausted))
}

func TestMustWithoutPanics(t *testing.T) {
	is := is.New(t)
	defer func() {
		is.True(recover() != nil)
	}()
	var c Composition
	c.MustWithout(Two)
}

func TestParseRanks(t *testing.T) {
	is := is.New(t)
	rs, err := ParseRanks("A,10,5")
	is.NoErr(err)
	is.Equal(rs, []Rank{Ace, Ten, Five})
	rs, err = ParseRanks("tk 9")
	is.NoErr(err)
	is.Equal(rs, []Rank{Ten, Ten, Nine})
	_, err = ParseRanks("AX")
	is.True(err != nil)
}

func TestSeededShoeDrawsEverything(t *testing.T) {
	is := is.New(t)
	s := NewSeededShoe(1, [32]byte{7})
	var seen [NumRanks]int
	for i := 0; i < 52; i++ {
		r, err := s.Draw()
		is.NoErr(err)
		seen[r]++
	}
	is.Equal(s.Remaining().Total(), 0)
	is.Equal(seen[Ten], 16)
	is.Equal(seen[Ace], 4)
	_, err := s.Draw()
	is.True(err != nil)
	s.Reset()
	is.Equal(s.Remaining(), Full(1))
	is.Equal(s.DealtFraction(), 0.0)
}

func TestRefillKeepsTableCards(t *testing.T) {
	is := is.New(t)
	s := NewSeededShoe(1, [32]byte{3})
	for s.Remaining().Total() > 0 {
		_, err := s.Draw()
		is.NoErr(err)
	}
	onTable := MustComposition([NumRanks]int{Ace: 1, Ten: 2, Six: 1})
	is.NoErr(s.Refill(onTable))
	is.Equal(s.Remaining().Total(), 48)
	is.Equal(s.Remaining().Remaining(Ten), 14)
	is.Equal(s.Remaining().Remaining(Ace), 3)
	is.Equal(s.Remaining().Remaining(Six), 3)

	tooMany := MustComposition([NumRanks]int{Ace: 5})
	is.True(s.Refill(tooMany) != nil)
}
