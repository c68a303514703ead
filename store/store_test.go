package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/rules"
	"github.com/domino14/bjsim/sim"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/strategy"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bjsim.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func deviation(gain float64) sim.Deviation {
	h, _ := hand.Parse("T6")
	return sim.Deviation{
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Category:  strategy.CategoryOf(h.State()),
		Upcard:    deck.Ten,
		Hand:      h.String(),
		Hands:     1,
		Unseen:    rules.MustPreset(rules.Preset1DeckH17NDASD10).FullShoe(),
		Exact:     hand.Stand,
		Reference: hand.Hit,
		ExactEV:   -0.5,
		RefEV:     -0.5 - gain,
		Gain:      gain,
	}
}

func TestTopDeviations(t *testing.T) {
	is := is.New(t)
	s := openTemp(t)
	ctx := context.Background()
	for _, g := range []float64{0.1, 0.9, 0.4, 1.3} {
		is.NoErr(s.RecordDeviation(ctx, deviation(g)))
	}
	n, err := s.CountDeviations(ctx)
	is.NoErr(err)
	is.Equal(n, int64(4))

	top, err := s.TopDeviations(ctx, 2)
	is.NoErr(err)
	is.Equal(len(top), 2)
	is.Equal(top[0].Gain, 1.3)
	is.Equal(top[1].Gain, 0.9)
	is.Equal(top[0].Hand, "T6")
	is.Equal(top[0].Category, "Hard 16")
	is.Equal(top[0].Upcard, "T")
	is.Equal(top[0].Exact, "stand")
	is.Equal(top[0].Reference, "hit")
	is.True(top[0].Time.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestConcurrentRecords(t *testing.T) {
	is := is.New(t)
	s := openTemp(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := s.RecordDeviation(ctx, deviation(0.5)); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	n, err := s.CountDeviations(ctx)
	is.NoErr(err)
	is.Equal(n, int64(100))
}

func TestSnapshots(t *testing.T) {
	is := is.New(t)
	s := openTemp(t)
	ctx := context.Background()
	_, err := s.LatestSnapshot(ctx)
	is.True(errors.Is(err, ErrNoSnapshots))

	snap := stats.Snapshot{Rules: "6d-h17-das-dany", Method: "compare", Rounds: 10, UnitsReturned: -2}
	is.NoErr(s.RecordSnapshot(ctx, snap))
	snap.Rounds = 20
	is.NoErr(s.RecordSnapshot(ctx, snap))

	got, err := s.LatestSnapshot(ctx)
	is.NoErr(err)
	is.Equal(got.Rounds, int64(20))
	is.Equal(got.Rules, "6d-h17-das-dany")
	is.Equal(got.UnitsReturned, -2.0)
}
