package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/sim"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/store"
	"github.com/domino14/bjsim/strategy"
)

type fixedStatus struct {
	snap stats.Snapshot
}

func (f fixedStatus) Snapshot() stats.Snapshot { return f.snap }
func (f fixedStatus) MemoStats() []memo.Stats {
	return []memo.Stats{{Name: "player", Lookups: 4, Hits: 1, HitRate: 0.25}}
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return rec.Code, string(body)
}

func status() fixedStatus {
	return fixedStatus{snap: stats.Snapshot{
		Rules: "6d-h17-das-dany", Method: "compare", Rounds: 500, Hands: 510,
		Gains: []float64{0.1, 0.2, 0.7},
	}}
}

func TestReportAndStats(t *testing.T) {
	is := is.New(t)
	h := Router(status(), nil)

	code, body := get(t, h, "/report")
	is.Equal(code, http.StatusOK)
	is.True(strings.Contains(body, "Rounds: 500"))
	is.True(strings.Contains(body, "hit rate 25.00%"))

	code, body = get(t, h, "/stats")
	is.Equal(code, http.StatusOK)
	var snap map[string]any
	is.NoErr(json.Unmarshal([]byte(body), &snap))
	is.Equal(snap["rounds"], 500.0)
	is.Equal(snap["method"], "compare")

	code, _ = get(t, h, "/health")
	is.Equal(code, http.StatusOK)
}

func TestHistogramEndpoint(t *testing.T) {
	is := is.New(t)
	h := Router(status(), nil)
	code, body := get(t, h, "/histogram?bins=3")
	is.Equal(code, http.StatusOK)
	is.True(len(body) > 0)
	code, _ = get(t, h, "/histogram?bins=zero")
	is.Equal(code, http.StatusBadRequest)
}

func TestDeviationsEndpoint(t *testing.T) {
	is := is.New(t)
	code, _ := get(t, Router(status(), nil), "/deviations")
	is.Equal(code, http.StatusNotFound)

	db, err := store.Open(filepath.Join(t.TempDir(), "s.db"))
	is.NoErr(err)
	defer db.Close()
	h16, _ := hand.Parse("T6")
	is.NoErr(db.RecordDeviation(context.Background(), sim.Deviation{
		Time: time.Now(), Category: strategy.CategoryOf(h16.State()), Upcard: deck.Ten,
		Hand: "T6", Hands: 1, Exact: hand.Stand, Reference: hand.Hit, Gain: 0.4,
	}))
	code, body := get(t, Router(status(), db), "/deviations?n=5")
	is.Equal(code, http.StatusOK)
	var recs []store.Record
	is.NoErr(json.Unmarshal([]byte(body), &recs))
	is.Equal(len(recs), 1)
	is.Equal(recs[0].Hand, "T6")
}

func TestExpvar(t *testing.T) {
	is := is.New(t)
	code, body := get(t, Router(status(), nil), "/debug/vars")
	is.Equal(code, http.StatusOK)
	is.True(strings.Contains(body, `"bjsim"`))
	is.True(strings.Contains(body, `"rounds": 500`) || strings.Contains(body, `"rounds":500`))
}

func TestServeStopsWithContext(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, "127.0.0.1:0", Router(status(), nil)) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
