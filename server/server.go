// Package server is the optional HTTP status endpoint for a running
// simulation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/report"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/store"
)

// Status is whatever the server reports on; a *sim.Simulator is one.
type Status interface {
	Snapshot() stats.Snapshot
	MemoStats() []memo.Stats
}

const defaultHistogramBins = 20

var (
	publishOnce sync.Once
	current     atomic.Value // holds a Status
)

// publishVars exposes the latest snapshot of the most recently routed
// Status under /debug/vars.
func publishVars(st Status) {
	current.Store(&st)
	publishOnce.Do(func() {
		expvar.Publish("bjsim", expvar.Func(func() any {
			st, ok := current.Load().(*Status)
			if !ok {
				return nil
			}
			return (*st).Snapshot()
		}))
	})
}

// Router builds the HTTP handler. db may be nil, in which case
// /deviations answers 404.
func Router(st Status, db *store.Store) http.Handler {
	publishVars(st)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	r.Get("/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(report.Render(st.Snapshot(), st.MemoStats()...)))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, st.Snapshot())
	})
	r.Get("/histogram", func(w http.ResponseWriter, r *http.Request) {
		bins, err := intParam(r, "bins", defaultHistogramBins)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := report.Histogram(st.Snapshot().Gains, bins)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(out))
	})
	r.Get("/deviations", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "no database configured", http.StatusNotFound)
			return
		}
		n, err := intParam(r, "n", 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		recs, err := db.TopDeviations(r.Context(), n)
		if err != nil {
			log.Err(err).Msg("top-deviations")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs)
	})
	r.Handle("/debug/vars", expvar.Handler())
	return r
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("status-server-listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return nil
	}
}
