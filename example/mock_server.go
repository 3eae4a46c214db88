package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

var quotes = []struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}{
	{"Simplicity is prerequisite for reliability.", "Edsger W. Dijkstra"},
	{"Make it work, make it right, make it fast.", "Kent Beck"},
	{"Clear is better than clever.", "Rob Pike"},
	{"A little copying is better than a little dependency.", "Rob Pike"},
}

// newMockHandler returns the routes of the demo upstream API:
//
//	GET /quote                 JSON quote that rotates on every request
//	GET /counter               plain-text request counter
//	GET /weather?city=<name>   JSON temperature that drifts randomly
//
// Every response is delayed by 200-1200ms so the busy flag is visible in
// the dashboard, and /weather fails roughly one request in eight.
func newMockHandler() http.Handler {
	var (
		quoteIdx atomic.Int64
		counter  atomic.Int64
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		delay()
		q := quotes[int(quoteIdx.Add(1))%len(quotes)]
		writeJSON(w, map[string]any{"quote": q})
	})

	mux.HandleFunc("GET /counter", func(w http.ResponseWriter, r *http.Request) {
		delay()
		fmt.Fprintf(w, "%d\n", counter.Add(1))
	})

	mux.HandleFunc("GET /weather", func(w http.ResponseWriter, r *http.Request) {
		delay()
		if rand.Intn(8) == 0 {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"city": r.URL.Query().Get("city"),
			"current": map[string]any{
				"temp": 12 + rand.Intn(15),
				"unit": "C",
			},
		})
	})

	return mux
}

// StartMockServer serves the demo upstream API on addr until the process
// exits.
func StartMockServer(addr string) {
	if err := http.ListenAndServe(addr, newMockHandler()); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func delay() {
	time.Sleep(time.Duration(200+rand.Intn(1000)) * time.Millisecond)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
