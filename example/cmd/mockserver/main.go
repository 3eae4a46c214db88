// Standalone mock upstream for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/livefetch serve -c example/livefetch.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

func main() {
	fmt.Println("Mock upstream starting on :9999")
	fmt.Println("Routes: /quote, /counter, /weather?city=<name>")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		counter atomic.Int64
		n       atomic.Int64
		texts   = []string{"Clear is better than clever.", "Don't panic.", "Errors are values."}
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(200+rand.Intn(800)) * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"quote": {"text": %q}}`, texts[int(n.Add(1))%len(texts)])
	})
	mux.HandleFunc("GET /counter", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%d\n", counter.Add(1))
	})
	mux.HandleFunc("GET /weather", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(200+rand.Intn(800)) * time.Millisecond)
		if rand.Intn(8) == 0 {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"city": %q, "current": {"temp": %d}}`, r.URL.Query().Get("city"), 12+rand.Intn(15))
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
