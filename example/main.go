package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/livefetch"
)

type quote struct {
	Quote struct {
		Text   string `json:"text"`
		Author string `json:"author"`
	} `json:"quote"`
}

func main() {
	// start mock upstream (see mock_server.go)
	go StartMockServer(":9999")
	time.Sleep(100 * time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a typed resource on its own, outside any board
	fetchQuote, err := livefetch.FetchJSON[quote]("http://localhost:9999/quote")
	if err != nil {
		slog.Error("failed to create quote fetcher", "error", err)
		os.Exit(1)
	}
	q := livefetch.NewResource(fetchQuote, quote{}, livefetch.WithName("typed quote"))
	defer q.Close()

	q.Value.Subscribe(func(v quote) {
		if v.Quote.Text != "" {
			fmt.Printf("  typed quote: %q (%s)\n", v.Quote.Text, v.Quote.Author)
		}
	})
	q.RefreshAsync(ctx)

	// grid: one source per city from a single declaration
	sources, err := livefetch.NewSourceGrid("Weather",
		livefetch.WithURLTemplate("http://localhost:9999/weather?city={{.city}}"),
		livefetch.WithDimensions(map[string][]string{
			"city": {"London", "Lisbon", "Oslo"},
		}),
		livefetch.WithGridSelector(livefetch.JSONFieldSelector("current.temp")),
		livefetch.WithGridLabels("kind", "weather"),
	)
	if err != nil {
		slog.Error("failed to create source grid", "error", err)
		os.Exit(1)
	}

	quoteSrc, _ := livefetch.NewSource("Quote", "http://localhost:9999/quote",
		livefetch.WithSelector(livefetch.JSONFieldSelector("quote.text")),
	)
	counterSrc, _ := livefetch.NewSource("Counter", "http://localhost:9999/counter",
		livefetch.WithSelector(livefetch.TextSelector),
		livefetch.WithInterval(2*time.Second),
	)
	sources = append(sources, quoteSrc, counterSrc)

	board, err := livefetch.New(
		livefetch.WithTitle("livefetch demo"),
		livefetch.WithSources(sources...),
		livefetch.WithRefreshInterval(5*time.Second),
		livefetch.WithPort(8080),
		livefetch.WithChangeCallback(func(s livefetch.Snapshot) {
			if s.Error != nil && !s.Fetching {
				slog.Warn("refresh failed", "source", s.Name, "error", *s.Error)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create board", "error", err)
		os.Exit(1)
	}
	defer board.Close()

	fmt.Println()
	fmt.Println("  livefetch demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Sources:")
	fmt.Println("    3 weather sources from one grid (5s, fails now and then)")
	fmt.Println("    Quote (5s), Counter (2s)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := board.Start(ctx); err != nil {
		slog.Error("livefetch error", "error", err)
		os.Exit(1)
	}
}
