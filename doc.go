// Package livefetch keeps values fetched from remote APIs live and
// observable.
//
// The package has two layers. The first is a small observable state
// toolkit:
//
//   - [Store] holds a single value and notifies subscribers synchronously,
//     in registration order, on every write.
//   - [Resource] runs a [Fetcher] and publishes its outcome into three
//     stores: Value, Fetching (the busy flag) and Err.
//
// The second layer is a [Board] that keeps a set of HTTP [Source] values
// live: it refreshes each one on start and on an interval, serves an
// embedded dashboard with a refresh button per source, and streams changes
// to browsers over Server-Sent Events.
//
// # Quick Start
//
// Keep a quote live in your own program:
//
//	src, _ := livefetch.NewSource("quote", "https://api.example.com/quote",
//	    livefetch.WithSelector(livefetch.JSONFieldSelector("quote.text")),
//	)
//	quote := livefetch.NewResource(livefetch.SourceFetcher(src), nil)
//	defer quote.Close()
//
//	quote.Fetching.Subscribe(func(busy bool) { spinner.Show(busy) })
//	quote.Value.Subscribe(func(v any) { label.SetText(fmt.Sprint(v)) })
//
//	quote.RefreshAsync(ctx) // e.g. on a button click
//
// Or serve a dashboard:
//
//	b, _ := livefetch.New(livefetch.WithSource(src))
//	defer b.Close()
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until ctx is cancelled
//
// # Overlapping refreshes
//
// Refreshes are not serialized. If a second refresh starts while a first
// is in flight, both write their result and the one that completes last
// wins. Fetching stays true until the last of them completes. A failed
// refresh keeps the previous value and publishes its error on Err.
//
// # Selectors
//
// A [Selector] turns a response into the published value:
//
//   - [JSONSelector]: the whole JSON document
//   - [JSONFieldSelector]: one value at a dot-separated path
//   - [TextSelector]: the trimmed body
//   - [RegexSelector]: the first capture group of a regular expression
//   - [FirstMatch]: the first selector that succeeds
//   - [DefaultSelector]: JSON, falling back to text
//
// # Architecture
//
// The board is built from internal packages:
//
//   - internal/fetch: pooled HTTP/2 capable client, no retries
//   - internal/scheduler: interval scheduling with a bounded worker pool
//   - internal/store: snapshot storage with pub/sub
//   - internal/server: REST API, refresh endpoint and Server-Sent Events
//   - dashboard: embedded web UI assets
package livefetch
