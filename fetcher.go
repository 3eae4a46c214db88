package livefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jpalmerr/livefetch/internal/fetch"
)

var (
	sharedClientOnce sync.Once
	sharedClient     *fetch.Client
)

// defaultClient returns the HTTP client shared by fetchers created outside
// a [Board].
func defaultClient() *fetch.Client {
	sharedClientOnce.Do(func() {
		sharedClient = fetch.NewClient()
	})
	return sharedClient
}

// SourceFetcher returns a [Fetcher] that requests src once per call and
// applies its selector, or [DefaultSelector] if it has none.
//
// Transport failures and non-2xx responses are returned as [*FetchError].
// Selector errors are returned wrapped with the source name. The fetcher
// never retries.
//
// Example:
//
//	src, _ := livefetch.NewSource("quote", "https://api.example.com/quote")
//	quote := livefetch.NewResource(livefetch.SourceFetcher(src), nil)
//	quote.RefreshAsync(ctx)
func SourceFetcher(src Source) Fetcher[any] {
	return sourceFetcher(defaultClient(), src)
}

func sourceFetcher(client *fetch.Client, src Source) Fetcher[any] {
	sel := src.selector
	if sel == nil {
		sel = DefaultSelector
	}

	return func(ctx context.Context) (any, error) {
		body, status, err := do(ctx, client, src)
		if err != nil {
			return nil, err
		}
		v, err := sel(body, status)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", src.name, err)
		}
		return v, nil
	}
}

// FetchJSON returns a [Fetcher] that requests rawURL and decodes the JSON
// body into a T.
//
// opts are the same options accepted by [NewSource]; a [WithSelector]
// option is ignored. Returns an error if the URL or an option is invalid.
//
// Example:
//
//	type Quote struct {
//	    Text   string `json:"text"`
//	    Author string `json:"author"`
//	}
//
//	fetchQuote, err := livefetch.FetchJSON[Quote]("https://api.example.com/quote")
//	if err != nil {
//	    return err
//	}
//	quote := livefetch.NewResource(fetchQuote, Quote{})
func FetchJSON[T any](rawURL string, opts ...SourceOption) (Fetcher[T], error) {
	src, err := NewSource(rawURL, rawURL, opts...)
	if err != nil {
		return nil, err
	}
	client := defaultClient()

	return func(ctx context.Context) (T, error) {
		var v T
		body, _, err := do(ctx, client, src)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return v, &FetchError{URL: src.url, Err: fmt.Errorf("decode json: %w", err)}
		}
		return v, nil
	}, nil
}

// do performs the request for src and returns the body and status code of
// a 2xx response.
func do(ctx context.Context, client *fetch.Client, src Source) ([]byte, int, error) {
	resp := client.Fetch(ctx, src.method, src.url, src.headers, src.timeout)
	if resp.Error != nil {
		return nil, resp.StatusCode, &FetchError{URL: src.url, StatusCode: resp.StatusCode, Err: resp.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &FetchError{URL: src.url, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	return resp.Body, resp.StatusCode, nil
}
