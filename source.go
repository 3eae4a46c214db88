package livefetch

import (
	"errors"
	"net/url"
	"time"
)

const defaultSourceTimeout = 10 * time.Second

// Source describes one external HTTP API whose response is kept live.
//
// Source is immutable after creation via [NewSource]. Getters return copies
// of mutable data (maps).
type Source struct {
	name     string
	url      string
	labels   map[string]string
	headers  map[string]string
	timeout  time.Duration
	selector Selector
	method   string
	interval time.Duration
}

// Name returns the source's name. Names identify resources on a [Board]
// and in the HTTP API.
func (s Source) Name() string {
	return s.name
}

// URL returns the upstream URL.
func (s Source) URL() string {
	return s.url
}

// Labels returns a copy of the source's labels.
func (s Source) Labels() map[string]string {
	return copyMap(s.labels)
}

// Headers returns a copy of the custom request headers.
func (s Source) Headers() map[string]string {
	return copyMap(s.headers)
}

// Timeout returns the per-request timeout. Defaults to 10 seconds.
func (s Source) Timeout() time.Duration {
	return s.timeout
}

// Selector returns the configured [Selector], or nil when
// [DefaultSelector] applies.
func (s Source) Selector() Selector {
	return s.selector
}

// Method returns the HTTP method. Empty means GET.
func (s Source) Method() string {
	return s.method
}

// Interval returns the source's own refresh interval, or 0 when the board
// interval applies.
func (s Source) Interval() time.Duration {
	return s.interval
}

// NewSource creates a [Source] with the given name, URL and options.
//
// rawURL must be an absolute http or https URL. Returns an error if the
// name is empty, the URL is invalid, or an option fails.
//
// Example:
//
//	src, err := livefetch.NewSource("quote", "https://api.example.com/quote",
//	    livefetch.WithHeaders("Accept", "application/json"),
//	    livefetch.WithTimeout(5 * time.Second),
//	    livefetch.WithSelector(livefetch.JSONFieldSelector("data")),
//	)
func NewSource(name, rawURL string, opts ...SourceOption) (Source, error) {
	if name == "" {
		return Source{}, errors.New("source name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Source{}, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &sourceConfig{
		labels:  make(map[string]string),
		headers: make(map[string]string),
		timeout: defaultSourceTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Source{}, err
		}
	}

	return Source{
		name:     name,
		url:      rawURL,
		labels:   cfg.labels,
		headers:  cfg.headers,
		timeout:  cfg.timeout,
		selector: cfg.selector,
		method:   cfg.method,
		interval: cfg.interval,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
