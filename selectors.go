package livefetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Selector turns an HTTP response into the value published by a resource.
//
// Selectors are pure functions: the same body and status code always
// produce the same result. A returned error fails the refresh and is
// published on the resource's Err store; the previous value is kept.
//
// Selectors run inside the refresh panic boundary, so a panicking selector
// fails the refresh with a correlation ID instead of crashing the process.
type Selector func(body []byte, statusCode int) (any, error)

// ErrNoMatch is returned by selectors that found nothing to select.
var ErrNoMatch = errors.New("selector found no match")

// JSONSelector decodes the whole body as JSON.
//
// Objects decode to map[string]any, arrays to []any, and numbers to
// float64, as with [encoding/json].
var JSONSelector Selector = func(body []byte, statusCode int) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// TextSelector returns the body as a string with surrounding whitespace
// trimmed.
var TextSelector Selector = func(body []byte, statusCode int) (any, error) {
	return strings.TrimSpace(string(body)), nil
}

// JSONFieldSelector returns a [Selector] that decodes the body as JSON and
// returns the value at a dot-separated path.
//
// For example, "data.quote.text" selects "hi" from
// {"data": {"quote": {"text": "hi"}}}. Path segments index objects only.
// The selected value may be any JSON type, including objects and arrays.
//
// Returns [ErrNoMatch] if a segment is missing or crosses a non-object.
//
// Example:
//
//	src, _ := livefetch.NewSource("price", "https://api.example.com/ticker",
//	    livefetch.WithSelector(livefetch.JSONFieldSelector("data.last")),
//	)
func JSONFieldSelector(path string) Selector {
	parts := strings.Split(path, ".")

	return func(body []byte, statusCode int) (any, error) {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}

		value, ok := walkJSONPath(data, parts)
		if !ok {
			return nil, fmt.Errorf("json path %q: %w", path, ErrNoMatch)
		}
		return value, nil
	}
}

// walkJSONPath walks a decoded JSON structure using dot notation parts.
func walkJSONPath(data any, parts []string) (any, bool) {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// RegexSelector returns a [Selector] that matches the body against a
// regular expression and returns the first capture group as a string.
//
// The pattern must contain at least one capture group. Returns
// [ErrNoMatch] from the selector if the body does not match.
//
// Example:
//
//	sel, err := livefetch.RegexSelector(`version:\s*(\S+)`)
func RegexSelector(pattern string) (Selector, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("regex %q has no capture group", pattern)
	}

	return func(body []byte, statusCode int) (any, error) {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return nil, fmt.Errorf("regex %q: %w", pattern, ErrNoMatch)
		}
		return string(matches[1]), nil
	}, nil
}

// MustRegexSelector is like [RegexSelector] but panics if the pattern is
// invalid. Use it for compile-time constant patterns.
func MustRegexSelector(pattern string) Selector {
	sel, err := RegexSelector(pattern)
	if err != nil {
		panic("livefetch: invalid regex selector: " + err.Error())
	}
	return sel
}

// FirstMatch returns a [Selector] that tries selectors in order and returns
// the first result without an error.
//
// If every selector fails, the error of the last one is returned. With no
// selectors, FirstMatch always returns [ErrNoMatch].
//
// Example:
//
//	sel := livefetch.FirstMatch(
//	    livefetch.JSONFieldSelector("data"),
//	    livefetch.TextSelector,
//	)
func FirstMatch(selectors ...Selector) Selector {
	return func(body []byte, statusCode int) (any, error) {
		err := ErrNoMatch
		for _, sel := range selectors {
			var v any
			v, err = sel(body, statusCode)
			if err == nil {
				return v, nil
			}
		}
		return nil, err
	}
}

// DefaultSelector is used when a [Source] has no selector: it decodes the
// body as JSON and falls back to trimmed text.
var DefaultSelector = FirstMatch(JSONSelector, TextSelector)
