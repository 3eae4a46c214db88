package livefetch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
	"time"
)

// gridConfig holds configuration during source grid construction.
type gridConfig struct {
	urlTemplate  string
	dimensions   map[string][]string
	staticLabels map[string]string
	headers      map[string]string
	timeout      time.Duration
	selector     Selector
	method       string
	interval     time.Duration
}

// GridOption configures [NewSourceGrid].
type GridOption func(*gridConfig) error

// NewSourceGrid creates one [Source] per combination of dimension values.
//
// The URL template uses [text/template] syntax with dimension keys as
// variables. Values are URL-encoded before interpolation, and a key missing
// from the template data is an error.
//
// Each source is named "Base Name (val1/val2)", with values ordered by
// sorted key, and is labelled with its dimension values. Static labels from
// [WithGridLabels] win on collision.
//
// Example:
//
//	sources, err := livefetch.NewSourceGrid("Weather",
//	    livefetch.WithURLTemplate("https://api.example.com/weather?city={{.city}}"),
//	    livefetch.WithDimensions(map[string][]string{
//	        "city": {"London", "Lisbon"},
//	    }),
//	    livefetch.WithGridSelector(livefetch.JSONFieldSelector("current.temp")),
//	)
//	// two sources, usable with WithSources(sources...)
func NewSourceGrid(baseName string, opts ...GridOption) ([]Source, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{
		staticLabels: make(map[string]string),
		headers:      make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := CartesianProduct(cfg.dimensions)
	sources := make([]Source, 0, len(combinations))
	for _, combo := range combinations {
		rawURL, err := executeTemplate(tmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", baseName, combo, err)
		}

		name := GridName(baseName, combo)

		srcOpts := []SourceOption{
			WithLabels(flattenMap(mergeMaps(combo, cfg.staticLabels))...),
		}
		if len(cfg.headers) > 0 {
			srcOpts = append(srcOpts, WithHeaders(flattenMap(cfg.headers)...))
		}
		if cfg.timeout > 0 {
			srcOpts = append(srcOpts, WithTimeout(cfg.timeout))
		}
		if cfg.selector != nil {
			srcOpts = append(srcOpts, WithSelector(cfg.selector))
		}
		if cfg.method != "" {
			srcOpts = append(srcOpts, WithMethod(cfg.method))
		}
		if cfg.interval > 0 {
			srcOpts = append(srcOpts, WithInterval(cfg.interval))
		}

		src, err := NewSource(name, rawURL, srcOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create source '%s': %w", name, err)
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// WithURLTemplate sets the URL template, for example
// "https://api.example.com/quote?lang={{.lang}}".
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the values to expand. Every key becomes a template
// variable.
//
// Returns an error if the map is empty, a dimension has no values, or a
// value is empty.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		cp := make(map[string][]string, len(dims))
		for k, values := range dims {
			if len(values) == 0 {
				return fmt.Errorf("dimension %q has no values", k)
			}
			for _, v := range values {
				if v == "" {
					return fmt.Errorf("dimension %q contains an empty value", k)
				}
			}
			cp[k] = append([]string(nil), values...)
		}
		cfg.dimensions = cp
		return nil
	}
}

// WithGridLabels adds static labels to every generated source.
func WithGridLabels(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticLabels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridHeaders adds request headers to every generated source.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTimeout sets the request timeout of every generated source.
// Validated by [WithTimeout].
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridSelector sets the selector of every generated source.
func WithGridSelector(sel Selector) GridOption {
	return func(cfg *gridConfig) error {
		cfg.selector = sel
		return nil
	}
}

// WithGridMethod sets the HTTP method of every generated source.
// Validated by [WithMethod].
func WithGridMethod(method string) GridOption {
	return func(cfg *gridConfig) error {
		cfg.method = method
		return nil
	}
}

// WithGridInterval sets the refresh interval of every generated source.
// Validated by [WithInterval].
func WithGridInterval(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		cfg.interval = d
		return nil
	}
}

// CartesianProduct returns every combination of dimension values.
//
// Keys are iterated in sorted order and values keep their slice order, so
// the output is deterministic:
//
//	{"x": ["a","b"], "y": ["1","2"]}
//	=> [{x:a y:1} {x:a y:2} {x:b y:1} {x:b y:2}]
//
// Returns nil if dims is empty or any dimension has no values.
func CartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// odometer increment, rightmost first
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// GridName formats a generated source name as "Base (v1/v2)", with values
// ordered by sorted key.
func GridName(baseName string, combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// mergeMaps merges maps, with later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// flattenMap converts a map to sorted key-value pairs for variadic options.
func flattenMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(m)*2)
	for _, k := range keys {
		result = append(result, k, m[k])
	}
	return result
}
