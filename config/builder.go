package config

import (
	"sort"

	"github.com/jpalmerr/livefetch"
)

// BuildSources converts parsed configuration into SDK sources.
//
// Direct sources come first, in file order, followed by grid sources.
// Grids are expanded with [livefetch.NewSourceGrid].
func BuildSources(cfg *Config) ([]livefetch.Source, error) {
	var sources []livefetch.Source

	for _, sc := range cfg.Sources {
		src, err := buildSource(sc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	for _, gc := range cfg.Grids {
		gridSources, err := buildGridSources(gc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, gridSources...)
	}

	return sources, nil
}

// BuildOptions returns the board options for cfg, including its sources.
func BuildOptions(cfg *Config) ([]livefetch.Option, error) {
	sources, err := BuildSources(cfg)
	if err != nil {
		return nil, err
	}

	opts := []livefetch.Option{
		livefetch.WithSources(sources...),
		livefetch.WithPort(cfg.Port),
		livefetch.WithRefreshInterval(cfg.RefreshInterval.Duration()),
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, livefetch.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.Title != "" {
		opts = append(opts, livefetch.WithTitle(cfg.Title))
	}
	return opts, nil
}

// FindSource returns the source named name from the built configuration.
func FindSource(cfg *Config, name string) (livefetch.Source, bool, error) {
	sources, err := BuildSources(cfg)
	if err != nil {
		return livefetch.Source{}, false, err
	}
	for _, src := range sources {
		if src.Name() == name {
			return src, true, nil
		}
	}
	return livefetch.Source{}, false, nil
}

func buildSource(sc SourceConfig) (livefetch.Source, error) {
	var opts []livefetch.SourceOption

	if sc.Method != "" {
		opts = append(opts, livefetch.WithMethod(sc.Method))
	}
	if sc.Timeout != 0 {
		opts = append(opts, livefetch.WithTimeout(sc.Timeout.Duration()))
	}
	if len(sc.Headers) > 0 {
		opts = append(opts, livefetch.WithHeaders(mapToKeyValuePairs(sc.Headers)...))
	}
	if len(sc.Labels) > 0 {
		opts = append(opts, livefetch.WithLabels(mapToKeyValuePairs(sc.Labels)...))
	}
	sel, err := buildSelector(sc.Selector)
	if err != nil {
		return livefetch.Source{}, err
	}
	if sel != nil {
		opts = append(opts, livefetch.WithSelector(sel))
	}
	if sc.Interval != 0 {
		opts = append(opts, livefetch.WithInterval(sc.Interval.Duration()))
	}

	return livefetch.NewSource(sc.Name, sc.URL, opts...)
}

func buildGridSources(gc GridConfig) ([]livefetch.Source, error) {
	opts := []livefetch.GridOption{
		livefetch.WithURLTemplate(gc.URLTemplate),
		livefetch.WithDimensions(gc.Dimensions),
	}

	if gc.Method != "" {
		opts = append(opts, livefetch.WithGridMethod(gc.Method))
	}
	if gc.Timeout != 0 {
		opts = append(opts, livefetch.WithGridTimeout(gc.Timeout.Duration()))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, livefetch.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}
	if len(gc.Labels) > 0 {
		opts = append(opts, livefetch.WithGridLabels(mapToKeyValuePairs(gc.Labels)...))
	}
	sel, err := buildSelector(gc.Selector)
	if err != nil {
		return nil, err
	}
	if sel != nil {
		opts = append(opts, livefetch.WithGridSelector(sel))
	}
	if gc.Interval != 0 {
		opts = append(opts, livefetch.WithGridInterval(gc.Interval.Duration()))
	}

	return livefetch.NewSourceGrid(gc.Name, opts...)
}

// buildSelector converts a SelectorConfig to a Selector. It returns nil for
// the default selector.
func buildSelector(sc SelectorConfig) (livefetch.Selector, error) {
	switch sc.Type {
	case "json":
		if sc.Path == "" {
			return livefetch.JSONSelector, nil
		}
		return livefetch.JSONFieldSelector(sc.Path), nil
	case "text":
		return livefetch.TextSelector, nil
	case "regex":
		return livefetch.RegexSelector(sc.Pattern)
	default:
		return nil, nil
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
