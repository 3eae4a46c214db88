package config

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSources_SingleSource(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{{Name: "quote", URL: "https://api.example.com/quote"}},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("len(sources) = %d, want 1", len(sources))
	}
	if sources[0].Name() != "quote" || sources[0].URL() != "https://api.example.com/quote" {
		t.Errorf("source = %s %s", sources[0].Name(), sources[0].URL())
	}
	if sources[0].Selector() != nil {
		t.Error("default selector should be nil")
	}
}

func TestBuildSources_AllOptions(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{{
			Name:     "quote",
			URL:      "https://api.example.com/quote",
			Method:   "POST",
			Timeout:  Duration(5 * time.Second),
			Headers:  map[string]string{"Authorization": "Bearer x"},
			Labels:   map[string]string{"team": "growth"},
			Selector: SelectorConfig{Type: "json", Path: "data.quote"},
			Interval: Duration(20 * time.Second),
		}},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}

	src := sources[0]
	if src.Method() != "POST" {
		t.Errorf("Method() = %q", src.Method())
	}
	if src.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v", src.Timeout())
	}
	if src.Headers()["Authorization"] != "Bearer x" {
		t.Errorf("Headers() = %v", src.Headers())
	}
	if src.Labels()["team"] != "growth" {
		t.Errorf("Labels() = %v", src.Labels())
	}
	if src.Interval() != 20*time.Second {
		t.Errorf("Interval() = %v", src.Interval())
	}

	got, err := src.Selector()([]byte(`{"data": {"quote": "hi"}}`), 200)
	if err != nil || got != "hi" {
		t.Errorf("Selector() = %v, %v; want hi", got, err)
	}
}

func TestBuildSources_Grid(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{{
			Name:        "Weather",
			URLTemplate: "https://api.example.com/weather?city={{.city}}",
			Dimensions:  map[string][]string{"city": {"Oslo", "Rome"}},
			Labels:      map[string]string{"kind": "weather"},
			Selector:    SelectorConfig{Type: "text"},
		}},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].Name() != "Weather (Oslo)" {
		t.Errorf("Name() = %q", sources[0].Name())
	}
	if sources[1].URL() != "https://api.example.com/weather?city=Rome" {
		t.Errorf("URL() = %q", sources[1].URL())
	}
	if sources[1].Labels()["kind"] != "weather" || sources[1].Labels()["city"] != "Rome" {
		t.Errorf("Labels() = %v", sources[1].Labels())
	}
}

func TestBuildSources_MixedSourcesAndGrids(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{{Name: "direct", URL: "https://example.com"}},
		Grids: []GridConfig{{
			Name:        "G",
			URLTemplate: "https://{{.env}}.example.com",
			Dimensions:  map[string][]string{"env": {"a", "b"}},
		}},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("len(sources) = %d, want 3", len(sources))
	}
	if sources[0].Name() != "direct" {
		t.Errorf("direct sources come first, got %q", sources[0].Name())
	}
}

func TestBuildSelector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SelectorConfig
		body    string
		want    any
		wantNil bool
	}{
		{"empty is default", SelectorConfig{}, "", nil, true},
		{"default", SelectorConfig{Type: "default"}, "", nil, true},
		{"json whole", SelectorConfig{Type: "json"}, `"x"`, "x", false},
		{"json path", SelectorConfig{Type: "json", Path: "a.b"}, `{"a": {"b": "y"}}`, "y", false},
		{"text", SelectorConfig{Type: "text"}, " z ", "z", false},
		{"regex", SelectorConfig{Type: "regex", Pattern: `v(\d+)`}, "v42", "42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := buildSelector(tt.cfg)
			if err != nil {
				t.Fatalf("buildSelector() error = %v", err)
			}
			if tt.wantNil {
				if sel != nil {
					t.Error("buildSelector() should return nil")
				}
				return
			}
			got, err := sel([]byte(tt.body), 200)
			if err != nil || got != tt.want {
				t.Errorf("selector = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestBuildSources_GridTemplateExecutionError(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{{
			Name:        "Platform API",
			URLTemplate: "https://{{.missing}}.example.com",
			Dimensions:  map[string][]string{"env": {"prod"}},
		}},
	}

	_, err := BuildSources(cfg)
	if err == nil || !strings.Contains(err.Error(), "grid (Platform API)") {
		t.Errorf("BuildSources() error = %v, want grid name in error", err)
	}
}

func TestBuildSources_GridMissingScheme(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{{
			Name:        "G",
			URLTemplate: "{{.host}}/health",
			Dimensions:  map[string][]string{"host": {"example.com"}},
		}},
	}

	if _, err := BuildSources(cfg); err == nil {
		t.Error("BuildSources() expected error for URL without scheme")
	}
}

func TestBuildOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
title: Quotes
port: 9000
refresh_interval: 5s
sources:
  - name: quote
    url: https://example.com
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	// sources, port, interval, concurrency, title
	if len(opts) != 5 {
		t.Errorf("len(opts) = %d, want 5", len(opts))
	}
}

func TestFindSource(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{
			{Name: "a", URL: "https://a.example.com"},
			{Name: "b", URL: "https://b.example.com"},
		},
	}

	src, ok, err := FindSource(cfg, "b")
	if err != nil || !ok {
		t.Fatalf("FindSource() = %v, %v", ok, err)
	}
	if src.URL() != "https://b.example.com" {
		t.Errorf("URL() = %q", src.URL())
	}

	_, ok, err = FindSource(cfg, "missing")
	if err != nil || ok {
		t.Errorf("FindSource(missing) = %v, %v", ok, err)
	}
}
