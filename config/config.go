// Package config parses livefetch configuration files.
//
// It lets livefetch run as a standalone binary configured by a file, as an
// alternative to the programmatic SDK. Files are YAML, or TOML when the
// file name ends in ".toml".
//
// Example YAML configuration:
//
//	title: Live quotes
//	port: 8080
//	refresh_interval: 30s
//
//	sources:
//	  - name: Quote of the day
//	    url: https://api.example.com/quote
//	    selector: json:quote.text
//	    headers:
//	      Authorization: Bearer ${QUOTE_TOKEN}
//
//	grids:
//	  - name: Weather
//	    url_template: "https://api.example.com/weather?city={{.city}}"
//	    selector: json:current.temp
//	    dimensions:
//	      city: [London, Lisbon]
//
// The same configuration in TOML:
//
//	title = "Live quotes"
//	refresh_interval = "30s"
//
//	[[sources]]
//	name = "Quote of the day"
//	url = "https://api.example.com/quote"
//	selector = "json:quote.text"
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// minRefreshInterval prevents accidental hammering of upstream APIs.
const minRefreshInterval = 1 * time.Second

const (
	defaultPort            = 8080
	defaultRefreshInterval = 30 * time.Second
	defaultMaxConcurrency  = 10
)

// Config is the root configuration structure.
//
// Use [Load], [Parse] or [ParseTOML] to create one.
type Config struct {
	// Title is the dashboard title. Defaults to "livefetch" if not set.
	Title string `yaml:"title" toml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port" toml:"port"`

	// RefreshInterval is the time between automatic refreshes of sources
	// without their own interval. Defaults to 30s.
	RefreshInterval Duration `yaml:"refresh_interval" toml:"refresh_interval"`

	// MaxConcurrency bounds concurrent scheduled refreshes. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency" toml:"max_concurrency"`

	// Sources defines individual upstream APIs.
	Sources []SourceConfig `yaml:"sources" toml:"sources"`

	// Grids defines source grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids" toml:"grids"`
}

// SourceConfig defines a single upstream API.
type SourceConfig struct {
	// Name identifies the source on the dashboard and in the API.
	Name string `yaml:"name" toml:"name"`

	// URL is the upstream URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url" toml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method" toml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout" toml:"timeout"`

	// Headers are sent with each request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers" toml:"headers"`

	// Labels are metadata key-value pairs shown on the dashboard.
	Labels map[string]string `yaml:"labels" toml:"labels"`

	// Selector determines which part of the response is published.
	Selector SelectorConfig `yaml:"selector" toml:"selector"`

	// Interval overrides refresh_interval for this source.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval" toml:"interval"`
}

// GridConfig defines a source grid that expands via cartesian product.
//
// With dimensions {city: [London, Lisbon], unit: [metric, imperial]} the
// grid expands to four sources.
type GridConfig struct {
	// Name is the base name for generated sources.
	Name string `yaml:"name" toml:"name"`

	// URLTemplate is a Go template for generating URLs. Dimension keys are
	// available as template variables: {{.city}}. Supports environment
	// variable substitution.
	URLTemplate string `yaml:"url_template" toml:"url_template"`

	// Dimensions maps dimension names to their values.
	Dimensions map[string][]string `yaml:"dimensions" toml:"dimensions"`

	Method   string            `yaml:"method" toml:"method"`
	Timeout  Duration          `yaml:"timeout" toml:"timeout"`
	Headers  map[string]string `yaml:"headers" toml:"headers"`
	Labels   map[string]string `yaml:"labels" toml:"labels"`
	Selector SelectorConfig    `yaml:"selector" toml:"selector"`
	Interval Duration          `yaml:"interval" toml:"interval"`
}

// SelectorConfig specifies which part of a response is published.
//
// It accepts a shorthand string:
//
//	selector: json               # whole JSON document
//	selector: json:data.quote    # value at a dot path
//	selector: text               # trimmed body
//	selector: regex:v(\d+)       # first capture group
//	selector: default            # JSON, falling back to text
//
// or a structured object:
//
//	selector:
//	  type: regex
//	  pattern: 'version:\s*(\S+)'
type SelectorConfig struct {
	// Type is one of "default", "json", "text", "regex". Empty means default.
	Type string

	// Path is the JSON dot path (for type: json). Empty selects the whole
	// document.
	Path string

	// Pattern is the regular expression (for type: regex).
	Pattern string
}

// Duration wraps time.Duration for YAML and TOML decoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML
// decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for SelectorConfig.
func (s *SelectorConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var str string
		if err := node.Decode(&str); err != nil {
			return err
		}
		return s.parseShorthand(str)

	case yaml.MappingNode:
		// separate struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		s.Type, s.Path, s.Pattern = raw.Type, raw.Path, raw.Pattern
		return nil
	}

	return fmt.Errorf("selector must be a string or object, got %v", node.Kind)
}

// UnmarshalTOML implements toml.Unmarshaler for SelectorConfig.
func (s *SelectorConfig) UnmarshalTOML(v any) error {
	switch raw := v.(type) {
	case string:
		return s.parseShorthand(raw)
	case map[string]any:
		for key, dst := range map[string]*string{"type": &s.Type, "path": &s.Path, "pattern": &s.Pattern} {
			val, ok := raw[key]
			if !ok {
				continue
			}
			str, ok := val.(string)
			if !ok {
				return fmt.Errorf("selector %s must be a string", key)
			}
			*dst = str
		}
		return nil
	}
	return fmt.Errorf("selector must be a string or table, got %T", v)
}

// parseShorthand parses "default", "json", "json:path", "text" and
// "regex:pattern".
func (s *SelectorConfig) parseShorthand(str string) error {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}

	if idx := strings.Index(str, ":"); idx != -1 {
		s.Type = str[:idx]
		value := str[idx+1:]

		switch s.Type {
		case "json":
			s.Path = value
		case "regex":
			s.Pattern = value
		default:
			return fmt.Errorf("unknown selector type %q", s.Type)
		}
		return nil
	}

	switch str {
	case "default", "json", "text":
		s.Type = str
	default:
		return fmt.Errorf("unknown selector %q (expected 'default', 'json', 'json:path', 'text', or 'regex:pattern')", str)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a configuration file. Files ending in ".toml" are
// parsed as TOML and everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate and header
// values. Defaults are applied for Port, RefreshInterval and
// MaxConcurrency.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(&cfg)
}

// ParseTOML parses TOML configuration data with the same expansion,
// defaults and validation as [Parse].
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = Duration(defaultRefreshInterval)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.RefreshInterval.Duration() < minRefreshInterval {
		return fmt.Errorf("refresh_interval must be at least %s, got %s", minRefreshInterval, c.RefreshInterval.Duration())
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}

	names := make(map[string]bool, len(c.Sources))

	for i := range c.Sources {
		src := &c.Sources[i]

		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		where := fmt.Sprintf("sources[%d] (%s)", i, src.Name)

		if names[src.Name] {
			return fmt.Errorf("%s: duplicate name", where)
		}
		names[src.Name] = true

		if src.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		expanded, err := expandEnvVars(src.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", where, err)
		}
		src.URL = expanded

		parsedURL, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("%s: invalid url: %w", where, err)
		}
		if parsedURL.Scheme == "" {
			return fmt.Errorf("%s: url must have a scheme (http:// or https://)", where)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("%s: url scheme must be http or https, got %q", where, parsedURL.Scheme)
		}

		if err := validateRequest(where, src.Method, src.Timeout, src.Interval, src.Headers); err != nil {
			return err
		}
		if err := validateSelector(&src.Selector, where); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", where)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", where, err)
		}
		g.URLTemplate = expanded

		// fail before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", where, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := validateRequest(where, g.Method, g.Timeout, g.Interval, g.Headers); err != nil {
			return err
		}
		if err := validateSelector(&g.Selector, where); err != nil {
			return err
		}
	}

	if len(c.Sources) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one source or grid must be defined")
	}

	return nil
}

// validateRequest checks the request settings shared by sources and grids
// and expands environment variables in header values.
func validateRequest(where, method string, timeout, interval Duration, headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}

	if method != "" && method != "GET" && method != "HEAD" && method != "POST" {
		return fmt.Errorf("%s: method must be GET, HEAD, or POST", where)
	}

	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", where, timeout.Duration())
		}
		if timeout.Duration() < time.Second {
			return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", where, timeout.Duration())
		}
	}

	if interval != 0 {
		if interval.Duration() < time.Second {
			return fmt.Errorf("%s: interval must be at least 1s, got %s", where, interval.Duration())
		}
		if interval.Duration() > time.Hour {
			return fmt.Errorf("%s: interval must not exceed 1h, got %s", where, interval.Duration())
		}
	}

	return nil
}

// validateSelector validates a selector configuration.
func validateSelector(s *SelectorConfig, where string) error {
	switch s.Type {
	case "", "default", "json", "text":
		return nil
	case "regex":
		if s.Pattern == "" {
			return fmt.Errorf("%s: selector type 'regex' requires a pattern", where)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid selector pattern: %w", where, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: selector pattern needs a capture group", where)
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown selector type %q", where, s.Type)
	}
}
