// Package config provides configuration loading and management for semsimilar.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported values for SimilarConfig.AppendAt.
const (
	AppendAtStart = "start"
	AppendAtEnd   = "end"
)

// Supported values for SimilarConfig.Metric.
const (
	MetricWeighted   = "weighted"
	MetricUnweighted = "unweighted"
)

var (
	// ErrUnsupportedAppendAt is returned for an append_at value other than start or end.
	ErrUnsupportedAppendAt = errors.New("unsupported append_at value")

	// ErrUnsupportedMetric is returned for a metric other than weighted or unweighted.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")
)

// Config represents the complete semsimilar configuration
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Similar SimilarConfig `yaml:"similar"`
	Watch   WatchConfig   `yaml:"watch"`
}

// SiteConfig describes the document tree the build runs over
type SiteConfig struct {
	// DocsDir is the root of the markdown document tree (default: docs)
	DocsDir string `yaml:"docs_dir"`
	// OutputDir receives the rewritten documents (default: site)
	OutputDir string `yaml:"output_dir"`
	// Include lists doublestar patterns relative to DocsDir
	Include []string `yaml:"include"`
	// ExcludeDirs lists directory names skipped during discovery
	ExcludeDirs []string `yaml:"exclude_dirs"`
	// Blogs lists the blog collections whose posts are grouped by category
	Blogs []BlogConfig `yaml:"blogs"`
}

// BlogConfig declares one blog collection rooted at Dir.
type BlogConfig struct {
	Dir     string `yaml:"dir"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the blog takes part in the build. Blogs are
// enabled unless explicitly disabled.
func (b BlogConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// SimilarConfig configures the similar posts section
type SimilarConfig struct {
	// CollectionRoots are the prefixes eligible for similarity matching
	CollectionRoots StringList `yaml:"collection_roots"`
	// SimilarityThreshold is the inclusive minimum score (0.0-1.0, default: 0.5)
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// MaxShown caps the rendered results; 0 or negative means unlimited
	MaxShown int `yaml:"max_shown"`
	// Title is the heading text of the rendered block
	Title string `yaml:"title"`
	// AppendAt is where the block goes in the body: start or end
	AppendAt string `yaml:"append_at"`
	// Metric selects the scoring formula: weighted or unweighted
	Metric string `yaml:"metric"`

	// explicit holds the keys present in the parsed YAML, so Merge can tell
	// an explicit zero from an unset value.
	explicit map[string]bool
}

// UnmarshalYAML records which keys were present in the document.
func (s *SimilarConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain SimilarConfig
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.explicit = make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		s.explicit[node.Content[i].Value] = true
	}
	return nil
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// DebounceDelay is how long to wait for more changes before rebuilding
	DebounceDelay time.Duration `yaml:"debounce_delay"`
	// MetricsAddr exposes Prometheus metrics when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr"`
}

// StringList is a list of strings that also accepts a single scalar in YAML.
type StringList []string

// UnmarshalYAML accepts either `key: value` or `key: [a, b]`.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			DocsDir:     "docs",
			OutputDir:   "site",
			Include:     []string{"**/*.md"},
			ExcludeDirs: []string{".git", "node_modules"},
			Blogs:       []BlogConfig{{Dir: "blog"}},
		},
		Similar: SimilarConfig{
			CollectionRoots:     StringList{"blog"},
			SimilarityThreshold: 0.5,
			MaxShown:            3,
			Title:               "Similar posts",
			AppendAt:            AppendAtEnd,
			Metric:              MetricWeighted,
		},
		Watch: WatchConfig{
			DebounceDelay: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Site.DocsDir == "" {
		return fmt.Errorf("site.docs_dir is required")
	}
	if c.Site.OutputDir == "" {
		return fmt.Errorf("site.output_dir is required")
	}
	if filepath.Clean(c.Site.DocsDir) == filepath.Clean(c.Site.OutputDir) {
		return fmt.Errorf("site.output_dir must differ from site.docs_dir")
	}
	if len(c.Site.Include) == 0 {
		return fmt.Errorf("site.include must list at least one pattern")
	}
	for i, blog := range c.Site.Blogs {
		if strings.TrimSpace(blog.Dir) == "" {
			return fmt.Errorf("site.blogs[%d].dir is required", i)
		}
	}
	if c.Similar.SimilarityThreshold < 0 || c.Similar.SimilarityThreshold > 1 {
		return fmt.Errorf("similar.similarity_threshold must be between 0 and 1")
	}
	switch c.Similar.AppendAt {
	case AppendAtStart, AppendAtEnd:
	default:
		return fmt.Errorf("similar.append_at %q: %w", c.Similar.AppendAt, ErrUnsupportedAppendAt)
	}
	switch c.Similar.Metric {
	case MetricWeighted, MetricUnweighted:
	default:
		return fmt.Errorf("similar.metric %q: %w", c.Similar.Metric, ErrUnsupportedMetric)
	}
	if c.Watch.DebounceDelay < 0 {
		return fmt.Errorf("watch.debounce_delay must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadOverlay parses a YAML file onto an empty Config so Merge only sees the
// values the file actually sets.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	overlay := &Config{}
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), overlay); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return overlay, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Site
	if other.Site.DocsDir != "" {
		c.Site.DocsDir = other.Site.DocsDir
	}
	if other.Site.OutputDir != "" {
		c.Site.OutputDir = other.Site.OutputDir
	}
	if len(other.Site.Include) > 0 {
		c.Site.Include = other.Site.Include
	}
	if len(other.Site.ExcludeDirs) > 0 {
		c.Site.ExcludeDirs = other.Site.ExcludeDirs
	}
	if len(other.Site.Blogs) > 0 {
		c.Site.Blogs = other.Site.Blogs
	}

	// Similar
	if len(other.Similar.CollectionRoots) > 0 {
		c.Similar.CollectionRoots = other.Similar.CollectionRoots
	}
	if other.Similar.SimilarityThreshold != 0 || other.Similar.explicit["similarity_threshold"] {
		c.Similar.SimilarityThreshold = other.Similar.SimilarityThreshold
	}
	if other.Similar.MaxShown != 0 || other.Similar.explicit["max_shown"] {
		c.Similar.MaxShown = other.Similar.MaxShown
	}
	if other.Similar.Title != "" {
		c.Similar.Title = other.Similar.Title
	}
	if other.Similar.AppendAt != "" {
		c.Similar.AppendAt = other.Similar.AppendAt
	}
	if other.Similar.Metric != "" {
		c.Similar.Metric = other.Similar.Metric
	}

	// Watch
	if other.Watch.DebounceDelay != 0 {
		c.Watch.DebounceDelay = other.Watch.DebounceDelay
	}
	if other.Watch.MetricsAddr != "" {
		c.Watch.MetricsAddr = other.Watch.MetricsAddr
	}
}
