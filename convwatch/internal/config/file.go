// Package config handles convwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/convwatch/horosafe"
)

// Config is the top-level convwatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	DBPath   string         `yaml:"db_path"`
	Debounce DebounceConfig `yaml:"debounce"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Focus    FocusConfig    `yaml:"focus"`
	Extract  ExtractConfig  `yaml:"extract"`
	Merge    MergeConfig    `yaml:"merge"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	Stealth          string   `yaml:"stealth"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`
}

// PageConfig defines a conversation page to observe.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// DebounceConfig controls mutation coalescing.
type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
}

// CrawlConfig controls the scroll-and-scan crawl.
type CrawlConfig struct {
	MaxSteps       int           `yaml:"max_steps"`
	ScrollFraction float64       `yaml:"scroll_fraction"`
	Settle         time.Duration `yaml:"settle"`
}

// FocusConfig controls message focusing and deep links.
type FocusConfig struct {
	Highlight      time.Duration `yaml:"highlight"`
	HighlightClass string        `yaml:"highlight_class"`
	HashDelay      time.Duration `yaml:"hash_delay"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// ExtractConfig controls role detection.
type ExtractConfig struct {
	AssistantName string `yaml:"assistant_name"`
}

// MergeConfig selects the snapshot merge policy.
type MergeConfig struct {
	Policy string `yaml:"policy"` // newest | longest
}

// HTTPConfig controls the panel API. An empty Addr disables it.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	OriginPatterns []string `yaml:"origin_patterns"`
}

// SinkConfig defines an output backend. Webhooks to loopback or private
// addresses are refused unless AllowPrivate is set.
type SinkConfig struct {
	Type         string `yaml:"type"` // stdout | webhook
	URL          string `yaml:"url"`  // for webhook
	AllowPrivate bool   `yaml:"allow_private"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks page and sink targets.
func (c *Config) Validate() error {
	for i, p := range c.Pages {
		if p.ID != "" {
			if err := horosafe.ValidateIdentifier(p.ID); err != nil {
				return fmt.Errorf("config: pages[%d].id: %w", i, err)
			}
		}
		if err := horosafe.ValidateURL(p.URL, true); err != nil {
			return fmt.Errorf("config: pages[%d].url: %w", i, err)
		}
	}
	for i, s := range c.Sinks {
		if s.Type != "webhook" {
			continue
		}
		if err := horosafe.ValidateURL(s.URL, s.AllowPrivate); err != nil {
			return fmt.Errorf("config: sinks[%d].url: %w", i, err)
		}
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.DBPath == "" {
		c.DBPath = "convwatch.db"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Crawl.MaxSteps <= 0 {
		c.Crawl.MaxSteps = 80
	}
	if c.Crawl.ScrollFraction <= 0 || c.Crawl.ScrollFraction > 1 {
		c.Crawl.ScrollFraction = 0.85
	}
	if c.Crawl.Settle <= 0 {
		c.Crawl.Settle = 220 * time.Millisecond
	}
	if c.Focus.Highlight <= 0 {
		c.Focus.Highlight = 2 * time.Second
	}
	if c.Focus.HighlightClass == "" {
		c.Focus.HighlightClass = "oai-graph-focus"
	}
	if c.Focus.HashDelay <= 0 {
		c.Focus.HashDelay = 200 * time.Millisecond
	}
	if c.Focus.RetryDelay <= 0 {
		c.Focus.RetryDelay = 300 * time.Millisecond
	}
	if c.Extract.AssistantName == "" {
		c.Extract.AssistantName = "chatgpt"
	}
	if c.Merge.Policy == "" {
		c.Merge.Policy = "newest"
	}
}
