package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigCache holds the feeds declared in the YAML seed file, keyed by URL.
type ConfigCache struct {
	path  string
	cache map[string]*Config
	order []string
	mu    sync.RWMutex
}

func NewConfigCache(path string) *ConfigCache {
	return &ConfigCache{
		path:  path,
		cache: make(map[string]*Config),
	}
}

func (cc *ConfigCache) Path() string {
	return cc.path
}

// Run (re)loads the seed file. A missing file or empty path yields an empty
// cache. On error the previous contents are kept.
func (cc *ConfigCache) Run() error {
	if cc.path == "" {
		return nil
	}

	data, err := os.ReadFile(cc.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cc.replace(nil)
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	configs := make([]*Config, 0, len(seed.Feeds))
	seen := make(map[string]bool, len(seed.Feeds))
	for i := range seed.Feeds {
		feedConfig := &seed.Feeds[i]
		feedConfig.URL = strings.TrimSpace(feedConfig.URL)
		feedConfig.Category = strings.TrimSpace(feedConfig.Category)

		if err := cc.validateConfig(feedConfig); err != nil {
			return fmt.Errorf("invalid feed at index %d in %s: %w", i, cc.path, err)
		}
		if seen[feedConfig.URL] {
			return fmt.Errorf("duplicate feed %s in %s", feedConfig.URL, cc.path)
		}
		seen[feedConfig.URL] = true

		configs = append(configs, feedConfig)
		slog.Debug("Configuration loaded", "feed", feedConfig.URL, "enabled", feedConfig.IsEnabled(), "filters", len(feedConfig.Filters))
	}

	cc.replace(configs)
	return nil
}

func (cc *ConfigCache) replace(configs []*Config) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache = make(map[string]*Config, len(configs))
	cc.order = cc.order[:0]
	for _, c := range configs {
		cc.cache[c.URL] = c
		cc.order = append(cc.order, c.URL)
	}
}

// GetConfig returns the seed entry for url, or nil when the feed is not declared.
func (cc *ConfigCache) GetConfig(url string) *Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.cache[url]
}

// GetConfigs returns the declared feeds in file order.
func (cc *ConfigCache) GetConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configs := make([]*Config, 0, len(cc.order))
	for _, u := range cc.order {
		configs = append(configs, cc.cache[u])
	}
	return configs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if !strings.HasPrefix(feedConfig.URL, "http://") && !strings.HasPrefix(feedConfig.URL, "https://") {
		return fmt.Errorf("feed URL must be http or https: %s", feedConfig.URL)
	}

	for i, filter := range feedConfig.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
