// Package config loads the pagetree configuration from YAML or HCL.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/pagetree/api"
)

// Config holds the full pagetree configuration.
type Config struct {
	Database string     `yaml:"database"`
	Listen   string     `yaml:"listen"`
	Sites    []api.Site `yaml:"sites"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: "pages.db",
		Listen:   ":8080",
	}
}

// Load reads a config file over Default. Files ending in .hcl are HCL,
// anything else is YAML. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if filepath.Ext(path) == ".hcl" {
			err = decodeHCL(path, data, cfg)
		} else {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if len(cfg.Sites) == 0 {
		cfg.Sites = []api.Site{{ID: 1, Name: "main"}}
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and site paths are
// usable as path prefixes.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	ids := make(map[int64]bool, len(c.Sites))
	paths := make(map[string]int64, len(c.Sites))
	for i, s := range c.Sites {
		if s.ID <= 0 {
			return fmt.Errorf("sites[%d]: id must be > 0", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("sites[%d]: duplicate id %d", i, s.ID)
		}
		ids[s.ID] = true
		if s.Path != "" && (!strings.HasPrefix(s.Path, "/") || strings.HasSuffix(s.Path, "/")) {
			return fmt.Errorf("sites[%d]: path %q must start with / and not end with /", i, s.Path)
		}
		if other, dup := paths[s.Path]; dup {
			return fmt.Errorf("sites[%d]: path %q already used by site %d", i, s.Path, other)
		}
		paths[s.Path] = s.ID
	}
	return nil
}

// Site returns the site with the given id.
func (c *Config) Site(id int64) (api.Site, bool) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return api.Site{}, false
}

// SiteFor returns the site whose base path is the longest prefix of path,
// matched on a segment boundary.
func (c *Config) SiteFor(path string) (api.Site, bool) {
	var best api.Site
	found := false
	for _, s := range c.Sites {
		if !underPath(path, s.Path) {
			continue
		}
		if !found || len(s.Path) > len(best.Path) {
			best, found = s, true
		}
	}
	return best, found
}

func underPath(path, base string) bool {
	if base == "" {
		return true
	}
	if !strings.HasPrefix(path, base) {
		return false
	}
	return len(path) == len(base) || path[len(base)] == '/'
}
