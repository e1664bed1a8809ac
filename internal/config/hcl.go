package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/pagetree/api"
)

// hclFile is the HCL form of Config:
//
//	database = "pages.db"
//	listen   = ":8080"
//
//	site "main" {
//	  id = 1
//	}
//	site "fr" {
//	  id   = 2
//	  path = "/fr"
//	}
type hclFile struct {
	Database string    `hcl:"database,optional"`
	Listen   string    `hcl:"listen,optional"`
	Sites    []hclSite `hcl:"site,block"`
}

type hclSite struct {
	Name string `hcl:"name,label"`
	ID   int64  `hcl:"id"`
	Path string `hcl:"path,optional"`
}

// decodeHCL applies an HCL document over cfg. Unset attributes keep
// their current value.
func decodeHCL(filename string, data []byte, cfg *Config) error {
	var f hclFile
	if err := hclsimple.Decode(filename, data, nil, &f); err != nil {
		return err
	}
	if f.Database != "" {
		cfg.Database = f.Database
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	for _, s := range f.Sites {
		cfg.Sites = append(cfg.Sites, api.Site{ID: s.ID, Name: s.Name, Path: s.Path})
	}
	return nil
}
