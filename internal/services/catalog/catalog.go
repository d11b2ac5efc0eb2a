// Package catalog holds a curated list of widely held assets used for
// symbol search and for inferring asset types the caller left blank.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"PortfolioPulse/internal/domain/models"
)

// DefaultLimit caps Search when the caller passes no limit.
const DefaultLimit = 50

//go:embed assets.yaml
var defaultAssets []byte

// Asset is one catalog entry.
type Asset struct {
	Ticker   models.Ticker    `json:"ticker"`
	Name     string           `json:"name"`
	Class    string           `json:"asset_class"`
	Category string           `json:"category"`
	Type     models.AssetType `json:"asset_type"`
}

type group struct {
	Class    string `yaml:"class"`
	Category string `yaml:"category"`
	Type     string `yaml:"type"`
	Assets   []struct {
		Ticker string `yaml:"ticker"`
		Name   string `yaml:"name"`
	} `yaml:"assets"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	assets []Asset
	index  map[models.Ticker]int
}

// New loads the embedded asset list.
func New() (*Catalog, error) {
	return Load(defaultAssets)
}

// Load parses a YAML asset list. Duplicate tickers keep their first entry.
func Load(data []byte) (*Catalog, error) {
	var groups []group
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{index: make(map[models.Ticker]int)}
	for _, g := range groups {
		typ := models.AssetUnknown
		if g.Type != "" {
			typ = models.NormalizeAssetType(g.Type)
		}
		for _, a := range g.Assets {
			t, err := models.NormalizeTicker(a.Ticker)
			if err != nil {
				return nil, fmt.Errorf("catalog %s/%s: %w", g.Class, g.Category, err)
			}
			if _, dup := c.index[t]; dup {
				continue
			}
			c.index[t] = len(c.assets)
			c.assets = append(c.assets, Asset{
				Ticker:   t,
				Name:     a.Name,
				Class:    g.Class,
				Category: g.Category,
				Type:     typ,
			})
		}
	}
	return c, nil
}

// Len returns the number of assets.
func (c *Catalog) Len() int { return len(c.assets) }

// Lookup returns the entry for t.
func (c *Catalog) Lookup(t models.Ticker) (Asset, bool) {
	i, ok := c.index[t]
	if !ok {
		return Asset{}, false
	}
	return c.assets[i], true
}

// TypeOf returns the asset type of a known ticker. Entries without a type,
// such as indices, report false.
func (c *Catalog) TypeOf(t models.Ticker) (models.AssetType, bool) {
	a, ok := c.Lookup(t)
	if !ok || a.Type == models.AssetUnknown {
		return "", false
	}
	return a.Type, true
}

// Search matches query against tickers and names, case-insensitively.
// Exact ticker hits rank first, then ticker prefixes, then everything else
// in catalog order. A blank query returns nothing.
func (c *Catalog) Search(query string, limit int) []Asset {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	type hit struct {
		rank, pos int
	}
	var hits []hit
	for i, a := range c.assets {
		ticker := a.Ticker.String()
		switch {
		case ticker == q:
			hits = append(hits, hit{0, i})
		case strings.HasPrefix(ticker, q):
			hits = append(hits, hit{1, i})
		case strings.Contains(ticker, q) || strings.Contains(strings.ToUpper(a.Name), q):
			hits = append(hits, hit{2, i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Asset, len(hits))
	for i, h := range hits {
		out[i] = c.assets[h.pos]
	}
	return out
}
