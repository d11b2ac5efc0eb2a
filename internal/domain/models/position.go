package models

import (
	"strings"
	"time"
)

// AssetType groups positions for allocation analysis.
type AssetType string

const (
	AssetStock     AssetType = "stock"
	AssetETF       AssetType = "etf"
	AssetBond      AssetType = "bond"
	AssetCrypto    AssetType = "crypto"
	AssetREIT      AssetType = "reit"
	AssetCommodity AssetType = "commodity"
	AssetCash      AssetType = "cash"
	AssetUnknown   AssetType = "unknown"
)

// AssetTypes lists every known asset type in display order.
var AssetTypes = []AssetType{AssetStock, AssetETF, AssetBond, AssetCrypto, AssetREIT, AssetCommodity, AssetCash, AssetUnknown}

// NormalizeAssetType maps free text to a known asset type.
func NormalizeAssetType(s string) AssetType {
	a := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AssetTypes {
		if a == known {
			return a
		}
	}
	return AssetUnknown
}

// Position is a read-only holding supplied by the caller. CostBasis is per unit.
type Position struct {
	Ticker       Ticker    `json:"ticker"`
	Quantity     float64   `json:"quantity"`
	CostBasis    float64   `json:"cost_basis"`
	AssetType    AssetType `json:"asset_type"`
	PurchaseDate time.Time `json:"purchase_date,omitempty"`
}

// Tickers returns the distinct tickers of positions in input order.
func Tickers(positions []Position) []Ticker {
	seen := make(map[Ticker]struct{}, len(positions))
	out := make([]Ticker, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.Ticker]; ok {
			continue
		}
		seen[p.Ticker] = struct{}{}
		out = append(out, p.Ticker)
	}
	return out
}
