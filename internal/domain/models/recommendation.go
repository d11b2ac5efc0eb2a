package models

// Severity ranks advisory output.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// Tag names the rule that fired.
type Tag string

const (
	TagOverbought            Tag = "overbought"
	TagOversold              Tag = "oversold"
	TagConcentrationRisk     Tag = "concentration_risk"
	TagAssetConcentration    Tag = "asset_concentration"
	TagHighMarketSensitivity Tag = "high_market_sensitivity"
	TagLowMarketSensitivity  Tag = "low_market_sensitivity"
	TagHighVolatility        Tag = "high_volatility"
	TagLargeLoss             Tag = "large_loss"
	TagLargeGain             Tag = "large_gain"
	TagStrongRiskAdjusted    Tag = "strong_risk_adjusted_return"
	TagNegativeRiskAdjusted  Tag = "negative_risk_adjusted_return"
	TagUnderDiversified      Tag = "under_diversified"
	TagOverDiversified       Tag = "over_diversified"
	TagHighCorrelation       Tag = "high_correlation"
	TagMissingData           Tag = "missing_data"
	TagStaleData             Tag = "stale_data"
)

// Recommendation is one fired rule with the metric that triggered it.
type Recommendation struct {
	Tag       Tag      `json:"tag"`
	Severity  Severity `json:"severity"`
	Ticker    Ticker   `json:"ticker,omitempty"`
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Message   string   `json:"message"`
}

// RebalanceSuggestion moves one asset type toward its target allocation.
type RebalanceSuggestion struct {
	AssetType  AssetType `json:"asset_type"`
	CurrentPct float64   `json:"current_pct"`
	TargetPct  float64   `json:"target_pct"`
	DeltaValue float64   `json:"delta_value"`
	Action     string    `json:"action"`
	Message    string    `json:"message"`
}
