package domain

import "time"

// HitKind is the source class of a hit.
type HitKind string

const (
	HitKeyword  HitKind = "keyword"
	HitPattern  HitKind = "pattern"
	HitMetadata HitKind = "metadata"
)

// Hit is a single keyword, pattern, or metadata match within a record for
// one module. Ephemeral; produced and consumed within a record's evaluation.
type Hit struct {
	Module ModuleName `json:"module"`
	Kind   HitKind    `json:"kind"`

	// Source is the sub-category name for keyword hits, otherwise the
	// pattern or metadata rule name.
	Source string `json:"source"`

	// Span is the matched text. Empty for metadata hits.
	Span string `json:"span,omitempty"`

	Weight int `json:"weight"`

	// Immediate marks a hit on the module's immediate-alert set.
	Immediate bool `json:"immediate,omitempty"`
}

// RecordScore is the computed risk for one (record, module) pair.
type RecordScore struct {
	RecordID        string     `json:"recordId"`
	ConversationKey string     `json:"conversationKey"`
	Module          ModuleName `json:"module"`

	// Score is the raw weighted score, capped at the module ceiling.
	Score int `json:"score"`

	// Tier is derived from the global risk thresholds exactly once.
	Tier RiskTier `json:"tier"`

	// ImmediateAlert is the hard override from the immediate-alert set.
	ImmediateAlert bool `json:"immediateAlert"`

	Timestamp time.Time `json:"timestamp"`

	Hits []Hit `json:"hits,omitempty"`
}

// RiskTier is the derived risk classification.
type RiskTier string

const (
	TierNone     RiskTier = "none"
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// TierRank orders tiers for comparison; higher is more severe.
func TierRank(t RiskTier) int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// MaxTier returns the more severe of two tiers.
func MaxTier(a, b RiskTier) RiskTier {
	if TierRank(a) >= TierRank(b) {
		return a
	}
	return b
}

// RiskThresholds maps scores to tiers. Applied once at scoring time and
// never recomputed downstream with different values.
type RiskThresholds struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// DefaultRiskThresholds returns the global score-to-tier table.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Critical: 8, High: 6, Medium: 4, Low: 1}
}

// TierFor derives the tier for a raw score.
func (t RiskThresholds) TierFor(score int) RiskTier {
	switch {
	case score >= t.Critical:
		return TierCritical
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	case score >= t.Low:
		return TierLow
	default:
		return TierNone
	}
}

// MinScoreFor returns the lowest score that maps to the given tier. Used to
// translate a notify tier into a score floor for immediate alerts.
func (t RiskThresholds) MinScoreFor(tier RiskTier) int {
	switch tier {
	case TierCritical:
		return t.Critical
	case TierHigh:
		return t.High
	case TierMedium:
		return t.Medium
	case TierLow:
		return t.Low
	default:
		return 0
	}
}
