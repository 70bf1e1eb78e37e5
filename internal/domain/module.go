package domain

// ModuleName identifies one investigative concern category.
type ModuleName string

// The fixed module set. Rule books may disable modules but not invent new ones.
const (
	ModuleNarcotics         ModuleName = "narcotics"
	ModuleFinancialFraud    ModuleName = "financial_fraud"
	ModuleDomesticViolence  ModuleName = "domestic_violence"
	ModuleHumanTrafficking  ModuleName = "human_trafficking"
	ModuleExtremism         ModuleName = "extremism"
	ModuleChildExploitation ModuleName = "child_exploitation"
)

// AllModules lists every known module in canonical order.
func AllModules() []ModuleName {
	return []ModuleName{
		ModuleNarcotics,
		ModuleFinancialFraud,
		ModuleDomesticViolence,
		ModuleHumanTrafficking,
		ModuleExtremism,
		ModuleChildExploitation,
	}
}

// KnownModule reports whether name is one of the fixed module set.
func KnownModule(name ModuleName) bool {
	for _, m := range AllModules() {
		if m == name {
			return true
		}
	}
	return false
}

// Priority is the investigative priority tier of a module.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ModuleConfig is the rule book for one module. Loaded once, immutable after
// catalog compilation.
type ModuleConfig struct {
	Name     ModuleName `json:"name"`
	Enabled  bool       `json:"enabled"`
	Priority Priority   `json:"priority"`

	// Keywords maps sub-category name to its ordered keyword list.
	Keywords map[string][]string `json:"keywords"`

	// Weights maps sub-category name to its integer risk weight.
	Weights map[string]int `json:"weights"`

	// Patterns are regex sources compiled at catalog build.
	Patterns []PatternConfig `json:"patterns,omitempty"`

	// MetadataRules are expressions over record metadata (direction, deleted,
	// has_media, platform, hour). They fire even for empty-text records.
	MetadataRules []MetadataRule `json:"metadataRules,omitempty"`

	// ImmediateAlert keywords force the notify tier regardless of score.
	ImmediateAlert []string `json:"immediateAlert,omitempty"`

	// NotifyTier is the minimum tier applied on an immediate-alert hit.
	NotifyTier RiskTier `json:"notifyTier,omitempty"`

	// ScoreCeiling caps the raw module score when > 0.
	ScoreCeiling int `json:"scoreCeiling,omitempty"`

	// AmountThresholds map detected dollar amounts to severity buckets
	// (financial_fraud). Ascending thresholds, one bucket score each.
	AmountThresholds []AmountBucket `json:"amountThresholds,omitempty"`

	// AgeThreshold flags age mentions strictly below it (child_exploitation).
	AgeThreshold int `json:"ageThreshold,omitempty"`

	Escalation EscalationPolicy `json:"escalation"`
}

// PatternConfig is one regex pattern with its weight.
type PatternConfig struct {
	Name   string `json:"name"`
	Expr   string `json:"expr"`
	Weight int    `json:"weight"`
}

// MetadataRule is a CEL expression over record metadata with its weight.
type MetadataRule struct {
	Name   string `json:"name"`
	Expr   string `json:"expr"`
	Weight int    `json:"weight"`
}

// AmountBucket maps amounts at or above Threshold to a severity score.
// The bucket score is a floor on the module score, not a weight addition.
type AmountBucket struct {
	Threshold int `json:"threshold"`
	Score     int `json:"score"`
}

// EscalationPolicy holds the per-module sliding-window parameters.
type EscalationPolicy struct {
	// WindowHours is the sliding window length.
	WindowHours int `json:"windowHours"`

	// FrequencyThreshold moves quiet -> watch when the windowed occurrence
	// count reaches it.
	FrequencyThreshold int `json:"frequencyThreshold"`

	// SeverityIncrease is the minimum per-step severity delta that moves
	// watch -> escalating across consecutive occurrences.
	SeverityIncrease int `json:"severityIncrease"`

	// EscalationThreshold moves to critical when the windowed cumulative
	// score reaches it.
	EscalationThreshold int `json:"escalationThreshold"`
}
