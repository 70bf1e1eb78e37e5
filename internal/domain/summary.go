package domain

import "time"

// EscalationState is the per-(conversation, module) tracker state.
type EscalationState string

const (
	StateQuiet      EscalationState = "quiet"
	StateWatch      EscalationState = "watch"
	StateEscalating EscalationState = "escalating"
	StateCritical   EscalationState = "critical"
)

// StateRank orders escalation states; higher is more severe.
func StateRank(s EscalationState) int {
	switch s {
	case StateCritical:
		return 3
	case StateEscalating:
		return 2
	case StateWatch:
		return 1
	default:
		return 0
	}
}

// EscalationSnapshot is the final tracker state for one conversation/module.
type EscalationSnapshot struct {
	ConversationKey string          `json:"conversationKey"`
	Module          ModuleName      `json:"module"`
	State           EscalationState `json:"state"`
	WindowCount     int             `json:"windowCount"`
	WindowScore     int             `json:"windowScore"`
	LastSeverity    int             `json:"lastSeverity"`
	LastTimestamp   time.Time       `json:"lastTimestamp"`
}

// EscalationEvent records one upward state transition during a run.
type EscalationEvent struct {
	ConversationKey string          `json:"conversationKey"`
	Module          ModuleName      `json:"module"`
	From            EscalationState `json:"from"`
	To              EscalationState `json:"to"`
	RecordID        string          `json:"recordId"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Alert is one ranked entry in the case summary. Alerts are deduplicated per
// (conversation, module), keeping the highest severity occurrence with
// back-references to every contributing record.
type Alert struct {
	Module          ModuleName      `json:"module"`
	ConversationKey string          `json:"conversationKey"`
	Tier            RiskTier        `json:"tier"`
	Score           int             `json:"score"`
	ImmediateAlert  bool            `json:"immediateAlert"`
	Escalation      EscalationState `json:"escalation,omitempty"`

	// RecordIDs are all contributing records, sorted; the downstream
	// exporter uses them to include raw messages without re-scanning.
	RecordIDs []string `json:"recordIds"`

	LastTimestamp time.Time `json:"lastTimestamp"`
}

// NetworkFinding flags a conversation whose scored-record count suggests a
// distribution network (narcotics).
type NetworkFinding struct {
	ConversationKey string     `json:"conversationKey"`
	Module          ModuleName `json:"module"`
	RecordCount     int        `json:"recordCount"`
	Score           int        `json:"score"`
	FirstSeen       time.Time  `json:"firstSeen"`
	LastSeen        time.Time  `json:"lastSeen"`
}

// ModuleStats is the per-module score distribution.
type ModuleStats struct {
	Records    int              `json:"records"`
	MaxScore   int              `json:"maxScore"`
	TotalScore int              `json:"totalScore"`
	TierCounts map[RiskTier]int `json:"tierCounts"`
}

// ContactActivity is one entry of the merged message+call frequency ranking.
type ContactActivity struct {
	ConversationKey string `json:"conversationKey"`
	Messages        int    `json:"messages"`
	Calls           int    `json:"calls"`
	Total           int    `json:"total"`
}

// TimelineEvent is one scored communication event on the case timeline.
type TimelineEvent struct {
	Timestamp       time.Time  `json:"timestamp"`
	Kind            RecordKind `json:"kind"`
	ConversationKey string     `json:"conversationKey"`
	RecordID        string     `json:"recordId"`
	Module          ModuleName `json:"module"`
	Tier            RiskTier   `json:"tier"`
}

// ThreatLevel is the case-wide assessment.
type ThreatLevel string

const (
	ThreatCritical ThreatLevel = "CRITICAL"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatElevated ThreatLevel = "ELEVATED"
	ThreatLow      ThreatLevel = "LOW"
)

// CasePriority is the triage priority of the case.
type CasePriority string

const (
	PriorityCaseHigh     CasePriority = "HIGH PRIORITY"
	PriorityCaseMedium   CasePriority = "MEDIUM PRIORITY"
	PriorityCaseStandard CasePriority = "STANDARD PRIORITY"
	PriorityCaseLow      CasePriority = "LOW PRIORITY"
)

// ExecutiveSummary is the investigator-facing digest of a run.
type ExecutiveSummary struct {
	Priority       CasePriority `json:"priority"`
	PriorityReason string       `json:"priorityReason"`
	ThreatLevel    ThreatLevel  `json:"threatLevel"`

	TotalCommunications int `json:"totalCommunications"`
	UniqueContacts      int `json:"uniqueContacts"`
	KeywordsDetected    int `json:"keywordsDetected"`

	ImmediateActions []string `json:"immediateActions"`
}

// ProcessingStats describes how the run executed.
type ProcessingStats struct {
	Workers           int   `json:"workers"`
	Chunks            int   `json:"chunks"`
	RecordsProcessed  int   `json:"recordsProcessed"`
	RecordsSkipped    int   `json:"recordsSkipped"`
	ShedWindowEntries int   `json:"shedWindowEntries"`
	DurationMs        int64 `json:"durationMs"`
}

// CaseSummary is the terminal artifact of one analysis run. Immutable once
// produced; sufficient for CSV/JSON/HTML/XLSX rendering without re-running
// analysis. The ranked alert list is deterministic for identical input.
type CaseSummary struct {
	CaseID   string `json:"caseId"`
	CaseName string `json:"caseName,omitempty"`
	Examiner string `json:"examiner,omitempty"`

	Executive ExecutiveSummary `json:"executive"`

	// Alerts ranked by tier desc, score desc, most recent first.
	Alerts []Alert `json:"alerts"`

	ModuleStats map[ModuleName]ModuleStats `json:"moduleStats"`

	Escalations      []EscalationSnapshot `json:"escalations,omitempty"`
	EscalationEvents []EscalationEvent    `json:"escalationEvents,omitempty"`

	Links []CorrelationLink `json:"links,omitempty"`

	NetworkFindings []NetworkFinding `json:"networkFindings,omitempty"`

	TopContacts []ContactActivity `json:"topContacts,omitempty"`

	// HourlyActivity counts scored records per hour of day (UTC).
	HourlyActivity  [24]int `json:"hourlyActivity"`
	LateNightActive bool    `json:"lateNightActive"`

	// Timeline holds the most recent scored events, timestamp-ordered.
	Timeline []TimelineEvent `json:"timeline,omitempty"`

	// Identifiers extracted across the case (crypto addresses, phones,
	// emails), keyed by identifier class, values sorted.
	Identifiers map[string][]string `json:"identifiers,omitempty"`

	// Warnings counts records skipped with a RecordError.
	Warnings int `json:"warnings"`

	// Truncated marks a run cut short by the cooperative timeout.
	Truncated bool `json:"truncated"`

	// Degraded marks window shedding under the memory ceiling.
	Degraded         bool     `json:"degraded"`
	DegradationNotes []string `json:"degradationNotes,omitempty"`

	Processing ProcessingStats `json:"processing"`
}

// HasCriticalAlert reports whether any alert reached the critical tier or
// tripped an immediate-alert phrase.
func (s *CaseSummary) HasCriticalAlert() bool {
	for _, a := range s.Alerts {
		if a.Tier == TierCritical || a.ImmediateAlert {
			return true
		}
	}
	return false
}

// Run wraps a stored CaseSummary with service-level identity. Run metadata
// sits outside the engine's determinism guarantee.
type Run struct {
	ID        string       `json:"id"`
	CaseID    string       `json:"caseId"`
	Status    string       `json:"status"`
	Summary   *CaseSummary `json:"summary,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Run status values.
const (
	RunStatusComplete  = "complete"
	RunStatusTruncated = "truncated"
	RunStatusFailed    = "failed"
)

// StatusFor derives the stored run status from a summary.
func StatusFor(s *CaseSummary) string {
	if s == nil {
		return RunStatusFailed
	}
	if s.Truncated {
		return RunStatusTruncated
	}
	return RunStatusComplete
}
