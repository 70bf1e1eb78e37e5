// Package report assembles the terminal CaseSummary from pipeline output.
// The builder aggregates per-record scores into ranked alerts and the
// investigator-facing executive digest. All orderings are total, so the same
// input always yields a byte-identical summary.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// Conversations with more than this many scored narcotics records are
// flagged as distribution network nodes.
const networkNodeThreshold = 3

// timelineLimit caps the summary timeline at the most recent events.
const timelineLimit = 100

// topContactLimit caps the contact frequency ranking.
const topContactLimit = 10

// Builder produces case summaries.
type Builder struct {
	thresholds domain.RiskThresholds
}

// NewBuilder creates a builder using the given tier thresholds.
func NewBuilder(thresholds domain.RiskThresholds) *Builder {
	return &Builder{thresholds: thresholds}
}

// Input carries everything a finished run produced.
type Input struct {
	CaseID   string
	CaseName string
	Examiner string

	// TotalRecords is the submitted count; Processed excludes records cut
	// off by the deadline, Skipped counts records rejected with a
	// RecordError.
	TotalRecords int
	Processed    int
	Skipped      int

	// Scores are the qualifying per-record module scores.
	Scores []domain.RecordScore

	// Kinds maps scored record IDs to their communication kind.
	Kinds map[string]domain.RecordKind

	// Contacts is the per-conversation activity tally over all records.
	Contacts map[string]*domain.ContactActivity

	Snapshots []domain.EscalationSnapshot
	Events    []domain.EscalationEvent
	Links     []domain.CorrelationLink

	Identifiers map[string][]string

	Truncated   bool
	ShedEntries int

	Workers  int
	Chunks   int
	Duration time.Duration
}

// Build assembles the case summary.
func (b *Builder) Build(in *Input) *domain.CaseSummary {
	states := make(map[alertKey]domain.EscalationState, len(in.Snapshots))
	for _, s := range in.Snapshots {
		states[alertKey{s.ConversationKey, s.Module}] = s.State
	}

	alerts := b.buildAlerts(in.Scores, states)
	stats := buildModuleStats(in.Scores)
	hourly, lateNight := buildHourly(in.Scores)

	summary := &domain.CaseSummary{
		CaseID:   in.CaseID,
		CaseName: in.CaseName,
		Examiner: in.Examiner,

		Alerts:      alerts,
		ModuleStats: stats,

		Escalations:      activeSnapshots(in.Snapshots),
		EscalationEvents: sortedEvents(in.Events),

		Links: in.Links,

		NetworkFindings: buildNetworkFindings(in.Scores),
		TopContacts:     topContacts(in.Contacts),

		HourlyActivity:  hourly,
		LateNightActive: lateNight,

		Timeline: buildTimeline(in.Scores, in.Kinds),

		Identifiers: in.Identifiers,

		Warnings:  in.Skipped,
		Truncated: in.Truncated,

		Processing: domain.ProcessingStats{
			Workers:           in.Workers,
			Chunks:            in.Chunks,
			RecordsProcessed:  in.Processed,
			RecordsSkipped:    in.Skipped,
			ShedWindowEntries: in.ShedEntries,
			DurationMs:        in.Duration.Milliseconds(),
		},
	}

	if in.ShedEntries > 0 {
		summary.Degraded = true
		summary.DegradationNotes = append(summary.DegradationNotes,
			fmt.Sprintf("shed %d oldest escalation window entries under memory pressure", in.ShedEntries))
	}

	summary.Executive = b.buildExecutive(in, summary)
	return summary
}

type alertKey struct {
	conversation string
	module       domain.ModuleName
}

// buildAlerts deduplicates scores into one alert per (conversation, module),
// keeping the highest severity and referencing every contributing record.
// Ranking is tier, then score, then recency, with lexicographic tie-breaks.
func (b *Builder) buildAlerts(scores []domain.RecordScore, states map[alertKey]domain.EscalationState) []domain.Alert {
	groups := make(map[alertKey]*domain.Alert)
	for _, s := range scores {
		if s.Tier == domain.TierNone && !s.ImmediateAlert {
			continue
		}
		key := alertKey{s.ConversationKey, s.Module}
		a, ok := groups[key]
		if !ok {
			a = &domain.Alert{
				Module:          s.Module,
				ConversationKey: s.ConversationKey,
				Escalation:      states[key],
			}
			groups[key] = a
		}
		if s.Score > a.Score {
			a.Score = s.Score
		}
		a.Tier = domain.MaxTier(a.Tier, s.Tier)
		if s.ImmediateAlert {
			a.ImmediateAlert = true
		}
		a.RecordIDs = append(a.RecordIDs, s.RecordID)
		if s.Timestamp.After(a.LastTimestamp) {
			a.LastTimestamp = s.Timestamp
		}
	}

	alerts := make([]domain.Alert, 0, len(groups))
	for _, a := range groups {
		sort.Strings(a.RecordIDs)
		a.RecordIDs = dedupeSorted(a.RecordIDs)
		alerts = append(alerts, *a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if ar, br := domain.TierRank(a.Tier), domain.TierRank(b.Tier); ar != br {
			return ar > br
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastTimestamp.Equal(b.LastTimestamp) {
			return a.LastTimestamp.After(b.LastTimestamp)
		}
		if a.ConversationKey != b.ConversationKey {
			return a.ConversationKey < b.ConversationKey
		}
		return a.Module < b.Module
	})
	return alerts
}

func dedupeSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}

func buildModuleStats(scores []domain.RecordScore) map[domain.ModuleName]domain.ModuleStats {
	stats := make(map[domain.ModuleName]domain.ModuleStats)
	for _, s := range scores {
		st := stats[s.Module]
		st.Records++
		st.TotalScore += s.Score
		if s.Score > st.MaxScore {
			st.MaxScore = s.Score
		}
		if st.TierCounts == nil {
			st.TierCounts = make(map[domain.RiskTier]int)
		}
		st.TierCounts[s.Tier]++
		stats[s.Module] = st
	}
	return stats
}

// buildNetworkFindings flags conversations with high-frequency narcotics
// traffic as distribution network nodes. Risk grows with activity volume,
// capped at the score ceiling.
func buildNetworkFindings(scores []domain.RecordScore) []domain.NetworkFinding {
	type agg struct {
		count       int
		max         int
		first, last time.Time
	}
	byConv := make(map[string]*agg)
	for _, s := range scores {
		if s.Module != domain.ModuleNarcotics || s.Score <= 0 {
			continue
		}
		a, ok := byConv[s.ConversationKey]
		if !ok {
			a = &agg{first: s.Timestamp, last: s.Timestamp}
			byConv[s.ConversationKey] = a
		}
		a.count++
		if s.Score > a.max {
			a.max = s.Score
		}
		if s.Timestamp.Before(a.first) {
			a.first = s.Timestamp
		}
		if s.Timestamp.After(a.last) {
			a.last = s.Timestamp
		}
	}

	var out []domain.NetworkFinding
	for conv, a := range byConv {
		if a.count <= networkNodeThreshold {
			continue
		}
		score := a.count + 3
		if score > 10 {
			score = 10
		}
		out = append(out, domain.NetworkFinding{
			ConversationKey: conv,
			Module:          domain.ModuleNarcotics,
			RecordCount:     a.count,
			Score:           score,
			FirstSeen:       a.first,
			LastSeen:        a.last,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ConversationKey < out[j].ConversationKey
	})
	return out
}

func topContacts(contacts map[string]*domain.ContactActivity) []domain.ContactActivity {
	out := make([]domain.ContactActivity, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ConversationKey < out[j].ConversationKey
	})
	if len(out) > topContactLimit {
		out = out[:topContactLimit]
	}
	return out
}

// buildHourly counts scored records per hour of day. The late-night flag
// fires when a meaningful share of scored traffic lands between midnight
// and 05:00, the same window the narcotics metadata rule watches.
func buildHourly(scores []domain.RecordScore) ([24]int, bool) {
	var hourly [24]int
	seen := make(map[string]struct{})
	total := 0
	for _, s := range scores {
		if _, ok := seen[s.RecordID]; ok {
			continue
		}
		seen[s.RecordID] = struct{}{}
		hourly[s.Timestamp.UTC().Hour()]++
		total++
	}

	late := hourly[0] + hourly[1] + hourly[2] + hourly[3] + hourly[4]
	lateNight := late >= 3 && late*100 >= 15*total
	return hourly, lateNight
}

func buildTimeline(scores []domain.RecordScore, kinds map[string]domain.RecordKind) []domain.TimelineEvent {
	events := make([]domain.TimelineEvent, 0, len(scores))
	for _, s := range scores {
		if s.Tier == domain.TierNone && !s.ImmediateAlert {
			continue
		}
		events = append(events, domain.TimelineEvent{
			Timestamp:       s.Timestamp,
			Kind:            kinds[s.RecordID],
			ConversationKey: s.ConversationKey,
			RecordID:        s.RecordID,
			Module:          s.Module,
			Tier:            s.Tier,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Module < b.Module
	})
	if len(events) > timelineLimit {
		events = events[len(events)-timelineLimit:]
	}
	return events
}

func activeSnapshots(snaps []domain.EscalationSnapshot) []domain.EscalationSnapshot {
	var out []domain.EscalationSnapshot
	for _, s := range snaps {
		if s.State != domain.StateQuiet {
			out = append(out, s)
		}
	}
	return out
}

func sortedEvents(events []domain.EscalationEvent) []domain.EscalationEvent {
	out := make([]domain.EscalationEvent, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ConversationKey != b.ConversationKey {
			return a.ConversationKey < b.ConversationKey
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return domain.StateRank(a.To) < domain.StateRank(b.To)
	})
	return out
}

// buildExecutive derives the leadership digest from the assembled summary.
func (b *Builder) buildExecutive(in *Input, s *domain.CaseSummary) domain.ExecutiveSummary {
	critical, high := 0, 0
	immediate := false
	modulesSeen := make(map[domain.ModuleName]bool)
	for _, a := range s.Alerts {
		switch a.Tier {
		case domain.TierCritical:
			critical++
		case domain.TierHigh:
			high++
		}
		if a.ImmediateAlert {
			immediate = true
		}
		modulesSeen[a.Module] = true
	}

	keywords := 0
	for _, sc := range in.Scores {
		for _, h := range sc.Hits {
			if h.Kind == domain.HitKeyword {
				keywords++
			}
		}
	}

	ex := domain.ExecutiveSummary{
		TotalCommunications: in.TotalRecords,
		UniqueContacts:      len(in.Contacts),
		KeywordsDetected:    keywords,
	}

	total := len(s.Alerts)
	switch {
	case critical > 0:
		ex.ThreatLevel = domain.ThreatCritical
		ex.Priority = domain.PriorityCaseHigh
		ex.PriorityReason = fmt.Sprintf("%d critical threats requiring immediate action", critical)
	case high > 5:
		ex.ThreatLevel = domain.ThreatHigh
		ex.Priority = domain.PriorityCaseMedium
		ex.PriorityReason = fmt.Sprintf("%d high-risk indicators identified", high)
	case total > 10:
		ex.ThreatLevel = domain.ThreatElevated
		ex.Priority = domain.PriorityCaseStandard
		ex.PriorityReason = fmt.Sprintf("%d intelligence indicators detected", total)
	default:
		ex.ThreatLevel = domain.ThreatLow
		ex.Priority = domain.PriorityCaseLow
		ex.PriorityReason = "Limited threat indicators identified"
	}
	if immediate && ex.Priority != domain.PriorityCaseHigh {
		ex.Priority = domain.PriorityCaseHigh
		ex.PriorityReason = "Immediate-alert content detected"
	}

	if critical > 0 || immediate {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Coordinate with specialized units for critical threat response")
	}
	if modulesSeen[domain.ModuleChildExploitation] {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Coordinate with Internet Crimes Against Children (ICAC) task force")
	}
	if modulesSeen[domain.ModuleHumanTrafficking] {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Coordinate with Human Trafficking Task Force")
	}
	if modulesSeen[domain.ModuleExtremism] {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Coordinate with Joint Terrorism Task Force (JTTF)")
	}
	if modulesSeen[domain.ModuleFinancialFraud] {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Coordinate with financial institutions on flagged transfers")
	}
	if len(s.NetworkFindings) > 0 {
		ex.ImmediateActions = append(ex.ImmediateActions,
			"Consider surveillance authorization for distribution network nodes")
	}

	return ex
}
