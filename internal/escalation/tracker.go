// Package escalation tracks per-conversation risk trajectories over
// sliding time windows.
package escalation

import (
	"sort"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// entry is one windowed observation for a conversation/module pair.
type entry struct {
	recordID  string
	timestamp time.Time
	score     int
	immediate bool
}

// conversationState is the sliding window and current state for one
// (conversation, module) pair. Owned by a single tracker; trackers are
// never shared across workers.
type conversationState struct {
	key    stateKey
	window []entry
	state  domain.EscalationState
}

type stateKey struct {
	conversation string
	module       domain.ModuleName
}

// Tracker advances the {quiet, watch, escalating, critical} state machine
// for every conversation/module pair it observes. Records must arrive in
// timestamp order within a conversation; the pipeline partitions records by
// conversation to guarantee it.
type Tracker struct {
	policies map[domain.ModuleName]domain.EscalationPolicy
	states   map[stateKey]*conversationState

	// maxEntries bounds retained window entries across all states. Zero
	// means unbounded. Over budget the tracker sheds oldest entries
	// rather than failing.
	maxEntries int
	entries    int
	shed       int

	events []domain.EscalationEvent
}

// New creates a tracker for the given per-module policies.
func New(policies map[domain.ModuleName]domain.EscalationPolicy, maxEntries int) *Tracker {
	return &Tracker{
		policies:   policies,
		states:     make(map[stateKey]*conversationState),
		maxEntries: maxEntries,
	}
}

// Observe feeds one record score into its conversation/module state machine
// and returns the state after the transition. State is created lazily on
// first observation.
func (t *Tracker) Observe(score domain.RecordScore) domain.EscalationState {
	policy, ok := t.policies[score.Module]
	if !ok {
		return domain.StateQuiet
	}

	key := stateKey{conversation: score.ConversationKey, module: score.Module}
	cs, ok := t.states[key]
	if !ok {
		cs = &conversationState{key: key, state: domain.StateQuiet}
		t.states[key] = cs
	}

	t.evictExpired(cs, policy, score.Timestamp)

	startState := cs.state
	cs.window = append(cs.window, entry{
		recordID:  score.RecordID,
		timestamp: score.Timestamp,
		score:     score.Score,
		immediate: score.ImmediateAlert,
	})
	t.entries++

	if cs.state != domain.StateCritical {
		t.transition(cs, policy, startState, score)
	}

	if t.maxEntries > 0 && t.entries > t.maxEntries {
		t.shedOldest()
	}

	return cs.state
}

// evictExpired drops entries older than the policy window. When the window
// fully empties the state resets to quiet; that is the only downward
// transition.
func (t *Tracker) evictExpired(cs *conversationState, policy domain.EscalationPolicy, now time.Time) {
	cutoff := now.Add(-time.Duration(policy.WindowHours) * time.Hour)
	kept := 0
	for _, e := range cs.window {
		if e.timestamp.After(cutoff) {
			cs.window[kept] = e
			kept++
		}
	}
	t.entries -= len(cs.window) - kept
	cs.window = cs.window[:kept]

	if kept == 0 && cs.state != domain.StateQuiet {
		cs.state = domain.StateQuiet
	}
}

// transition applies the upward state rules for one new observation.
// An immediate alert is a hard short-circuit from any state. Escalating
// requires severity rising between consecutive windowed occurrences by at
// least the policy delta; flat repetition holds at watch. The cumulative
// threshold only fires when the window had already established watch or
// escalating before this observation, so critical is never reached without
// at least one prior qualifying event.
func (t *Tracker) transition(cs *conversationState, policy domain.EscalationPolicy, startState domain.EscalationState, score domain.RecordScore) {
	if score.ImmediateAlert {
		t.setState(cs, domain.StateCritical, score)
		return
	}

	if cs.state == domain.StateQuiet && len(cs.window) >= policy.FrequencyThreshold {
		t.setState(cs, domain.StateWatch, score)
	}

	if cs.state == domain.StateWatch && policy.SeverityIncrease > 0 && len(cs.window) >= 2 {
		prev := cs.window[len(cs.window)-2]
		if score.Score-prev.score >= policy.SeverityIncrease {
			t.setState(cs, domain.StateEscalating, score)
		}
	}

	if startState == domain.StateWatch || startState == domain.StateEscalating {
		if t.windowScore(cs) >= policy.EscalationThreshold {
			t.setState(cs, domain.StateCritical, score)
		}
	}
}

func (t *Tracker) setState(cs *conversationState, next domain.EscalationState, score domain.RecordScore) {
	if domain.StateRank(next) <= domain.StateRank(cs.state) {
		return
	}
	t.events = append(t.events, domain.EscalationEvent{
		ConversationKey: cs.key.conversation,
		Module:          cs.key.module,
		From:            cs.state,
		To:              next,
		RecordID:        score.RecordID,
		Timestamp:       score.Timestamp,
	})
	cs.state = next
}

func (t *Tracker) windowScore(cs *conversationState) int {
	total := 0
	for _, e := range cs.window {
		total += e.score
	}
	return total
}

// shedOldest drops the globally least-recent window entry. Called when the
// entry budget is exceeded; the run records the degradation instead of
// failing.
func (t *Tracker) shedOldest() {
	for t.entries > t.maxEntries {
		var victim *conversationState
		for _, cs := range t.states {
			if len(cs.window) == 0 {
				continue
			}
			if victim == nil || older(cs, victim) {
				victim = cs
			}
		}
		if victim == nil {
			return
		}
		victim.window = victim.window[1:]
		t.entries--
		t.shed++
	}
}

// older orders states by head-entry timestamp with a stable key tie-break.
func older(a, b *conversationState) bool {
	at, bt := a.window[0].timestamp, b.window[0].timestamp
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	if a.key.conversation != b.key.conversation {
		return a.key.conversation < b.key.conversation
	}
	return a.key.module < b.key.module
}

// ShedEntries returns how many window entries were dropped under memory
// pressure.
func (t *Tracker) ShedEntries() int {
	return t.shed
}

// Events returns every upward transition observed, in observation order.
func (t *Tracker) Events() []domain.EscalationEvent {
	return t.events
}

// Snapshots returns the final state of every tracked conversation/module
// pair, sorted by conversation then module for deterministic output.
func (t *Tracker) Snapshots() []domain.EscalationSnapshot {
	out := make([]domain.EscalationSnapshot, 0, len(t.states))
	for _, cs := range t.states {
		snap := domain.EscalationSnapshot{
			ConversationKey: cs.key.conversation,
			Module:          cs.key.module,
			State:           cs.state,
			WindowCount:     len(cs.window),
			WindowScore:     t.windowScore(cs),
		}
		if n := len(cs.window); n > 0 {
			snap.LastSeverity = cs.window[n-1].score
			snap.LastTimestamp = cs.window[n-1].timestamp
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConversationKey != out[j].ConversationKey {
			return out[i].ConversationKey < out[j].ConversationKey
		}
		return out[i].Module < out[j].Module
	})
	return out
}

// Merge folds another tracker's results into this one. Used to combine
// per-worker trackers after the scoring barrier; the receiving tracker must
// not be observed afterwards.
func (t *Tracker) Merge(other *Tracker) {
	for k, cs := range other.states {
		t.states[k] = cs
	}
	t.entries += other.entries
	t.shed += other.shed
	t.events = append(t.events, other.events...)
}
