package escalation

import (
	"testing"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

var trackerBase = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func testPolicies() map[domain.ModuleName]domain.EscalationPolicy {
	return map[domain.ModuleName]domain.EscalationPolicy{
		domain.ModuleDomesticViolence: {
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    1,
			EscalationThreshold: 10,
		},
		domain.ModuleNarcotics: {
			WindowHours:         24,
			FrequencyThreshold:  3,
			SeverityIncrease:    2,
			EscalationThreshold: 12,
		},
	}
}

func obs(conv string, module domain.ModuleName, id string, at time.Time, score int, immediate bool) domain.RecordScore {
	return domain.RecordScore{
		RecordID:        id,
		ConversationKey: conv,
		Module:          module,
		Score:           score,
		Tier:            domain.DefaultRiskThresholds().TierFor(score),
		ImmediateAlert:  immediate,
		Timestamp:       at,
	}
}

func TestTrackerTransitions(t *testing.T) {
	t.Run("ThreatTrajectoryToCritical", func(t *testing.T) {
		// Rising threat severity in a day establishes watch then
		// escalating; an immediate-alert threat jumps straight to
		// critical.
		tr := New(testPolicies(), 0)
		conv := "+15551234567"

		st := tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r1", trackerBase, 3, false))
		if st != domain.StateQuiet {
			t.Errorf("after 1 hit: expected quiet, got %s", st)
		}
		st = tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r2", trackerBase.Add(time.Hour), 4, false))
		if st != domain.StateQuiet {
			t.Errorf("after 2 hits: expected quiet, got %s", st)
		}
		st = tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r3", trackerBase.Add(2*time.Hour), 5, false))
		if st != domain.StateEscalating {
			t.Errorf("after 3 rising hits: expected escalating, got %s", st)
		}
		st = tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r4", trackerBase.Add(3*time.Hour), 5, true))
		if st != domain.StateCritical {
			t.Errorf("after immediate-alert hit: expected critical, got %s", st)
		}

		events := tr.Events()
		if len(events) != 3 {
			t.Fatalf("expected 3 transition events, got %d", len(events))
		}
		want := []struct{ from, to domain.EscalationState }{
			{domain.StateQuiet, domain.StateWatch},
			{domain.StateWatch, domain.StateEscalating},
			{domain.StateEscalating, domain.StateCritical},
		}
		for i, w := range want {
			if events[i].From != w.from || events[i].To != w.to {
				t.Errorf("event %d: expected %s->%s, got %s->%s", i, w.from, w.to, events[i].From, events[i].To)
			}
		}
	})

	t.Run("ImmediateAlertShortCircuit", func(t *testing.T) {
		tr := New(testPolicies(), 0)

		st := tr.Observe(obs("conv-a", domain.ModuleDomesticViolence, "r1", trackerBase, 5, true))
		if st != domain.StateCritical {
			t.Fatalf("expected critical from single immediate alert, got %s", st)
		}
		events := tr.Events()
		if len(events) != 1 || events[0].From != domain.StateQuiet || events[0].To != domain.StateCritical {
			t.Errorf("expected single quiet->critical event, got %+v", events)
		}
	})

	t.Run("CumulativeThresholdNeedsPriorWatch", func(t *testing.T) {
		tr := New(testPolicies(), 0)
		conv := "conv-b"

		// Three flat-severity hits reach watch on frequency; the
		// cumulative threshold does not fire on the same observation
		// that established watch, even though the window already
		// totals the threshold.
		for i, id := range []string{"r1", "r2", "r3"} {
			tr.Observe(obs(conv, domain.ModuleNarcotics, id, trackerBase.Add(time.Duration(i)*time.Hour), 4, false))
		}
		snaps := tr.Snapshots()
		if len(snaps) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(snaps))
		}
		if snaps[0].State != domain.StateWatch {
			t.Errorf("expected watch after 3 flat hits totaling 12, got %s", snaps[0].State)
		}

		// The next hit crosses the cumulative threshold from an
		// established state.
		st := tr.Observe(obs(conv, domain.ModuleNarcotics, "r4", trackerBase.Add(3*time.Hour), 1, false))
		if st != domain.StateCritical {
			t.Errorf("expected critical once window total 13 >= 12, got %s", st)
		}
	})

	t.Run("LowSeverityStaysAtWatch", func(t *testing.T) {
		tr := New(testPolicies(), 0)
		conv := "conv-c"

		// Flat severities reach watch on frequency but never climb to
		// escalating without a rising step.
		for i, id := range []string{"r1", "r2", "r3", "r4"} {
			tr.Observe(obs(conv, domain.ModuleNarcotics, id, trackerBase.Add(time.Duration(i)*time.Hour), 1, false))
		}
		snaps := tr.Snapshots()
		if snaps[0].State != domain.StateWatch {
			t.Errorf("expected watch for sub-delta severities, got %s", snaps[0].State)
		}
	})

	t.Run("StateHoldsWhileWindowPopulated", func(t *testing.T) {
		tr := New(testPolicies(), 0)
		conv := "conv-d"

		for i, id := range []string{"r1", "r2", "r3"} {
			tr.Observe(obs(conv, domain.ModuleDomesticViolence, id, trackerBase.Add(time.Duration(i)*time.Hour), 5, false))
		}

		// Twenty-two hours later the originals are still inside the
		// window; the state must not drop back.
		st := tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r4", trackerBase.Add(22*time.Hour), 1, false))
		if domain.StateRank(st) < domain.StateRank(domain.StateWatch) {
			t.Errorf("state regressed to %s while window still populated", st)
		}
	})

	t.Run("EmptyWindowResetsToQuiet", func(t *testing.T) {
		tr := New(testPolicies(), 0)
		conv := "conv-e"

		for i, id := range []string{"r1", "r2", "r3"} {
			tr.Observe(obs(conv, domain.ModuleDomesticViolence, id, trackerBase.Add(time.Duration(i)*time.Hour), 5, false))
		}

		// Thirty hours of silence expires every entry; the next hit
		// starts over from quiet.
		st := tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r4", trackerBase.Add(32*time.Hour), 5, false))
		if st != domain.StateQuiet {
			t.Errorf("expected quiet after window emptied, got %s", st)
		}
		snaps := tr.Snapshots()
		if snaps[0].WindowCount != 1 {
			t.Errorf("expected fresh window of 1 entry, got %d", snaps[0].WindowCount)
		}
	})

	t.Run("UnknownModuleIgnored", func(t *testing.T) {
		tr := New(testPolicies(), 0)
		st := tr.Observe(obs("conv-f", domain.ModuleExtremism, "r1", trackerBase, 5, false))
		if st != domain.StateQuiet {
			t.Errorf("expected quiet for module without policy, got %s", st)
		}
		if len(tr.Snapshots()) != 0 {
			t.Error("expected no state for module without policy")
		}
	})
}

func TestTrackerShedding(t *testing.T) {
	tr := New(testPolicies(), 3)
	conv := "conv-shed"

	for i := 0; i < 5; i++ {
		tr.Observe(obs(conv, domain.ModuleDomesticViolence, "r", trackerBase.Add(time.Duration(i)*time.Minute), 5, false))
	}

	if got := tr.ShedEntries(); got != 2 {
		t.Errorf("expected 2 shed entries, got %d", got)
	}
	snaps := tr.Snapshots()
	if snaps[0].WindowCount != 3 {
		t.Errorf("expected window trimmed to 3 entries, got %d", snaps[0].WindowCount)
	}

	// Oldest entries go first.
	if !snaps[0].LastTimestamp.Equal(trackerBase.Add(4 * time.Minute)) {
		t.Errorf("expected newest entry retained, got %s", snaps[0].LastTimestamp)
	}
}

func TestTrackerMerge(t *testing.T) {
	a := New(testPolicies(), 0)
	b := New(testPolicies(), 0)

	a.Observe(obs("conv-1", domain.ModuleDomesticViolence, "r1", trackerBase, 5, true))
	b.Observe(obs("conv-2", domain.ModuleNarcotics, "r2", trackerBase, 4, false))

	a.Merge(b)

	snaps := a.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots after merge, got %d", len(snaps))
	}
	// Sorted by conversation key.
	if snaps[0].ConversationKey != "conv-1" || snaps[1].ConversationKey != "conv-2" {
		t.Errorf("unexpected snapshot order: %s, %s", snaps[0].ConversationKey, snaps[1].ConversationKey)
	}
	if len(a.Events()) != 1 {
		t.Errorf("expected 1 merged event, got %d", len(a.Events()))
	}
}

func TestSnapshotFields(t *testing.T) {
	tr := New(testPolicies(), 0)
	tr.Observe(obs("conv-s", domain.ModuleNarcotics, "r1", trackerBase, 4, false))
	tr.Observe(obs("conv-s", domain.ModuleNarcotics, "r2", trackerBase.Add(time.Hour), 7, false))

	snaps := tr.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	s := snaps[0]
	if s.WindowCount != 2 || s.WindowScore != 11 {
		t.Errorf("expected window count 2 score 11, got %d/%d", s.WindowCount, s.WindowScore)
	}
	if s.LastSeverity != 7 {
		t.Errorf("expected last severity 7, got %d", s.LastSeverity)
	}
	if !s.LastTimestamp.Equal(trackerBase.Add(time.Hour)) {
		t.Errorf("unexpected last timestamp %s", s.LastTimestamp)
	}
}
