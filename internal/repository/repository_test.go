package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ghost-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	caseID := "case-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetModuleConfig", func(t *testing.T) {
		cfg := &domain.ModuleConfig{
			Name:     domain.ModuleNarcotics,
			Enabled:  true,
			Priority: domain.PriorityHigh,
			Keywords: map[string][]string{
				"street_names": {"weed", "bud"},
				"transactions": {"re-up", "plug"},
			},
			Weights: map[string]int{
				"street_names": 2,
				"transactions": 4,
			},
			ScoreCeiling: 10,
			Escalation: domain.EscalationPolicy{
				WindowHours:         24,
				FrequencyThreshold:  3,
				SeverityIncrease:    2,
				EscalationThreshold: 12,
			},
		}

		if err := repo.SaveModuleConfig(ctx, caseID, cfg); err != nil {
			t.Fatalf("SaveModuleConfig failed: %v", err)
		}

		retrieved, err := repo.GetModuleConfig(ctx, caseID, domain.ModuleNarcotics)
		if err != nil {
			t.Fatalf("GetModuleConfig failed: %v", err)
		}

		if retrieved.Name != cfg.Name {
			t.Errorf("expected name %s, got %s", cfg.Name, retrieved.Name)
		}
		if len(retrieved.Keywords["transactions"]) != 2 {
			t.Errorf("keywords did not round-trip: %v", retrieved.Keywords)
		}
		if retrieved.Weights["transactions"] != 4 {
			t.Errorf("weights did not round-trip: %v", retrieved.Weights)
		}
		if retrieved.Escalation.EscalationThreshold != 12 {
			t.Errorf("escalation policy did not round-trip: %+v", retrieved.Escalation)
		}
	})

	t.Run("UpdateModuleConfig", func(t *testing.T) {
		cfg := &domain.ModuleConfig{
			Name:     domain.ModuleNarcotics,
			Enabled:  false,
			Priority: domain.PriorityHigh,
			Keywords: map[string][]string{"street_names": {"weed"}},
			Weights:  map[string]int{"street_names": 3},
		}

		if err := repo.SaveModuleConfig(ctx, caseID, cfg); err != nil {
			t.Fatalf("SaveModuleConfig failed: %v", err)
		}

		retrieved, err := repo.GetModuleConfig(ctx, caseID, domain.ModuleNarcotics)
		if err != nil {
			t.Fatalf("GetModuleConfig failed: %v", err)
		}

		if retrieved.Enabled {
			t.Error("expected module to be disabled after update")
		}
		if retrieved.Weights["street_names"] != 3 {
			t.Errorf("expected updated weight 3, got %d", retrieved.Weights["street_names"])
		}
	})

	t.Run("ListModuleConfigs", func(t *testing.T) {
		dv := &domain.ModuleConfig{
			Name:     domain.ModuleDomesticViolence,
			Enabled:  true,
			Priority: domain.PriorityCritical,
			Keywords: map[string][]string{"threats": {"hurt you"}},
			Weights:  map[string]int{"threats": 5},
		}
		if err := repo.SaveModuleConfig(ctx, caseID, dv); err != nil {
			t.Fatalf("SaveModuleConfig failed: %v", err)
		}

		configs, err := repo.ListModuleConfigs(ctx, caseID)
		if err != nil {
			t.Fatalf("ListModuleConfigs failed: %v", err)
		}

		if len(configs) != 2 {
			t.Fatalf("expected 2 configs, got %d", len(configs))
		}
		// Ordered by name
		if configs[0].Name != domain.ModuleDomesticViolence {
			t.Errorf("expected domestic_violence first, got %s", configs[0].Name)
		}
	})

	t.Run("DeleteModuleConfig", func(t *testing.T) {
		if err := repo.DeleteModuleConfig(ctx, caseID, domain.ModuleDomesticViolence); err != nil {
			t.Fatalf("DeleteModuleConfig failed: %v", err)
		}

		_, err := repo.GetModuleConfig(ctx, caseID, domain.ModuleDomesticViolence)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}

		err = repo.DeleteModuleConfig(ctx, caseID, domain.ModuleDomesticViolence)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for second delete, got: %v", err)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		summary := &domain.CaseSummary{
			CaseID: caseID,
			Alerts: []domain.Alert{
				{
					Module:          domain.ModuleNarcotics,
					ConversationKey: "+15550002222",
					Tier:            domain.TierMedium,
					Score:           4,
					RecordIDs:       []string{"n-1", "n-2"},
				},
			},
		}

		run := &domain.Run{
			ID:        "run-001",
			CaseID:    caseID,
			Status:    domain.RunStatusComplete,
			Summary:   summary,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}

		if err := repo.SaveRun(ctx, caseID, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		retrieved, err := repo.GetRun(ctx, caseID, run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}

		if retrieved.Status != domain.RunStatusComplete {
			t.Errorf("expected status complete, got %s", retrieved.Status)
		}
		if retrieved.Summary == nil || len(retrieved.Summary.Alerts) != 1 {
			t.Fatalf("summary did not round-trip: %+v", retrieved.Summary)
		}
		if retrieved.Summary.Alerts[0].Score != 4 {
			t.Errorf("expected alert score 4, got %d", retrieved.Summary.Alerts[0].Score)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		older := &domain.Run{
			ID:        "run-000",
			CaseID:    caseID,
			Status:    domain.RunStatusComplete,
			CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		}
		if err := repo.SaveRun(ctx, caseID, older); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		runs, err := repo.ListRuns(ctx, caseID, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}

		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		// Newest first
		if runs[0].ID != "run-001" {
			t.Errorf("expected run-001 first, got %s", runs[0].ID)
		}
		// Summaries are not loaded on list
		if runs[0].Summary != nil {
			t.Error("expected nil summary on list")
		}

		recent, err := repo.ListRuns(ctx, caseID, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(recent) != 1 {
			t.Errorf("expected 1 run within the last hour, got %d", len(recent))
		}
	})

	t.Run("CaseIsolation", func(t *testing.T) {
		_, err := repo.GetRun(ctx, "case-002", "run-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different case, got: %v", err)
		}

		configs, err := repo.ListModuleConfigs(ctx, "case-002")
		if err != nil {
			t.Fatalf("ListModuleConfigs failed: %v", err)
		}
		if len(configs) != 0 {
			t.Errorf("expected no configs for different case, got %d", len(configs))
		}
	})

	t.Run("RequiresCaseID", func(t *testing.T) {
		err := repo.SaveRun(ctx, "", &domain.Run{ID: "run-x"})
		if err == nil {
			t.Error("expected error for empty caseID")
		}

		_, err = repo.GetRun(ctx, "", "run-001")
		if err == nil {
			t.Error("expected error for empty caseID")
		}

		_, err = repo.GetModuleConfig(ctx, "", domain.ModuleNarcotics)
		if err == nil {
			t.Error("expected error for empty caseID")
		}
	})

	t.Run("SaveAndListAlerts", func(t *testing.T) {
		ts := time.Now().UTC().Truncate(time.Second)
		alerts := []domain.Alert{
			{
				Module:          domain.ModuleNarcotics,
				ConversationKey: "+15550002222",
				Tier:            domain.TierMedium,
				Score:           4,
				RecordIDs:       []string{"n-1", "n-2"},
				LastTimestamp:   ts,
			},
			{
				Module:          domain.ModuleDomesticViolence,
				ConversationKey: "+15550001111",
				Tier:            domain.TierCritical,
				Score:           9,
				ImmediateAlert:  true,
				Escalation:      domain.StateCritical,
				RecordIDs:       []string{"dv-1"},
				LastTimestamp:   ts,
			},
		}

		if err := repo.SaveAlerts(ctx, caseID, "run-001", alerts); err != nil {
			t.Fatalf("SaveAlerts failed: %v", err)
		}

		listed, err := repo.ListAlerts(ctx, caseID, "run-001")
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}

		if len(listed) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(listed))
		}
		// Highest score first
		if listed[0].Score != 9 || !listed[0].ImmediateAlert {
			t.Errorf("unexpected first alert: %+v", listed[0])
		}
		if listed[0].Escalation != domain.StateCritical {
			t.Errorf("expected critical escalation, got %s", listed[0].Escalation)
		}
		if len(listed[1].RecordIDs) != 2 {
			t.Errorf("record IDs did not round-trip: %v", listed[1].RecordIDs)
		}

		// Re-saving the same run upserts rather than duplicating
		if err := repo.SaveAlerts(ctx, caseID, "run-001", alerts); err != nil {
			t.Fatalf("SaveAlerts failed on resave: %v", err)
		}
		listed, err = repo.ListAlerts(ctx, caseID, "run-001")
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(listed) != 2 {
			t.Errorf("expected 2 alerts after resave, got %d", len(listed))
		}
	})

	t.Run("SaveAndListLinks", func(t *testing.T) {
		links := []domain.CorrelationLink{
			{
				Type:          domain.LinkKeyword,
				Key:           "re-up",
				Module:        domain.ModuleNarcotics,
				RecordIDs:     []string{"n-2", "n2-1"},
				Conversations: []string{"+15550002222", "+15550004444"},
				Strength:      2,
			},
			{
				Type:          domain.LinkContact,
				Key:           "big mike",
				RecordIDs:     []string{"n-1", "x-1"},
				Conversations: []string{"+15550002222", "+15550005555"},
				Strength:      2,
			},
		}

		if err := repo.SaveLinks(ctx, caseID, "run-001", links); err != nil {
			t.Fatalf("SaveLinks failed: %v", err)
		}

		listed, err := repo.ListLinks(ctx, caseID, "run-001")
		if err != nil {
			t.Fatalf("ListLinks failed: %v", err)
		}

		if len(listed) != 2 {
			t.Fatalf("expected 2 links, got %d", len(listed))
		}
		// Canonical order: type, key, module
		if listed[0].Type != domain.LinkContact {
			t.Errorf("expected contact link first, got %s", listed[0].Type)
		}
		if listed[1].Key != "re-up" || listed[1].Module != domain.ModuleNarcotics {
			t.Errorf("unexpected keyword link: %+v", listed[1])
		}
		if len(listed[1].Conversations) != 2 {
			t.Errorf("conversations did not round-trip: %v", listed[1].Conversations)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetRun(ctx, caseID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetModuleConfig(ctx, caseID, domain.ModuleExtremism)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
