package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/pipeline"
	"github.com/ghost-forensics/ghost/internal/repository"
	"github.com/ghost-forensics/ghost/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// summaryTTL bounds how long completed summaries stay in the cache.
const summaryTTL = 30 * time.Minute

// Handler carries the shared dependencies behind every route.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	catalog  *rules.Catalog
	pipeline *pipeline.Pipeline
	version  string
}

func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, catalog *rules.Catalog, p *pipeline.Pipeline, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		catalog:  catalog,
		pipeline: p,
		version:  version,
	}
}

// AnalyzeRequest is the request body for POST /v1/analyze. The case ID
// comes from the X-Case-ID header, not the body.
type AnalyzeRequest struct {
	CaseName string               `json:"caseName,omitempty"`
	Examiner string               `json:"examiner,omitempty"`
	Records  []domain.RecordInput `json:"records"`
}

// AnalyzeResponse is the response for POST /v1/analyze.
type AnalyzeResponse struct {
	RunID    string              `json:"runId"`
	CaseID   string              `json:"caseId"`
	Status   string              `json:"status"`
	Summary  *domain.CaseSummary `json:"summary"`
	Metadata struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		TotalMs  int64  `json:"totalMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

// Analyze handles POST /v1/analyze requests: a synchronous run over the
// submitted records.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records are required",
		})
		return
	}

	ingestMs := time.Since(start).Milliseconds()

	runID := uuid.New().String()

	summary, err := h.pipeline.Analyze(ctx, &domain.AnalyzeRequest{
		CaseID:   caseID,
		CaseName: req.CaseName,
		Examiner: req.Examiner,
		Records:  req.Records,
	})
	if err != nil {
		slog.Error("analysis failed",
			"run_id", runID,
			"case_id", caseID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	run := &domain.Run{
		ID:        runID,
		CaseID:    caseID,
		Status:    domain.StatusFor(summary),
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}

	// Persist if a repository is available; the response does not depend on it
	if h.repo != nil {
		if err := h.repo.SaveRun(ctx, caseID, run); err != nil {
			slog.Error("failed to save run", "run_id", runID, "error", err)
		}
		if err := h.repo.SaveAlerts(ctx, caseID, runID, summary.Alerts); err != nil {
			slog.Error("failed to save alerts", "run_id", runID, "error", err)
		}
		if err := h.repo.SaveLinks(ctx, caseID, runID, summary.Links); err != nil {
			slog.Error("failed to save links", "run_id", runID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetSummary(ctx, caseID, runID, summary, summaryTTL); err != nil {
			slog.Error("failed to cache summary", "run_id", runID, "error", err)
		}

		// Windowed counter tracks case activity for the request log
		if n, err := h.cache.IncrementCounter(ctx, caseID, "runs", 24*time.Hour); err == nil {
			slog.Debug("case run counter", "case_id", caseID, "runs_24h", n)
		}
	}

	// Critical findings notify out of band even on synchronous runs
	if h.bus != nil && summary.HasCriticalAlert() {
		payload, _ := json.Marshal(run)
		if err := h.bus.Publish(ctx, caseID, domain.TopicAlertCritical, payload); err != nil {
			slog.Error("failed to publish critical alert", "run_id", runID, "error", err)
		}
	}

	totalMs := time.Since(start).Milliseconds()

	resp := AnalyzeResponse{
		RunID:   runID,
		CaseID:  caseID,
		Status:  run.Status,
		Summary: summary,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.IngestMs = ingestMs
	resp.Metadata.TotalMs = totalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health pings every wired backing service and reports "degraded" when
// any of them fails. The response stays 200 so probes distinguish a
// slow dependency from a dead process.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	pings := map[string]func(context.Context) error{}
	if h.repo != nil {
		pings["repository"] = h.repo.Ping
	}
	if h.cache != nil {
		pings["cache"] = h.cache.Ping
	}
	if h.bus != nil {
		pings["eventbus"] = h.bus.Ping
	}

	status := "healthy"
	for name, ping := range pings {
		if err := ping(r.Context()); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready is the readiness probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetRun retrieves a stored run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, caseID, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
			return
		}
		slog.Error("failed to get run", "id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get run",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRunSummary serves just the summary document for a run, cache first.
func (h *Handler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.cache != nil {
		if s, err := h.cache.GetSummary(ctx, caseID, runID); err == nil && s != nil {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, caseID, runID)
	if err != nil || run.Summary == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run summary not found",
		})
		return
	}

	// Repopulate the cache for subsequent reads
	if h.cache != nil {
		if err := h.cache.SetSummary(ctx, caseID, runID, run.Summary, summaryTTL); err != nil {
			slog.Debug("failed to repopulate summary cache", "run_id", runID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, run.Summary)
}

// ListRuns lists stored runs for a case, newest first. Summaries are
// omitted; fetch per run.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)

	// An explicit case_id query param overrides the header scope
	if q := r.URL.Query().Get("case_id"); q != "" {
		caseID = q
	}

	var since time.Time
	if q := r.URL.Query().Get("since"); q != "" {
		parsed, err := time.Parse(time.RFC3339, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	runs, err := h.repo.ListRuns(ctx, caseID, since)
	if err != nil {
		slog.Error("failed to list runs", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunAlerts lists the flattened alert rows for a run.
func (h *Handler) GetRunAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	alerts, err := h.repo.ListAlerts(ctx, caseID, runID)
	if err != nil {
		slog.Error("failed to list alerts", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetRunLinks lists the flattened correlation link rows for a run.
func (h *Handler) GetRunLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	links, err := h.repo.ListLinks(ctx, caseID, runID)
	if err != nil {
		slog.Error("failed to list links", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list links",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"links": links,
		"count": len(links),
	})
}

// ListModules returns the live rule book from the catalog.
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules := h.catalog.Modules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modules": modules,
		"count":   len(modules),
		"source":  "catalog",
	})
}

// GetModule retrieves a module config by name. The live catalog is checked
// first; disabled or stored-only configs fall through to the repository.
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "module name is required",
		})
		return
	}

	for _, m := range h.catalog.Modules() {
		if m.Name == domain.ModuleName(name) {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}

	if h.repo != nil {
		cfg, err := h.repo.GetModuleConfig(ctx, caseID, domain.ModuleName(name))
		if err == nil {
			writeJSON(w, http.StatusOK, cfg)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "module not found",
	})
}

// UpdateModule saves a case-scoped module rule book. The config is compiled
// against a staging catalog first so a bad rule book cannot reach the live
// one. Call POST /v1/modules/reload to apply.
func (h *Handler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "module name is required",
		})
		return
	}

	var cfg domain.ModuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// The URL names the module; the body cannot rename it
	cfg.Name = domain.ModuleName(name)

	// Compile check, with Enabled forced so disabled configs validate too
	check := cfg
	check.Enabled = true
	if _, err := rules.NewCatalog([]domain.ModuleConfig{check}, h.catalog.Thresholds(), 2); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid module config: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveModuleConfig(ctx, caseID, &cfg); err != nil {
			slog.Error("failed to save module config", "name", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save module config",
			})
			return
		}
	}

	slog.Info("module config saved", "case_id", caseID, "name", name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"module":  cfg,
		"message": "Module config saved. Call POST /v1/modules/reload to apply changes.",
	})
}

// DeleteModule removes a case's stored rule book for a module and reloads
// the catalog. The built-in defaults take over for that module.
func (h *Handler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "module name is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteModuleConfig(ctx, caseID, domain.ModuleName(name)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "module config not found",
			})
			return
		}
		slog.Error("failed to delete module config", "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete module config",
		})
		return
	}

	// Auto-reload so the defaults take effect immediately
	count, err := h.reloadCatalog(ctx, caseID)
	if err != nil {
		slog.Error("failed to reload catalog after delete", "error", err)
	} else {
		slog.Info("catalog auto-reloaded after delete", "count", count)
	}

	slog.Info("module config deleted", "case_id", caseID, "name", name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Module config deleted and catalog reloaded.",
	})
}

// ReloadModules rebuilds the live catalog from the built-in defaults
// overlaid with the case's stored rule books.
func (h *Handler) ReloadModules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := GetCaseID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	count, err := h.reloadCatalog(ctx, caseID)
	if err != nil {
		slog.Error("failed to reload modules", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload modules: " + err.Error(),
		})
		return
	}

	slog.Info("modules reloaded", "case_id", caseID, "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "modules reloaded successfully",
		"count":   count,
	})
}

// reloadCatalog merges stored rule books over the built-in defaults by
// module name and swaps them into the live catalog.
func (h *Handler) reloadCatalog(ctx context.Context, caseID string) (int, error) {
	stored, err := h.repo.ListModuleConfigs(ctx, caseID)
	if err != nil {
		return 0, err
	}

	merged := rules.DefaultModuleConfigs()
	index := make(map[domain.ModuleName]int, len(merged))
	for i, cfg := range merged {
		index[cfg.Name] = i
	}
	for _, cfg := range stored {
		if i, ok := index[cfg.Name]; ok {
			merged[i] = *cfg
		} else {
			merged = append(merged, *cfg)
		}
	}

	if err := h.catalog.Reload(merged); err != nil {
		return 0, err
	}
	return h.catalog.ModuleCount(), nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
