// Package worker drains async record submissions off the event bus and
// runs them through the analysis pipeline. The lab tier runs one so
// ingest tools can submit without holding an HTTP connection open.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/pipeline"
	"github.com/google/uuid"
)

// Worker subscribes to submission topics and turns each payload into a
// stored run. A nil repository is allowed; results are then only
// published, not persisted.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	pipeline *pipeline.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config controls which cases the worker drains and how hard it works.
type Config struct {
	// CaseIDs pins the worker to specific cases. Empty falls back to the
	// global pseudo-case subscription.
	CaseIDs []string

	// WorkerCount caps concurrent analysis runs across all subscriptions.
	// Zero means no cap.
	WorkerCount int
}

// NewWorker wires a worker against the bus, repository, and pipeline.
func NewWorker(bus domain.EventBus, repo domain.Repository, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes per configured case. A case that fails to subscribe
// is logged and skipped rather than aborting the rest.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount > 0 {
		w.sem = make(chan struct{}, cfg.WorkerCount)
	}

	if len(cfg.CaseIDs) == 0 {
		// Both bus backends scope delivery by case ID, so the global
		// subscription only sees submissions addressed to the _global
		// pseudo-case. Pinned cases are the lab default.
		if err := w.subscribe("_global", w.handleMessage); err != nil {
			return err
		}
		slog.Info("global worker started")
		return nil
	}

	for _, caseID := range cfg.CaseIDs {
		id := caseID
		err := w.subscribe(id, func(ctx context.Context, msg *domain.Message) error {
			return w.processSubmission(ctx, id, msg)
		})
		if err != nil {
			slog.Error("failed to start worker for case",
				"case_id", id,
				"error", err,
			)
			continue
		}
		slog.Info("case worker started",
			"case_id", id,
			"topic", domain.TopicRecordsSubmitted,
		)
	}
	return nil
}

func (w *Worker) subscribe(caseID string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, caseID, domain.TopicRecordsSubmitted, handler)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// handleMessage serves the global subscription, where the real case ID
// arrives on the envelope rather than the subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSubmission(ctx, msg.CaseID, msg)
}

// SubmissionMessage is the payload ingest tools publish to request an
// analysis run.
type SubmissionMessage struct {
	RunID    string               `json:"runId,omitempty"`
	CaseID   string               `json:"caseId"`
	CaseName string               `json:"caseName,omitempty"`
	Examiner string               `json:"examiner,omitempty"`
	Records  []domain.RecordInput `json:"records"`
}

// RunFailedMessage is published when a submission cannot be analyzed.
type RunFailedMessage struct {
	RunID  string `json:"runId"`
	CaseID string `json:"caseId"`
	Error  string `json:"error"`
}

// processSubmission runs one submission end to end: parse, analyze,
// persist, publish. Returning an error leaves redelivery to the bus.
func (w *Worker) processSubmission(ctx context.Context, caseID string, msg *domain.Message) error {
	if w.sem != nil {
		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	start := time.Now()

	var sm SubmissionMessage
	if err := json.Unmarshal(msg.Payload, &sm); err != nil {
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// The payload's case wins over the subscription's; the global worker
	// has no other source for it.
	if sm.CaseID != "" {
		caseID = sm.CaseID
	}
	runID := sm.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	slog.Debug("processing submission",
		"run_id", runID,
		"case_id", caseID,
		"records", len(sm.Records),
	)

	summary, err := w.pipeline.Analyze(ctx, &domain.AnalyzeRequest{
		CaseID:   caseID,
		CaseName: sm.CaseName,
		Examiner: sm.Examiner,
		Records:  sm.Records,
	})
	if err != nil {
		w.recordFailure(ctx, caseID, runID, err)
		return err
	}

	run := &domain.Run{
		ID:        runID,
		CaseID:    caseID,
		Status:    domain.StatusFor(summary),
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	w.persist(ctx, caseID, run, summary)

	resultPayload, _ := json.Marshal(run)
	if err := w.bus.Publish(ctx, caseID, domain.TopicRunCompleted, resultPayload); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", runID,
			"error", err,
		)
	}

	// Critical findings get their own topic for immediate routing.
	if summary.HasCriticalAlert() {
		if err := w.bus.Publish(ctx, caseID, domain.TopicAlertCritical, resultPayload); err != nil {
			slog.Error("failed to publish critical alert",
				"run_id", runID,
				"error", err,
			)
		}
	}

	slog.Info("submission processed",
		"run_id", runID,
		"case_id", caseID,
		"status", run.Status,
		"alerts", len(summary.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// recordFailure stores a failed run marker and publishes the failure so
// the submitter learns the outcome.
func (w *Worker) recordFailure(ctx context.Context, caseID, runID string, cause error) {
	slog.Error("analysis failed",
		"run_id", runID,
		"case_id", caseID,
		"error", cause,
	)

	if w.repo != nil {
		failed := &domain.Run{
			ID:        runID,
			CaseID:    caseID,
			Status:    domain.RunStatusFailed,
			CreatedAt: time.Now().UTC(),
		}
		if err := w.repo.SaveRun(ctx, caseID, failed); err != nil {
			slog.Error("failed to save failed run",
				"run_id", runID,
				"error", err,
			)
		}
	}

	payload, _ := json.Marshal(RunFailedMessage{
		RunID:  runID,
		CaseID: caseID,
		Error:  cause.Error(),
	})
	if err := w.bus.Publish(ctx, caseID, domain.TopicRunFailed, payload); err != nil {
		slog.Error("failed to publish run failure",
			"run_id", runID,
			"error", err,
		)
	}
}

// persist writes the run plus the flattened alert and link tables.
// Storage errors are logged, not fatal; the run result still publishes.
func (w *Worker) persist(ctx context.Context, caseID string, run *domain.Run, summary *domain.CaseSummary) {
	if w.repo == nil {
		return
	}
	if err := w.repo.SaveRun(ctx, caseID, run); err != nil {
		slog.Error("failed to save run", "run_id", run.ID, "error", err)
	}
	if err := w.repo.SaveAlerts(ctx, caseID, run.ID, summary.Alerts); err != nil {
		slog.Error("failed to save alerts", "run_id", run.ID, "error", err)
	}
	if err := w.repo.SaveLinks(ctx, caseID, run.ID, summary.Links); err != nil {
		slog.Error("failed to save links", "run_id", run.ID, "error", err)
	}
}

// Stop cancels the worker context and drops every subscription.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	slog.Info("workers stopped")
	return nil
}

// Stats describes the worker's live subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats reports the current subscription set.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
