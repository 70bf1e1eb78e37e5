// Package pipeline orchestrates one analysis run: validation, partitioned
// scoring, escalation tracking, correlation, and summary assembly.
//
// Records are partitioned by conversation key and each partition is scored
// by exactly one worker in timestamp order, so escalation state needs no
// locking. Correlation runs after every worker has finished (map, barrier,
// merge). All merge points sort on total orders, which keeps the ranked
// output byte-identical across runs of the same input.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ghost-forensics/ghost/internal/correlate"
	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/escalation"
	"github.com/ghost-forensics/ghost/internal/identify"
	"github.com/ghost-forensics/ghost/internal/report"
	"github.com/ghost-forensics/ghost/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// approxEntryBytes is the budgeting estimate for one retained escalation
// window entry, padding included.
const approxEntryBytes = 512

var tracer = otel.Tracer("ghost-pipeline")

// Pipeline executes analysis runs against a rule catalog.
type Pipeline struct {
	catalog *rules.Catalog
	builder *report.Builder
	cfg     domain.AnalysisConfig
	mode    domain.AnalysisMode
}

// New creates a pipeline. Zero-value knobs fall back to safe defaults.
func New(catalog *rules.Catalog, cfg domain.AnalysisConfig, mode domain.AnalysisMode) *Pipeline {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if mode != domain.ModeTriage {
		mode = domain.ModeFull
	}
	return &Pipeline{
		catalog: catalog,
		builder: report.NewBuilder(catalog.Thresholds()),
		cfg:     cfg,
		mode:    mode,
	}
}

// partition is one conversation's records in timestamp order.
type partition struct {
	key     string
	records []domain.Record
}

// partial accumulates one worker's output until the barrier.
type partial struct {
	scores    []domain.RecordScore
	kinds     map[string]domain.RecordKind
	contacts  map[string]*domain.ContactActivity
	tracker   *escalation.Tracker
	collector *correlate.Collector
	index     *identify.Index
	processed int
	chunks    int
	truncated bool
}

// Analyze scores every record in the request and returns the case summary.
// A deadline expiring mid-run yields a truncated partial summary, not an
// error; only an unusable request fails.
func (p *Pipeline) Analyze(ctx context.Context, req *domain.AnalyzeRequest) (*domain.CaseSummary, error) {
	if req == nil || req.CaseID == "" {
		return nil, fmt.Errorf("analyze: missing case id")
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.analyze",
		trace.WithAttributes(
			attribute.String("case.id", req.CaseID),
			attribute.Int("records.submitted", len(req.Records)),
		),
	)
	defer span.End()

	if p.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	records := req.ToRecords()
	skipped := 0
	parts := make(map[string][]domain.Record)
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			skipped++
			slog.Warn("skipping record",
				"case_id", req.CaseID,
				"record_id", rec.ID,
				"error", err,
			)
			continue
		}
		parts[rec.ConversationKey] = append(parts[rec.ConversationKey], rec)
	}

	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		recs := parts[k]
		sort.SliceStable(recs, func(i, j int) bool {
			if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
				return recs[i].Timestamp.Before(recs[j].Timestamp)
			}
			return recs[i].ID < recs[j].ID
		})
	}

	workers := p.cfg.MaxWorkers
	if len(keys) < workers {
		workers = len(keys)
	}

	merged := p.newPartial(0)
	if workers > 0 {
		scoreCtx, scoreSpan := tracer.Start(ctx, "pipeline.score",
			trace.WithAttributes(
				attribute.Int("workers", workers),
				attribute.Int("conversations", len(keys)),
			),
		)

		perWorkerEntries := 0
		if p.cfg.MemoryLimitMB > 0 {
			perWorkerEntries = p.cfg.MemoryLimitMB * 1024 * 1024 / approxEntryBytes / workers
		}

		work := make(chan partition, len(keys))
		for _, k := range keys {
			work <- partition{key: k, records: parts[k]}
		}
		close(work)

		partials := make([]*partial, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				pt := p.newPartial(perWorkerEntries)
				partials[slot] = pt
				for part := range work {
					p.processPartition(scoreCtx, pt, part)
				}
			}(i)
		}
		wg.Wait()

		for _, pt := range partials {
			merged.merge(pt)
		}
		scoreSpan.End()
	}

	_, buildSpan := tracer.Start(ctx, "pipeline.assemble")
	summary := p.builder.Build(&report.Input{
		CaseID:       req.CaseID,
		CaseName:     req.CaseName,
		Examiner:     req.Examiner,
		TotalRecords: len(records),
		Processed:    merged.processed,
		Skipped:      skipped,
		Scores:       merged.scores,
		Kinds:        merged.kinds,
		Contacts:     merged.contacts,
		Snapshots:    merged.tracker.Snapshots(),
		Events:       merged.tracker.Events(),
		Links:        p.links(merged),
		Identifiers:  p.identifiers(merged),
		Truncated:    merged.truncated,
		ShedEntries:  merged.tracker.ShedEntries(),
		Workers:      workers,
		Chunks:       merged.chunks,
		Duration:     time.Since(start),
	})
	buildSpan.End()

	span.SetAttributes(
		attribute.Int("alerts", len(summary.Alerts)),
		attribute.Bool("truncated", summary.Truncated),
	)

	slog.Info("analysis run complete",
		"case_id", req.CaseID,
		"records", len(records),
		"skipped", skipped,
		"alerts", len(summary.Alerts),
		"truncated", summary.Truncated,
		"duration_ms", summary.Processing.DurationMs,
	)
	return summary, nil
}

func (p *Pipeline) newPartial(trackerEntries int) *partial {
	pt := &partial{
		kinds:    make(map[string]domain.RecordKind),
		contacts: make(map[string]*domain.ContactActivity),
		tracker:  escalation.New(p.catalog.Policies(), trackerEntries),
		index:    identify.NewIndex(),
	}
	if p.mode == domain.ModeFull {
		pt.collector = correlate.NewCollector(p.cfg.CorrelationWindowHours)
	}
	return pt
}

// processPartition scores one conversation. The deadline is checked between
// records; once it passes, remaining records and partitions are left
// unprocessed and the run is marked truncated.
func (p *Pipeline) processPartition(ctx context.Context, pt *partial, part partition) {
	for i := range part.records {
		if ctx.Err() != nil {
			pt.truncated = true
			return
		}
		rec := part.records[i]

		if pt.processed%p.cfg.ChunkSize == 0 {
			pt.chunks++
		}
		pt.processed++

		c, ok := pt.contacts[rec.ConversationKey]
		if !ok {
			c = &domain.ContactActivity{ConversationKey: rec.ConversationKey}
			pt.contacts[rec.ConversationKey] = c
		}
		if rec.Kind == domain.KindCall {
			c.Calls++
		} else {
			c.Messages++
		}
		c.Total++

		scores := p.catalog.Evaluate(rec)

		if p.mode == domain.ModeFull {
			ids := identify.Scan(rec.Text)
			pt.index.Add(ids)
			pt.collector.Observe(&rec, scores, ids)
		}

		if len(scores) == 0 {
			continue
		}
		pt.kinds[rec.ID] = rec.Kind
		for _, s := range scores {
			pt.tracker.Observe(s)
		}
		pt.scores = append(pt.scores, scores...)
	}
}

// merge folds a worker partial into the receiver. Conversations never span
// workers, so contact tallies cannot collide.
func (m *partial) merge(pt *partial) {
	m.scores = append(m.scores, pt.scores...)
	for k, v := range pt.kinds {
		m.kinds[k] = v
	}
	for k, v := range pt.contacts {
		m.contacts[k] = v
	}
	m.tracker.Merge(pt.tracker)
	if m.collector != nil && pt.collector != nil {
		m.collector.Merge(pt.collector)
	}
	m.index.Merge(pt.index)
	m.processed += pt.processed
	m.chunks += pt.chunks
	if pt.truncated {
		m.truncated = true
	}
}

func (p *Pipeline) links(m *partial) []domain.CorrelationLink {
	if m.collector == nil {
		return nil
	}
	return m.collector.Links()
}

func (p *Pipeline) identifiers(m *partial) map[string][]string {
	if p.mode != domain.ModeFull {
		return nil
	}
	return m.index.Result()
}
