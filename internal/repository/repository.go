// Package repository persists GHOST evidence: analysis runs, flattened
// alerts, correlation links, and per-case module rule books. One SQL
// implementation covers both tiers; only the open path differs.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository over database/sql. Queries
// are written with ? placeholders and rebound for PostgreSQL.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured driver, applies pool limits, and runs schema
// migrations before handing the repository back.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

// requireCase rejects calls that arrive without a case identifier. Case
// scoping is the isolation boundary, so it is checked on every path.
func requireCase(caseID string) error {
	if err := requireCase(caseID); err != nil {
		return err
	}
	return nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveModuleConfig stores a module rule book with case isolation.
// Saving the same (case, name) again replaces the stored configuration.
func (r *SQLRepository) SaveModuleConfig(ctx context.Context, caseID string, cfg *domain.ModuleConfig) error {
	if err := requireCase(caseID); err != nil {
		return err
	}
	if cfg == nil || cfg.Name == "" {
		return fmt.Errorf("%w: module name is required", ErrInvalidInput)
	}

	config, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode module config: %w", err)
	}

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO module_configs (
			case_id, name, enabled, priority, config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, name) DO UPDATE SET
			enabled = excluded.enabled,
			priority = excluded.priority,
			config = excluded.config,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		caseID, string(cfg.Name), enabled, string(cfg.Priority),
		string(config), now, now,
	)
	return err
}

// GetModuleConfig retrieves a module rule book with case isolation.
func (r *SQLRepository) GetModuleConfig(ctx context.Context, caseID string, name domain.ModuleName) (*domain.ModuleConfig, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT config, enabled
		FROM module_configs
		WHERE case_id = ? AND name = ?
	`

	var config string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID, string(name)).Scan(&config, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cfg domain.ModuleConfig
	if err := json.Unmarshal([]byte(config), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse module config: %w", err)
	}

	// The column is authoritative so a toggle does not require re-encoding.
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListModuleConfigs retrieves all module rule books for a case.
// Disabled modules are included; the catalog decides what to compile.
func (r *SQLRepository) ListModuleConfigs(ctx context.Context, caseID string) ([]*domain.ModuleConfig, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT config, enabled
		FROM module_configs
		WHERE case_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ModuleConfig
	for rows.Next() {
		var config string
		var enabled int

		if err := rows.Scan(&config, &enabled); err != nil {
			return nil, err
		}

		var cfg domain.ModuleConfig
		if err := json.Unmarshal([]byte(config), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse module config: %w", err)
		}
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteModuleConfig removes a module rule book. The next catalog reload
// falls back to the built-in defaults for that module.
func (r *SQLRepository) DeleteModuleConfig(ctx context.Context, caseID string, name domain.ModuleName) error {
	if err := requireCase(caseID); err != nil {
		return err
	}

	query := `
		DELETE FROM module_configs
		WHERE case_id = ? AND name = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), caseID, string(name))
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRun stores an analysis run with case isolation.
func (r *SQLRepository) SaveRun(ctx context.Context, caseID string, run *domain.Run) error {
	if err := requireCase(caseID); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	var summary []byte
	if run.Summary != nil {
		var err error
		summary, err = json.Marshal(run.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO runs (id, case_id, status, summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, caseID, run.Status, string(summary), createdAt,
	)
	return err
}

// GetRun retrieves a run by ID with case isolation.
func (r *SQLRepository) GetRun(ctx context.Context, caseID string, runID string) (*domain.Run, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, case_id, status, summary, created_at
		FROM runs
		WHERE case_id = ? AND id = ?
	`

	var run domain.Run
	var summary string

	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID, runID).Scan(
		&run.ID, &run.CaseID, &run.Status, &summary, &run.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if summary != "" {
		var s domain.CaseSummary
		if err := json.Unmarshal([]byte(summary), &s); err != nil {
			return nil, fmt.Errorf("failed to parse summary: %w", err)
		}
		run.Summary = &s
	}

	return &run, nil
}

// ListRuns retrieves runs for a case since the given time, newest first.
// Summaries are not loaded; fetch per run via GetRun.
func (r *SQLRepository) ListRuns(ctx context.Context, caseID string, since time.Time) ([]*domain.Run, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, case_id, status, created_at
		FROM runs
		WHERE case_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(&run.ID, &run.CaseID, &run.Status, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// SaveAlerts flattens summary alerts into queryable rows. Re-saving a run's
// alerts replaces the previous rows for that run.
func (r *SQLRepository) SaveAlerts(ctx context.Context, caseID string, runID string, alerts []domain.Alert) error {
	if err := requireCase(caseID); err != nil {
		return err
	}
	if runID == "" {
		return fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			run_id, case_id, conversation_key, module, tier, score,
			immediate, escalation, record_ids, last_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, conversation_key, module) DO UPDATE SET
			tier = excluded.tier,
			score = excluded.score,
			immediate = excluded.immediate,
			escalation = excluded.escalation,
			record_ids = excluded.record_ids,
			last_timestamp = excluded.last_timestamp
	`

	for _, a := range alerts {
		recordIDs, _ := json.Marshal(a.RecordIDs)

		immediate := 0
		if a.ImmediateAlert {
			immediate = 1
		}

		_, err := r.db.ExecContext(ctx, r.rebind(query),
			runID, caseID, a.ConversationKey, string(a.Module),
			string(a.Tier), a.Score, immediate, string(a.Escalation),
			string(recordIDs), a.LastTimestamp,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListAlerts retrieves the flattened alerts for one run.
func (r *SQLRepository) ListAlerts(ctx context.Context, caseID string, runID string) ([]domain.Alert, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT conversation_key, module, tier, score, immediate,
			   escalation, record_ids, last_timestamp
		FROM alerts
		WHERE case_id = ? AND run_id = ?
		ORDER BY score DESC, conversation_key, module
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var recordIDs string
		var immediate int

		if err := rows.Scan(
			&a.ConversationKey, &a.Module, &a.Tier, &a.Score,
			&immediate, &a.Escalation, &recordIDs, &a.LastTimestamp,
		); err != nil {
			return nil, err
		}

		a.ImmediateAlert = immediate == 1
		if recordIDs != "" {
			json.Unmarshal([]byte(recordIDs), &a.RecordIDs)
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// SaveLinks stores correlation links for one run.
func (r *SQLRepository) SaveLinks(ctx context.Context, caseID string, runID string, links []domain.CorrelationLink) error {
	if err := requireCase(caseID); err != nil {
		return err
	}
	if runID == "" {
		return fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO correlation_links (
			run_id, case_id, type, key, module, strength, conversations, record_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, type, key, module) DO UPDATE SET
			strength = excluded.strength,
			conversations = excluded.conversations,
			record_ids = excluded.record_ids
	`

	for _, l := range links {
		conversations, _ := json.Marshal(l.Conversations)
		recordIDs, _ := json.Marshal(l.RecordIDs)

		_, err := r.db.ExecContext(ctx, r.rebind(query),
			runID, caseID, string(l.Type), l.Key, string(l.Module),
			l.Strength, string(conversations), string(recordIDs),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListLinks retrieves correlation links for one run in canonical order.
func (r *SQLRepository) ListLinks(ctx context.Context, caseID string, runID string) ([]domain.CorrelationLink, error) {
	if err := requireCase(caseID); err != nil {
		return nil, err
	}

	query := `
		SELECT type, key, module, strength, conversations, record_ids
		FROM correlation_links
		WHERE case_id = ? AND run_id = ?
		ORDER BY type, key, module
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.CorrelationLink
	for rows.Next() {
		var l domain.CorrelationLink
		var conversations, recordIDs string

		if err := rows.Scan(
			&l.Type, &l.Key, &l.Module, &l.Strength,
			&conversations, &recordIDs,
		); err != nil {
			return nil, err
		}

		if conversations != "" {
			json.Unmarshal([]byte(conversations), &l.Conversations)
		}
		if recordIDs != "" {
			json.Unmarshal([]byte(recordIDs), &l.RecordIDs)
		}
		links = append(links, l)
	}

	return links, rows.Err()
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... when running on the
// postgres driver. SQLite takes the query as written.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range []byte(query) {
		if ch != '?' {
			b.WriteByte(ch)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
