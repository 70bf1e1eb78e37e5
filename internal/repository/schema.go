package repository

// Evidence store DDL. The statements stick to the dialect overlap so one
// schema covers SQLite and PostgreSQL unchanged.

const schemaModuleConfigs = `
CREATE TABLE IF NOT EXISTS module_configs (
    case_id TEXT NOT NULL,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    priority TEXT NOT NULL,
    config TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (case_id, name)
);

CREATE INDEX IF NOT EXISTS idx_module_configs_case ON module_configs(case_id);
CREATE INDEX IF NOT EXISTS idx_module_configs_enabled ON module_configs(case_id, enabled);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    status TEXT NOT NULL,
    summary TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_case ON runs(case_id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(case_id, created_at);
`

// schemaAlerts flattens summary alerts into rows so a reviewer can query
// across runs without unpacking summary JSON.
const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    run_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    conversation_key TEXT NOT NULL,
    module TEXT NOT NULL,
    tier TEXT NOT NULL,
    score INTEGER NOT NULL,
    immediate INTEGER NOT NULL DEFAULT 0,
    escalation TEXT,
    record_ids TEXT NOT NULL,
    last_timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, conversation_key, module)
);

CREATE INDEX IF NOT EXISTS idx_alerts_case ON alerts(case_id);
CREATE INDEX IF NOT EXISTS idx_alerts_tier ON alerts(case_id, tier);
CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id);
`

const schemaLinks = `
CREATE TABLE IF NOT EXISTS correlation_links (
    run_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    type TEXT NOT NULL,
    key TEXT NOT NULL,
    module TEXT NOT NULL DEFAULT '',
    strength INTEGER NOT NULL,
    conversations TEXT NOT NULL,
    record_ids TEXT NOT NULL,
    PRIMARY KEY (run_id, type, key, module)
);

CREATE INDEX IF NOT EXISTS idx_links_case ON correlation_links(case_id);
CREATE INDEX IF NOT EXISTS idx_links_type ON correlation_links(case_id, type);
`

// AllSchemas lists the DDL in dependency order for migration.
func AllSchemas() []string {
	return []string{
		schemaModuleConfigs,
		schemaRuns,
		schemaAlerts,
		schemaLinks,
	}
}
