package postgresql

// migrations returns the schema migrations for the PostgreSQL backend, keyed
// by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id              TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name            TEXT NOT NULL,
				nodes           JSONB NOT NULL DEFAULT '[]',
				edges           JSONB NOT NULL DEFAULT '[]',
				active          BOOLEAN NOT NULL DEFAULT FALSE,
				created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_organization
				ON workflows (organization_id);

			CREATE TABLE IF NOT EXISTS workflow_runs (
				id                TEXT PRIMARY KEY,
				workflow_id       TEXT NOT NULL REFERENCES workflows (id),
				contact_id        TEXT NOT NULL,
				organization_id   TEXT NOT NULL,
				current_node_id   TEXT,
				status            TEXT NOT NULL DEFAULT 'running',
				next_execution_at TIMESTAMP WITH TIME ZONE,
				last_executed_at  TIMESTAMP WITH TIME ZONE,
				attempts          INTEGER NOT NULL DEFAULT 0,
				last_error        TEXT NOT NULL DEFAULT '',
				version           INTEGER NOT NULL DEFAULT 0,
				created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_runs_due
				ON workflow_runs (next_execution_at ASC NULLS FIRST)
				WHERE status IN ('running', 'waiting');

			CREATE TABLE IF NOT EXISTS contacts (
				id              TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				first_name      TEXT NOT NULL DEFAULT '',
				last_name       TEXT NOT NULL DEFAULT '',
				email           TEXT NOT NULL,
				fields          JSONB NOT NULL DEFAULT '{}',
				created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS email_templates (
				id              TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name            TEXT NOT NULL,
				subject         TEXT NOT NULL,
				body_html       TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS smtp_configs (
				id              TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				host            TEXT NOT NULL,
				port            INTEGER NOT NULL,
				username        TEXT NOT NULL DEFAULT '',
				password        TEXT NOT NULL DEFAULT '',
				from_address    TEXT NOT NULL,
				from_name       TEXT NOT NULL DEFAULT '',
				active          BOOLEAN NOT NULL DEFAULT TRUE,
				created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_smtp_configs_active
				ON smtp_configs (organization_id, created_at)
				WHERE active;

			CREATE TABLE IF NOT EXISTS email_sends (
				id              TEXT PRIMARY KEY,
				run_id          TEXT NOT NULL,
				contact_id      TEXT NOT NULL,
				organization_id TEXT NOT NULL,
				template_id     TEXT NOT NULL,
				subject         TEXT NOT NULL DEFAULT '',
				sent_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				opened_at       TIMESTAMP WITH TIME ZONE,
				clicked_at      TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_email_sends_run
				ON email_sends (run_id);
		`,
	}
}
