package postgres

// Schema is the complete PostgreSQL schema. All statements are idempotent.
//
// Unlike the SQLite backend, states carries a UNIQUE(workspace_id, name)
// index: PostgreSQL deployments are the multi-writer case where the
// service-level uniqueness check alone is not enough, so the storage layer
// provides the compare-and-swap the accepted race otherwise leaves open.
const Schema = `
CREATE TABLE IF NOT EXISTS workspaces (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    context       JSONB,
    root_folder   TEXT,
    created       TIMESTAMPTZ NOT NULL,
    last_accessed TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workspaces_name ON workspaces(name);
CREATE INDEX IF NOT EXISTS idx_workspaces_last_accessed ON workspaces(last_accessed);

CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    workspace_id        TEXT NOT NULL,
    name                TEXT NOT NULL,
    description         TEXT,
    goal                TEXT,
    start_time          TIMESTAMPTZ NOT NULL,
    end_time            TIMESTAMPTZ,
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    previous_session_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(workspace_id, name);

CREATE TABLE IF NOT EXISTS states (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    session_id   TEXT,
    created      TIMESTAMPTZ NOT NULL,
    context      JSONB NOT NULL,
    tags         JSONB,
    metadata     JSONB
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_states_workspace_name ON states(workspace_id, name);
CREATE INDEX IF NOT EXISTS idx_states_session ON states(session_id);

CREATE TABLE IF NOT EXISTS memory_traces (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    content      TEXT NOT NULL,
    type         TEXT NOT NULL,
    timestamp    TIMESTAMPTZ NOT NULL,
    metadata     JSONB
);

CREATE INDEX IF NOT EXISTS idx_traces_session ON memory_traces(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_workspace ON memory_traces(workspace_id);
`
