package sqlite

// Schema is the complete SQLite schema. All statements are idempotent so the
// schema can be applied on every open.
//
// Nested structs (workspace context, state context, tags, metadata) are
// stored as JSON TEXT columns. The (workspace_id, name) index on states is
// deliberately non-unique: the uniqueness check lives in the memory service
// and the check→persist race is an accepted property of this backend. The
// postgres backend carries a UNIQUE index for deployments that need the
// stronger guarantee.
const Schema = `
CREATE TABLE IF NOT EXISTS workspaces (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    context       TEXT,
    root_folder   TEXT,
    created       TIMESTAMP NOT NULL,
    last_accessed TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workspaces_name ON workspaces(name);
CREATE INDEX IF NOT EXISTS idx_workspaces_last_accessed ON workspaces(last_accessed);

CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    workspace_id        TEXT NOT NULL,
    name                TEXT NOT NULL,
    description         TEXT,
    goal                TEXT,
    start_time          TIMESTAMP NOT NULL,
    end_time            TIMESTAMP,
    is_active           INTEGER NOT NULL DEFAULT 1,
    previous_session_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(workspace_id, name);

CREATE TABLE IF NOT EXISTS states (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    session_id   TEXT,
    created      TIMESTAMP NOT NULL,
    context      TEXT NOT NULL,
    tags         TEXT,
    metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_states_workspace_name ON states(workspace_id, name);
CREATE INDEX IF NOT EXISTS idx_states_session ON states(session_id);

CREATE TABLE IF NOT EXISTS memory_traces (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    workspace_id TEXT NOT NULL,
    content      TEXT NOT NULL,
    type         TEXT NOT NULL,
    timestamp    TIMESTAMP NOT NULL,
    metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_traces_session ON memory_traces(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_workspace ON memory_traces(workspace_id);
`
