// Package sqlite provides the SQLite implementation of the storage
// interfaces. It is the default backend: a single-file, zero-dependency
// database suited to per-user installs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB

	workspaces *workspaceStore
	sessions   *sessionStore
	states     *stateStore
	traces     *traceStore
}

// New opens a SQLite database at the given DSN, configures WAL mode, and
// applies the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	s := &Store{db: db}
	s.workspaces = &workspaceStore{db: db}
	s.sessions = &sessionStore{db: db}
	s.states = &stateStore{db: db}
	s.traces = &traceStore{db: db}
	return s, nil
}

func (s *Store) Workspaces() storage.WorkspaceStore { return s.workspaces }
func (s *Store) Sessions() storage.SessionStore     { return s.sessions }
func (s *Store) States() storage.StateStore         { return s.states }
func (s *Store) Traces() storage.TraceStore         { return s.traces }

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// marshalJSON encodes v for a TEXT column, mapping nil-ish values to NULL.
func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ---------------------------------------------------------------------------
// Workspaces
// ---------------------------------------------------------------------------

type workspaceStore struct {
	db *sql.DB
}

func (s *workspaceStore) Create(ctx context.Context, ws *types.Workspace) error {
	if ws == nil || ws.ID == "" {
		return fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}

	ctxJSON, err := marshalJSON(ws.Context)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, context, root_folder, created, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, ctxJSON, ws.RootFolder, ws.Created, ws.LastAccessed)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create workspace: %w", err)
	}
	return nil
}

func (s *workspaceStore) Get(ctx context.Context, id string) (*types.Workspace, error) {
	ws, err := s.scanOne(ctx, "SELECT id, name, context, root_folder, created, last_accessed FROM workspaces WHERE id = ?", id)
	if err != nil {
		return nil, err
	}

	// Every load counts as access. Non-fatal if the touch itself fails.
	_, _ = s.db.ExecContext(ctx, "UPDATE workspaces SET last_accessed = CURRENT_TIMESTAMP WHERE id = ?", id)
	return ws, nil
}

func (s *workspaceStore) GetByName(ctx context.Context, name string) (*types.Workspace, error) {
	return s.scanOne(ctx, "SELECT id, name, context, root_folder, created, last_accessed FROM workspaces WHERE name = ? ORDER BY created DESC LIMIT 1", name)
}

func (s *workspaceStore) scanOne(ctx context.Context, query string, arg interface{}) (*types.Workspace, error) {
	var ws types.Workspace
	var ctxJSON, rootFolder sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&ws.ID, &ws.Name, &ctxJSON, &rootFolder, &ws.Created, &ws.LastAccessed)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get workspace: %w", err)
	}

	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &ws.Context); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal workspace context: %w", err)
		}
	}
	if rootFolder.Valid {
		ws.RootFolder = rootFolder.String
	}
	return &ws, nil
}

func (s *workspaceStore) UpdateContext(ctx context.Context, id string, wctx types.WorkspaceContext) error {
	ctxJSON, err := marshalJSON(wctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "UPDATE workspaces SET context = ? WHERE id = ?", ctxJSON, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update workspace context: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *workspaceStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.Workspace], error) {
	opts.Normalize()
	// Workspaces default to recency of use, not creation.
	orderCol := opts.SortColumn(storage.WorkspaceSortColumns, "last_accessed")

	query := fmt.Sprintf(
		"SELECT id, name, context, root_folder, created, last_accessed FROM workspaces ORDER BY %s %s LIMIT ? OFFSET ?",
		orderCol, opts.SortOrder)

	rows, err := s.db.QueryContext(ctx, query, opts.PageSize, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var items []types.Workspace
	for rows.Next() {
		var ws types.Workspace
		var ctxJSON, rootFolder sql.NullString
		if err := rows.Scan(&ws.ID, &ws.Name, &ctxJSON, &rootFolder, &ws.Created, &ws.LastAccessed); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan workspace: %w", err)
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			if err := json.Unmarshal([]byte(ctxJSON.String), &ws.Context); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal workspace context: %w", err)
			}
		}
		if rootFolder.Valid {
			ws.RootFolder = rootFolder.String
		}
		items = append(items, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating workspaces: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workspaces").Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count workspaces: %w", err)
	}

	return storage.NewPageResult(items, total, opts), nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

type sessionStore struct {
	db *sql.DB
}

const sessionColumns = "id, workspace_id, name, description, goal, start_time, end_time, is_active, previous_session_id"

func (s *sessionStore) Create(ctx context.Context, sess *types.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.Name, sess.Description, sess.Goal,
		sess.StartTime, sess.EndTime, sess.IsActive, nullable(sess.PreviousSessionID))
	if err != nil {
		return fmt.Errorf("sqlite: failed to create session: %w", err)
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

func (s *sessionStore) GetByName(ctx context.Context, workspaceID, name string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE workspace_id = ? AND name = ? ORDER BY start_time DESC LIMIT 1",
		workspaceID, name)
	return scanSession(row)
}

func (s *sessionStore) Update(ctx context.Context, sess *types.Session) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET name = ?, description = ?, goal = ?, end_time = ?, is_active = ?
		WHERE id = ?`,
		sess.Name, sess.Description, sess.Goal, sess.EndTime, sess.IsActive, sess.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *sessionStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.Session], error) {
	opts.Normalize()
	orderCol := opts.SortColumn(storage.SessionSortColumns, "start_time")

	var conditions []string
	var args []interface{}

	if opts.WorkspaceID != "" {
		conditions = append(conditions, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.ActiveOnly {
		conditions = append(conditions, "is_active = 1")
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "start_time > ?")
		args = append(args, opts.CreatedAfter)
	}

	var whereClause string
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s FROM sessions%s ORDER BY %s %s LIMIT ? OFFSET ?",
		sessionColumns, whereClause, orderCol, opts.SortOrder)
	args = append(args, opts.PageSize, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list sessions: %w", err)
	}
	defer rows.Close()

	var items []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating sessions: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM sessions" + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count sessions: %w", err)
	}

	return storage.NewPageResult(items, total, opts), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var description, goal, previousID sql.NullString
	var endTime sql.NullTime

	err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.Name, &description, &goal,
		&sess.StartTime, &endTime, &sess.IsActive, &previousID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan session: %w", err)
	}

	if description.Valid {
		sess.Description = description.String
	}
	if goal.Valid {
		sess.Goal = goal.String
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	if previousID.Valid {
		sess.PreviousSessionID = previousID.String
	}
	return &sess, nil
}

// ---------------------------------------------------------------------------
// States
// ---------------------------------------------------------------------------

type stateStore struct {
	db *sql.DB
}

const stateColumns = "id, name, workspace_id, session_id, created, context, tags, metadata"

func (s *stateStore) Create(ctx context.Context, st *types.State) error {
	if st == nil || st.ID == "" {
		return fmt.Errorf("%w: state ID is required", storage.ErrInvalidInput)
	}

	ctxJSON, err := marshalJSON(st.Context)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(st.Tags)
	if err != nil {
		return err
	}
	metaJSON, err := marshalJSON(st.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.WorkspaceID, st.SessionID, st.Created, ctxJSON, tagsJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create state: %w", err)
	}
	return nil
}

func (s *stateStore) Get(ctx context.Context, id string) (*types.State, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+stateColumns+" FROM states WHERE id = ?", id)
	return scanState(row)
}

func (s *stateStore) GetByName(ctx context.Context, workspaceID, name string) (*types.State, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM states WHERE workspace_id = ? AND name = ? LIMIT 1",
		workspaceID, name)
	return scanState(row)
}

func (s *stateStore) UpdateTags(ctx context.Context, id string, tags []string, metadata map[string]interface{}) error {
	tagsJSON, err := marshalJSON(tags)
	if err != nil {
		return err
	}
	metaJSON, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "UPDATE states SET tags = ?, metadata = ? WHERE id = ?", tagsJSON, metaJSON, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update state tags: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *stateStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM states WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *stateStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.State], error) {
	opts.Normalize()
	orderCol := opts.SortColumn(storage.StateSortColumns, "created")

	var conditions []string
	var args []interface{}

	if opts.WorkspaceID != "" {
		conditions = append(conditions, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "created > ?")
		args = append(args, opts.CreatedAfter)
	}

	var whereClause string
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s FROM states%s ORDER BY %s %s LIMIT ? OFFSET ?",
		stateColumns, whereClause, orderCol, opts.SortOrder)
	args = append(args, opts.PageSize, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list states: %w", err)
	}
	defer rows.Close()

	var items []types.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating states: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM states" + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count states: %w", err)
	}

	return storage.NewPageResult(items, total, opts), nil
}

func scanState(row rowScanner) (*types.State, error) {
	var st types.State
	var sessionID, ctxJSON, tagsJSON, metaJSON sql.NullString

	err := row.Scan(&st.ID, &st.Name, &st.WorkspaceID, &sessionID, &st.Created, &ctxJSON, &tagsJSON, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan state: %w", err)
	}

	if sessionID.Valid {
		st.SessionID = sessionID.String
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &st.Context); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal state context: %w", err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &st.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal state tags: %w", err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &st.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal state metadata: %w", err)
		}
	}
	return &st, nil
}

// ---------------------------------------------------------------------------
// Memory traces
// ---------------------------------------------------------------------------

type traceStore struct {
	db *sql.DB
}

func (s *traceStore) Append(ctx context.Context, tr *types.MemoryTrace) error {
	if tr == nil || tr.ID == "" {
		return fmt.Errorf("%w: trace ID is required", storage.ErrInvalidInput)
	}

	metaJSON, err := marshalJSON(tr.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_traces (id, session_id, workspace_id, content, type, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.SessionID, tr.WorkspaceID, tr.Content, tr.Type, tr.Timestamp, metaJSON)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append trace: %w", err)
	}
	return nil
}

func (s *traceStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.MemoryTrace], error) {
	opts.Normalize()
	orderCol := opts.SortColumn(storage.TraceSortColumns, "timestamp")

	var conditions []string
	var args []interface{}

	if opts.WorkspaceID != "" {
		conditions = append(conditions, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if opts.TraceType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.TraceType)
	}

	var whereClause string
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		"SELECT id, session_id, workspace_id, content, type, timestamp, metadata FROM memory_traces%s ORDER BY %s %s LIMIT ? OFFSET ?",
		whereClause, orderCol, opts.SortOrder)
	args = append(args, opts.PageSize, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list traces: %w", err)
	}
	defer rows.Close()

	var items []types.MemoryTrace
	for rows.Next() {
		var tr types.MemoryTrace
		var metaJSON sql.NullString
		if err := rows.Scan(&tr.ID, &tr.SessionID, &tr.WorkspaceID, &tr.Content, &tr.Type, &tr.Timestamp, &metaJSON); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan trace: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &tr.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal trace metadata: %w", err)
			}
		}
		items = append(items, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating traces: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memory_traces" + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count traces: %w", err)
	}

	return storage.NewPageResult(items, total, opts), nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
