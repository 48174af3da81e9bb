package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cutline/orchestrator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			request_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			tool_name TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			steps TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (request_id) REFERENCES requests(request_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_session_status ON plans(session_id, status)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (request_id) REFERENCES requests(request_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id, ts)`,
		`CREATE TABLE IF NOT EXISTS quality_reports (
			request_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			report TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (request_id, iteration),
			FOREIGN KEY (request_id) REFERENCES requests(request_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var metadata sql.NullString
	if len(session.Metadata) > 0 {
		metadata = sql.NullString{String: string(session.Metadata), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at, metadata) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt, metadata)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.CreatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, request_id, role, content, tool_call_id, tool_name, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, nullString(message.RequestID), message.Role, message.Content,
		nullString(message.ToolCallID), nullString(message.ToolName), message.CreatedAt)
	return err
}

// GetRecentMessages retrieves the last N messages of a session in
// chronological order.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, request_id, role, content, tool_call_id, tool_name, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC, message_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var requestID, toolCallID, toolName sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &requestID, &msg.Role, &msg.Content, &toolCallID, &toolName, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if requestID.Valid {
			msg.RequestID = requestID.String
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if toolName.Valid {
			msg.ToolName = toolName.String
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query, oldest-first for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateRequest creates a new request.
func (s *SQLiteStore) CreateRequest(ctx context.Context, request *domain.Request) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, session_id, kind, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		request.RequestID, request.SessionID, request.Kind, request.Status, request.StartedAt)
	return err
}

// GetRequest retrieves a request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	var req domain.Request
	var endedAt sql.NullTime
	var errData sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, session_id, kind, status, started_at, ended_at, error FROM requests WHERE request_id = ?`,
		requestID).Scan(&req.RequestID, &req.SessionID, &req.Kind, &req.Status, &req.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		req.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		req.Error = json.RawMessage(errData.String)
	}
	return &req, nil
}

// GetActiveRequest retrieves the most recent non-terminal request of a
// session, if any.
func (s *SQLiteStore) GetActiveRequest(ctx context.Context, sessionID string) (*domain.Request, error) {
	var req domain.Request
	var endedAt sql.NullTime
	var errData sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, session_id, kind, status, started_at, ended_at, error
		 FROM requests
		 WHERE session_id = ? AND status NOT IN (?, ?, ?)
		 ORDER BY started_at DESC
		 LIMIT 1`,
		sessionID, domain.RequestStatusCompleted, domain.RequestStatusFailed, domain.RequestStatusCancelled).
		Scan(&req.RequestID, &req.SessionID, &req.Kind, &req.Status, &req.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		req.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		req.Error = json.RawMessage(errData.String)
	}
	return &req, nil
}

// UpdateRequestStatus updates the status of a request.
func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, requestID string, status domain.RequestStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ? WHERE request_id = ?`,
		status, requestID)
	return err
}

// UpdateRequestCompleted moves a request to a terminal state.
func (s *SQLiteStore) UpdateRequestCompleted(ctx context.Context, requestID string, status domain.RequestStatus, errData []byte) error {
	now := time.Now()
	var errStr sql.NullString
	if errData != nil {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, ended_at = ?, error = ? WHERE request_id = ?`,
		status, now, errStr, requestID)
	return err
}

// SavePlan stores a new pending plan.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan *domain.ExecutionPlan) error {
	steps, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal plan steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (plan_id, request_id, session_id, status, steps, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		plan.PlanID, plan.RequestID, plan.SessionID, PlanStatusPending, string(steps), plan.CreatedAt)
	return err
}

// GetPlan retrieves a plan by ID regardless of status.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*domain.ExecutionPlan, error) {
	return s.queryPlan(ctx,
		`SELECT plan_id, request_id, session_id, steps, created_at FROM plans WHERE plan_id = ?`, planID)
}

// GetPendingPlan retrieves the session's plan awaiting confirmation, if any.
func (s *SQLiteStore) GetPendingPlan(ctx context.Context, sessionID string) (*domain.ExecutionPlan, error) {
	return s.queryPlan(ctx,
		`SELECT plan_id, request_id, session_id, steps, created_at
		 FROM plans WHERE session_id = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`, sessionID, PlanStatusPending)
}

func (s *SQLiteStore) queryPlan(ctx context.Context, query string, args ...any) (*domain.ExecutionPlan, error) {
	var plan domain.ExecutionPlan
	var steps string
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&plan.PlanID, &plan.RequestID, &plan.SessionID, &steps, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &plan.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan steps: %w", err)
	}
	return &plan, nil
}

// UpdatePlanSteps replaces the step list of a pending plan.
func (s *SQLiteStore) UpdatePlanSteps(ctx context.Context, planID string, steps []domain.PlanStep) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal plan steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET steps = ? WHERE plan_id = ? AND status = ?`,
		string(raw), planID, PlanStatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("plan %s is not pending", planID)
	}
	return nil
}

// UpdatePlanStatus transitions a pending plan to confirmed or cancelled.
// Returns false when the plan is no longer pending.
func (s *SQLiteStore) UpdatePlanStatus(ctx context.Context, planID string, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ? WHERE plan_id = ? AND status = ?`,
		status, planID, PlanStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AppendEvent appends one event to the request's telemetry stream.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.AgentEvent) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, request_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RequestID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a request.
func (s *SQLiteStore) GetEvents(ctx context.Context, requestID string, afterTs int64, types []string, limit int) ([]domain.AgentEvent, error) {
	query := `SELECT event_id, request_id, ts, type, payload FROM events WHERE request_id = ?`
	args := []interface{}{requestID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, event_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AgentEvent
	for rows.Next() {
		var event domain.AgentEvent
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RequestID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveQualityReport stores one quality-loop iteration report.
func (s *SQLiteStore) SaveQualityReport(ctx context.Context, requestID string, iteration int, report *domain.QualityReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal quality report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quality_reports (request_id, iteration, report, created_at) VALUES (?, ?, ?, ?)`,
		requestID, iteration, string(raw), time.Now())
	return err
}

// GetQualityReports retrieves a request's reports in iteration order.
func (s *SQLiteStore) GetQualityReports(ctx context.Context, requestID string) ([]domain.QualityReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM quality_reports WHERE request_id = ? ORDER BY iteration ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.QualityReport
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var report domain.QualityReport
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quality report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
