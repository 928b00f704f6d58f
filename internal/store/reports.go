package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scribe/internal/logging"
	"scribe/internal/report"
)

// SaveReport persists a report and its sections, replacing any previous
// rows for the same report ID.
func (s *LocalStore) SaveReport(r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SaveReport")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO reports
		(id, topic, title, summary, status, model, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Topic, r.Title, r.Summary, string(r.Status), r.Model,
		r.CreatedAt.UnixMilli(), r.Duration.Milliseconds()); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM sections WHERE report_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	for _, sec := range r.Sections {
		sources, err := json.Marshal(sec.Sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO sections
			(report_id, idx, heading, brief, body, worker_id, failed, duration_ms, sources)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, sec.Index, sec.Heading, sec.Brief, sec.Body, sec.WorkerID,
			boolToInt(sec.Failed), sec.Duration.Milliseconds(), string(sources)); err != nil {
			return fmt.Errorf("failed to save section %d: %w", sec.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	logging.Store("Saved report %s (%d sections, status=%s)", r.ID, len(r.Sections), r.Status)
	return nil
}

// GetReport loads a report with its sections. Returns sql.ErrNoRows
// wrapped when the ID is unknown.
func (s *LocalStore) GetReport(id string) (*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r report.Report
	var status string
	var createdAt, durationMs int64
	err := s.db.QueryRow(`SELECT id, topic, title, summary, status, model, created_at, duration_ms
		FROM reports WHERE id = ?`, id).
		Scan(&r.ID, &r.Topic, &r.Title, &r.Summary, &status, &r.Model, &createdAt, &durationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}
	r.Status = report.Status(status)
	r.CreatedAt = time.UnixMilli(createdAt)
	r.Duration = time.Duration(durationMs) * time.Millisecond

	rows, err := s.db.Query(`SELECT idx, heading, brief, body, worker_id, failed, duration_ms, sources
		FROM sections WHERE report_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec report.Section
		var failed int
		var secDurationMs int64
		var sources string
		if err := rows.Scan(&sec.Index, &sec.Heading, &sec.Brief, &sec.Body,
			&sec.WorkerID, &failed, &secDurationMs, &sources); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sec.Failed = failed != 0
		sec.Duration = time.Duration(secDurationMs) * time.Millisecond
		if sources != "" {
			if err := json.Unmarshal([]byte(sources), &sec.Sources); err != nil {
				logging.StoreDebug("Skipping malformed sources for %s/%d: %v", id, sec.Index, err)
			}
		}
		r.Sections = append(r.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &r, nil
}

// ReportSummary is a row in the reports listing.
type ReportSummary struct {
	ID        string
	Topic     string
	Title     string
	Status    report.Status
	Sections  int
	CreatedAt time.Time
}

// ListReports returns report summaries, newest first.
func (s *LocalStore) ListReports(limit int) ([]ReportSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT r.id, r.topic, r.title, r.status, r.created_at,
		(SELECT COUNT(*) FROM sections sec WHERE sec.report_id = r.id)
		FROM reports r ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var rs ReportSummary
		var status string
		var createdAt int64
		if err := rows.Scan(&rs.ID, &rs.Topic, &rs.Title, &status, &createdAt, &rs.Sections); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		rs.Status = report.Status(status)
		rs.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// TaskRecord captures one dispatched section task for observability.
type TaskRecord struct {
	ID         string
	ReportID   string
	SectionIdx int
	WorkerID   string
	State      string
	Error      string
	Queued     time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordTask upserts a task record.
func (s *LocalStore) RecordTask(t TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var started, finished interface{}
	if !t.StartedAt.IsZero() {
		started = t.StartedAt.UnixMilli()
	}
	if !t.FinishedAt.IsZero() {
		finished = t.FinishedAt.UnixMilli()
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO tasks
		(id, report_id, section_idx, worker_id, state, error, queued_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ReportID, t.SectionIdx, t.WorkerID, t.State, t.Error,
		t.Queued.Milliseconds(), started, finished)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks returns the task records for a report, in section order.
func (s *LocalStore) ListTasks(reportID string) ([]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, report_id, section_idx, worker_id, state, error, queued_ms, started_at, finished_at
		FROM tasks WHERE report_id = ? ORDER BY section_idx`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var queuedMs int64
		var started, finished sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ReportID, &t.SectionIdx, &t.WorkerID,
			&t.State, &t.Error, &queuedMs, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		t.Queued = time.Duration(queuedMs) * time.Millisecond
		if started.Valid {
			t.StartedAt = time.UnixMilli(started.Int64)
		}
		if finished.Valid {
			t.FinishedAt = time.UnixMilli(finished.Int64)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
