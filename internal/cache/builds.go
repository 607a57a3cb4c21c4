package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BuildKind distinguishes full builds from incremental rebuilds.
type BuildKind string

// Build kinds.
const (
	BuildKindBuild   BuildKind = "build"
	BuildKindRebuild BuildKind = "rebuild"
)

// BuildStatus is the outcome of a recorded build.
type BuildStatus string

// Build statuses.
const (
	BuildStatusRunning BuildStatus = "running"
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusFailed  BuildStatus = "failed"
)

// Build is a row of the build history.
type Build struct {
	ID         string
	Kind       BuildKind
	Status     BuildStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Modules    int
	Errors     int
	Error      string
}

// Duration returns how long the build ran (zero while running).
func (b *Build) Duration() time.Duration {
	if b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

// StartBuild records a new running build.
func (s *Store) StartBuild(ctx context.Context, kind BuildKind) (*Build, error) {
	b := &Build{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    BuildStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		b.ID, string(b.Kind), string(b.Status), b.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record build: %w", err)
	}
	return b, nil
}

// FinishBuild marks a build finished. A non-nil buildErr marks it failed.
func (s *Store) FinishBuild(ctx context.Context, b *Build, modules, errCount int, buildErr error) error {
	b.FinishedAt = time.Now().UTC()
	b.Modules = modules
	b.Errors = errCount
	b.Status = BuildStatusSuccess
	var errMsg sql.NullString
	if buildErr != nil {
		b.Status = BuildStatusFailed
		b.Error = buildErr.Error()
		errMsg = sql.NullString{String: b.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE builds SET status = ?, finished_at = ?, modules = ?, errors = ?, error = ? WHERE id = ?`,
		string(b.Status), b.FinishedAt.UnixMilli(), b.Modules, b.Errors, errMsg, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update build %s: %w", b.ID, err)
	}
	return nil
}

// ListBuilds returns the most recent builds, newest first.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]*Build, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, started_at, finished_at, modules, errors, error
		 FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []*Build
	for rows.Next() {
		var (
			b          Build
			kind       string
			status     string
			startedAt  int64
			finishedAt sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&b.ID, &kind, &status, &startedAt, &finishedAt, &b.Modules, &b.Errors, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Kind = BuildKind(kind)
		b.Status = BuildStatus(status)
		b.StartedAt = time.UnixMilli(startedAt).UTC()
		if finishedAt.Valid {
			b.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
		}
		b.Error = errMsg.String
		builds = append(builds, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	return builds, nil
}
