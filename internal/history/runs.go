// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/keysync/internal/model"
	"github.com/uptrace/bun"
)

// ErrRunNotFound is returned by RunActions for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Run is one row of sync_runs.
type Run struct {
	bun.BaseModel `bun:"table:sync_runs" json:"-"`
	ID            string    `bun:"id,pk" json:"id"`
	Source        string    `bun:"source" json:"source,omitempty"`
	Status        string    `bun:"status" json:"status"`
	Error         string    `bun:"error" json:"error,omitempty"`
	StartedAt     time.Time `bun:"started_at" json:"started_at"`
	FinishedAt    time.Time `bun:"finished_at" json:"finished_at"`
	DryRun        bool      `bun:"dry_run" json:"dry_run"`
	UpsertSkipped bool      `bun:"upsert_skipped" json:"upsert_skipped"`
	Downloaded    int       `bun:"downloaded" json:"downloaded"`
	FetchDeleted  int       `bun:"fetch_deleted" json:"fetch_deleted"`
	Created       int       `bun:"created" json:"created"`
	Updated       int       `bun:"updated" json:"updated"`
	Untouched     int       `bun:"untouched" json:"untouched"`
	Deleted       int       `bun:"deleted" json:"deleted"`
	Skipped       int       `bun:"skipped" json:"skipped"`
	Failed        int       `bun:"failed" json:"failed"`
}

// Duration is the wall time the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ActionRecord is one row of sync_actions.
type ActionRecord struct {
	bun.BaseModel `bun:"table:sync_actions" json:"-"`
	ID            int64     `bun:"id,pk,autoincrement" json:"-"`
	RunID         string    `bun:"run_id" json:"run_id"`
	Name          string    `bun:"name" json:"name"`
	Kind          string    `bun:"kind" json:"kind"`
	Reason        string    `bun:"reason" json:"reason,omitempty"`
	Error         string    `bun:"error" json:"error,omitempty"`
	Fingerprints  string    `bun:"fingerprints" json:"fingerprints,omitempty"`
	RecordedAt    time.Time `bun:"recorded_at" json:"recorded_at"`
}

func (a ActionRecord) toModel() model.Action {
	out := model.Action{Name: a.Name, Kind: model.ActionKind(a.Kind), Reason: a.Reason, At: a.RecordedAt}
	if a.Error != "" {
		out.Err = errors.New(a.Error)
	}
	if a.Fingerprints != "" {
		out.Fingerprints = strings.Split(a.Fingerprints, "\n")
	}
	return out
}

// dbTime normalizes timestamps so they compare and round-trip identically on
// every engine.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// RecordRun stores a report and the error the run ended with, if any.
func (s *Store) RecordRun(ctx context.Context, rep *model.Report, runErr error) error {
	if rep == nil || rep.RunID == "" {
		return errors.New("report has no run id")
	}
	counts := rep.Counts()
	run := &Run{
		ID:            rep.RunID,
		Source:        rep.Source,
		Status:        statusOf(rep, runErr),
		StartedAt:     dbTime(rep.StartedAt),
		FinishedAt:    dbTime(rep.FinishedAt),
		DryRun:        rep.DryRun,
		UpsertSkipped: rep.UpsertSkipped,
		Downloaded:    len(rep.Fetch.Downloaded),
		FetchDeleted:  len(rep.Fetch.Deleted),
		Created:       counts[model.ActionCreated],
		Updated:       counts[model.ActionUpdated],
		Untouched:     counts[model.ActionUntouched],
		Deleted:       counts[model.ActionDeleted],
		Skipped:       counts[model.ActionSkipped],
		Failed:        counts[model.ActionFailed],
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	records := make([]ActionRecord, 0, len(rep.Actions))
	for _, a := range rep.Actions {
		records = append(records, ActionRecord{
			RunID:        rep.RunID,
			Name:         a.Name,
			Kind:         string(a.Kind),
			Reason:       a.Reason,
			Error:        a.ErrText(),
			Fingerprints: strings.Join(a.Fingerprints, "\n"),
			RecordedAt:   dbTime(a.At),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(run).Exec(ctx); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
			return fmt.Errorf("insert actions: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", rep.RunID, err)
	}
	return nil
}

func statusOf(rep *model.Report, runErr error) string {
	switch {
	case runErr != nil:
		return StatusFailed
	case rep.Err() != nil:
		return StatusPartial
	default:
		return StatusOK
	}
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.NewSelect().Model(&runs).OrderExpr("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RunActions returns the actions of a run in the order they were taken.
func (s *Store) RunActions(ctx context.Context, runID string) ([]model.Action, error) {
	n, err := s.db.NewSelect().Model((*Run)(nil)).Where("id = ?", runID).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("look up run %s: %w", runID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	var records []ActionRecord
	if err := s.db.NewSelect().Model(&records).Where("run_id = ?", runID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list actions of run %s: %w", runID, err)
	}
	out := make([]model.Action, 0, len(records))
	for _, r := range records {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Prune deletes runs that started before cutoff together with their actions
// and returns the number of runs removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = dbTime(cutoff)
	var removed int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		old := tx.NewSelect().Model((*Run)(nil)).Column("id").Where("started_at < ?", cutoff)
		if _, err := tx.NewDelete().Model((*ActionRecord)(nil)).Where("run_id IN (?)", old).Exec(ctx); err != nil {
			return fmt.Errorf("delete actions: %w", err)
		}
		res, err := tx.NewDelete().Model((*Run)(nil)).Where("started_at < ?", cutoff).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete runs: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return removed, nil
}
