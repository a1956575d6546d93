// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/keysync/internal/lock"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
)

// historyTimeout bounds the history write, which runs after the run context
// may already have expired.
const historyTimeout = 30 * time.Second

// Deps are the collaborators of a run.
type Deps struct {
	// Source is optional; without it the key directory is reconciled as is.
	Source KeySource
	// SourceName is recorded in the report, e.g. "s3://keys/prod/".
	SourceName string
	Reconciler Reconciler
	// History is optional.
	History HistoryRecorder
	// LockFile is the run lock path; empty disables locking.
	LockFile string
	// MarkerFile is written after a pass without failures and removed when
	// a run starts. The create/update pass is only skipped for an unchanged
	// fetch while the marker exists. Empty never skips it.
	MarkerFile string

	NewRunID func() string
	Clock    func() time.Time
}

// Options tune a run.
type Options struct {
	// Force runs the create/update pass even when the fetch changed nothing
	// since the last complete pass.
	Force bool
	// DryRun is recorded in the report. The account store passed to the
	// reconciler is responsible for not applying changes.
	DryRun bool
	// RunTimeout bounds the fetch and reconcile steps when positive.
	RunTimeout time.Duration
}

// RunSync performs one complete run. A busy lock returns lock.ErrLocked with
// a nil report. A fetch failure returns a report without actions together
// with an error wrapping fetch.ErrFetch; reconciliation is not attempted.
// History failures are logged and never change the result.
func RunSync(ctx context.Context, deps Deps, opts Options) (*model.Report, error) {
	if deps.Reconciler == nil {
		return nil, errors.New("core: reconciler is required")
	}
	newRunID := deps.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	if deps.LockFile != "" {
		l, err := lock.Acquire(deps.LockFile)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := l.Release(); err != nil {
				logging.Warnf("%v", err)
			}
		}()
	}

	runID := newRunID()
	started := clock()
	logging.Infof("run %s started (source %s, dry-run %t)", runID, orNone(deps.SourceName), opts.DryRun)

	runCtx := ctx
	if opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.RunTimeout)
		defer cancel()
	}

	// A crash mid-run must not leave the previous marker behind.
	complete := markerExists(deps.MarkerFile)
	if !clearMarker(deps.MarkerFile) {
		complete = false
	}

	rep, err := run(runCtx, deps, opts, complete)
	if rep == nil {
		rep = &model.Report{StartedAt: started, FinishedAt: clock()}
	}
	rep.RunID = runID
	rep.Source = deps.SourceName
	rep.DryRun = opts.DryRun
	rep.StartedAt = started
	if rep.FinishedAt.IsZero() {
		rep.FinishedAt = clock()
	}
	if errors.Is(err, context.DeadlineExceeded) && opts.RunTimeout > 0 {
		err = fmt.Errorf("run exceeded %s: %w", opts.RunTimeout, err)
	}
	if err == nil && rep.Err() == nil && !opts.DryRun {
		writeMarker(deps.MarkerFile, runID, rep.FinishedAt)
	}

	if deps.History != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		if herr := deps.History.RecordRun(hctx, rep, err); herr != nil {
			logging.Warnf("failed to record run %s in history: %v", runID, herr)
		}
		cancel()
	}

	counts := rep.Counts()
	if err != nil {
		logging.Errorf("run %s failed: %v", runID, err)
	} else {
		logging.Infof("run %s finished: %d created, %d updated, %d deleted, %d skipped, %d failed",
			runID, counts[model.ActionCreated], counts[model.ActionUpdated], counts[model.ActionDeleted],
			counts[model.ActionSkipped], counts[model.ActionFailed])
	}
	return rep, err
}

// run fetches and reconciles. complete tells whether the previous pass
// applied every key file.
func run(ctx context.Context, deps Deps, opts Options, complete bool) (*model.Report, error) {
	var summary model.FetchSummary
	fetched := false
	if deps.Source != nil {
		var err error
		summary, err = deps.Source.Sync(ctx)
		if err != nil {
			return &model.Report{Fetch: summary}, err
		}
		fetched = true
		logging.Infof("fetch: %d downloaded, %d removed", len(summary.Downloaded), len(summary.Deleted))
	}

	unchanged := fetched && !summary.Changed() && !opts.Force
	if unchanged && !complete {
		logging.Infof("previous pass did not complete, running the create/update pass")
	}
	rep, err := deps.Reconciler.Reconcile(ctx, reconcile.Options{SkipUpsert: unchanged && complete})
	if rep != nil {
		rep.Fetch = summary
	}
	return rep, err
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
