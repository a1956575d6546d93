// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core runs one sync: lock, fetch, reconcile, record. Its
// collaborators are injected through the small interfaces in this file so
// the CLI, the daemon and the tests wire their own implementations.
package core

import (
	"context"

	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
)

// KeySource refreshes the local key directory from the remote location.
// fetch.Mirror and fetch.Source implement it.
type KeySource interface {
	Sync(ctx context.Context) (model.FetchSummary, error)
}

// Reconciler applies the key directory to the local accounts.
type Reconciler interface {
	Reconcile(ctx context.Context, opts reconcile.Options) (*model.Report, error)
}

// HistoryRecorder stores finished runs. history.Store implements it.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, rep *model.Report, runErr error) error
}
