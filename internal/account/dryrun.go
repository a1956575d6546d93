// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package account

import (
	"context"

	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
)

// DryRun wraps a Store so reads pass through and writes are only logged.
func DryRun(inner Store) Store {
	return &dryRunStore{inner: inner, created: make(map[string]bool)}
}

type dryRunStore struct {
	inner   Store
	created map[string]bool
}

func (d *dryRunStore) ListAccounts(ctx context.Context) ([]model.Principal, error) {
	return d.inner.ListAccounts(ctx)
}

func (d *dryRunStore) LookupAccount(ctx context.Context, name string) (model.Principal, error) {
	if d.created[name] {
		return model.Principal{Name: name, Exists: true, Managed: true}, nil
	}
	return d.inner.LookupAccount(ctx, name)
}

func (d *dryRunStore) CreateAccount(ctx context.Context, name string) error {
	d.created[name] = true
	logging.Infof("dry-run: would create account %s", name)
	return nil
}

func (d *dryRunStore) DeleteAccount(ctx context.Context, name string) error {
	logging.Infof("dry-run: would delete account %s", name)
	return nil
}

func (d *dryRunStore) ReadCredentials(ctx context.Context, name string) ([]byte, error) {
	if d.created[name] {
		return nil, nil
	}
	return d.inner.ReadCredentials(ctx, name)
}

func (d *dryRunStore) WriteCredentials(ctx context.Context, name string, content []byte) error {
	logging.Infof("dry-run: would write %d bytes of authorized keys for %s", len(content), name)
	return nil
}
