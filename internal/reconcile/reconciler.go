// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package reconcile brings local accounts in line with a directory of key
// files. Every valid <name>.pub gets an account whose authorized_keys equals
// the file; managed accounts without a key file are deleted. Existing accounts
// outside the managed set are never touched.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/toeirei/keysync/internal/keyfile"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/sshkey"
)

// Skip reasons recorded on skipped actions.
const (
	ReasonExcluded       = "excluded"
	ReasonInvalidContent = "invalid key content"
	ReasonUnmanaged      = "unmanaged account"
)

// AccountStore is the host account database as seen by the reconciler.
type AccountStore interface {
	// ListAccounts returns the accounts eligible for management.
	ListAccounts(ctx context.Context) ([]model.Principal, error)
	// LookupAccount returns the account or a Principal with Exists=false.
	LookupAccount(ctx context.Context, name string) (model.Principal, error)
	CreateAccount(ctx context.Context, name string) error
	DeleteAccount(ctx context.Context, name string) error
	// ReadCredentials returns the authorized_keys content, nil when absent.
	ReadCredentials(ctx context.Context, name string) ([]byte, error)
	WriteCredentials(ctx context.Context, name string, content []byte) error
}

// Policy decides what happens after a principal fails.
type Policy string

const (
	// PolicyAbort stops the run at the first failing principal.
	PolicyAbort Policy = "abort"
	// PolicyContinue records the failure and handles the remaining principals.
	PolicyContinue Policy = "continue"
)

// ParsePolicy parses "abort" or "continue". An empty string means abort.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicyContinue:
		return PolicyContinue, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want abort or continue)", s)
	}
}

// MinUID returns an eligibility predicate that only allows deleting accounts
// whose uid is at least min.
func MinUID(min int) func(model.Principal) bool {
	return func(p model.Principal) bool { return p.UID >= min }
}

// Config configures a Reconciler.
type Config struct {
	// KeyDir is the directory the fetch step keeps in sync.
	KeyDir string
	// Exclude lists account names that are never created, updated or deleted.
	Exclude []string
	// Eligible, when set, must return true before an existing account is
	// updated or deleted.
	Eligible func(model.Principal) bool
	Policy   Policy
	// ValidateKeys skips key files that contain no parseable public key.
	ValidateKeys bool
	Clock        func() time.Time
	Logger       *clog.Logger
}

// Options tune a single pass.
type Options struct {
	// SkipUpsert skips the create/update pass. The deletion pass always runs.
	SkipUpsert bool
}

// Reconciler applies key files to an AccountStore.
type Reconciler struct {
	cfg     Config
	store   AccountStore
	exclude map[string]bool
	log     *clog.Logger
}

// New validates cfg and returns a Reconciler.
func New(cfg Config, store AccountStore) (*Reconciler, error) {
	if cfg.KeyDir == "" {
		return nil, errors.New("reconcile: key directory is required")
	}
	if store == nil {
		return nil, errors.New("reconcile: account store is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAbort
	}
	if cfg.Policy != PolicyAbort && cfg.Policy != PolicyContinue {
		return nil, fmt.Errorf("reconcile: unknown failure policy %q", cfg.Policy)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L
	}
	exclude := make(map[string]bool, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		exclude[name] = true
	}
	return &Reconciler{
		cfg:     cfg,
		store:   store,
		exclude: exclude,
		log:     logger.With("component", "reconcile"),
	}, nil
}

// Reconcile runs one pass and returns its report. The returned error is set
// for failures that end the run: an unreadable key directory, a failed account
// listing, a cancelled context, or the first principal failure under
// PolicyAbort. Under PolicyContinue per-principal failures are only in the
// report; see model.Report.Err.
func (r *Reconciler) Reconcile(ctx context.Context, opts Options) (*model.Report, error) {
	report := &model.Report{StartedAt: r.cfg.Clock(), UpsertSkipped: opts.SkipUpsert}
	err := r.run(ctx, opts, report)
	report.FinishedAt = r.cfg.Clock()
	return report, err
}

func (r *Reconciler) run(ctx context.Context, opts Options, report *model.Report) error {
	entries, err := keyfile.Scan(r.cfg.KeyDir)
	if err != nil {
		return err
	}

	// Names with a valid key file are protected from deletion, even when the
	// file content is rejected below.
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Valid() {
			present[e.Name] = true
		}
	}

	if opts.SkipUpsert {
		r.log.Debug("key directory unchanged, skipping create/update pass")
	} else {
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.upsert(ctx, e, report); err != nil && r.cfg.Policy == PolicyAbort {
				return err
			}
		}
	}

	return r.prune(ctx, present, report)
}

func (r *Reconciler) upsert(ctx context.Context, e keyfile.Entry, report *model.Report) error {
	if !e.Valid() {
		r.skip(report, e.Name, ErrInvalidPrincipalName.Error())
		return nil
	}
	if r.exclude[e.Name] {
		r.skip(report, e.Name, ReasonExcluded)
		return nil
	}
	if e.Unusable != "" {
		r.skip(report, e.Name, e.Unusable)
		return nil
	}

	kf, err := e.Load()
	if err != nil {
		return r.fail(report, &PrincipalError{Name: e.Name, Op: "read key file", Err: err})
	}

	fingerprints := sshkey.Fingerprints(kf.Content)
	if r.cfg.ValidateKeys && len(fingerprints) == 0 {
		r.skip(report, e.Name, ReasonInvalidContent)
		return nil
	}

	p, err := r.store.LookupAccount(ctx, e.Name)
	if err != nil {
		return r.fail(report, storeError(e.Name, "lookup", err))
	}
	if p.Exists && !r.manageable(p) {
		r.skip(report, e.Name, ReasonUnmanaged)
		return nil
	}

	if !p.Exists {
		if err := r.store.CreateAccount(ctx, e.Name); err != nil {
			return r.fail(report, storeError(e.Name, "create", err))
		}
		if err := r.store.WriteCredentials(ctx, e.Name, kf.Content); err != nil {
			return r.fail(report, storeError(e.Name, "write credentials", err))
		}
		r.record(report, model.Action{Name: e.Name, Kind: model.ActionCreated, Fingerprints: fingerprints})
		return nil
	}

	current, err := r.store.ReadCredentials(ctx, e.Name)
	if err != nil {
		return r.fail(report, storeError(e.Name, "read credentials", err))
	}
	if bytes.Equal(current, kf.Content) {
		r.record(report, model.Action{Name: e.Name, Kind: model.ActionUntouched})
		return nil
	}
	if err := r.store.WriteCredentials(ctx, e.Name, kf.Content); err != nil {
		return r.fail(report, storeError(e.Name, "write credentials", err))
	}
	r.record(report, model.Action{Name: e.Name, Kind: model.ActionUpdated, Fingerprints: fingerprints})
	return nil
}

func (r *Reconciler) prune(ctx context.Context, present map[string]bool, report *model.Report) error {
	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w: %w", ErrAccountStore, err)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })

	for _, p := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.exclude[p.Name] || present[p.Name] {
			continue
		}
		if !r.manageable(p) {
			r.log.Debug("account not eligible for deletion", "principal", p.Name, "uid", p.UID)
			continue
		}
		if err := r.store.DeleteAccount(ctx, p.Name); err != nil {
			if ferr := r.fail(report, storeError(p.Name, "delete", err)); r.cfg.Policy == PolicyAbort {
				return ferr
			}
			continue
		}
		r.record(report, model.Action{Name: p.Name, Kind: model.ActionDeleted})
	}
	return nil
}

// manageable reports whether an existing account may be changed: it must be
// in the managed set and pass the eligibility predicate.
func (r *Reconciler) manageable(p model.Principal) bool {
	if !p.Managed {
		return false
	}
	return r.cfg.Eligible == nil || r.cfg.Eligible(p)
}

func (r *Reconciler) record(report *model.Report, a model.Action) {
	a.At = r.cfg.Clock()
	report.Add(a)
	if a.Kind == model.ActionUntouched {
		r.log.Debug("untouched", "principal", a.Name)
		return
	}
	if len(a.Fingerprints) > 0 {
		r.log.Info(string(a.Kind), "principal", a.Name, "keys", strings.Join(a.Fingerprints, ","))
		return
	}
	r.log.Info(string(a.Kind), "principal", a.Name)
}

func (r *Reconciler) skip(report *model.Report, name, reason string) {
	report.Add(model.Action{Name: name, Kind: model.ActionSkipped, Reason: reason, At: r.cfg.Clock()})
	r.log.Warn("skipped", "principal", name, "reason", reason)
}

func (r *Reconciler) fail(report *model.Report, err *PrincipalError) error {
	report.Add(model.Action{Name: err.Name, Kind: model.ActionFailed, Reason: err.Op, Err: err, At: r.cfg.Clock()})
	r.log.Error("failed", "principal", err.Name, "op", err.Op, "err", err.Err)
	return err
}
