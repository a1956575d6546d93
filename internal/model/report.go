// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ActionKind names what happened to a principal during a run.
type ActionKind string

const (
	ActionCreated   ActionKind = "created"
	ActionUpdated   ActionKind = "updated"
	ActionUntouched ActionKind = "untouched"
	ActionDeleted   ActionKind = "deleted"
	ActionSkipped   ActionKind = "skipped"
	ActionFailed    ActionKind = "failed"
)

// Action is the outcome for a single principal.
type Action struct {
	Name         string     `json:"name"`
	Kind         ActionKind `json:"kind"`
	Reason       string     `json:"reason,omitempty"`
	Err          error      `json:"-"`
	Fingerprints []string   `json:"fingerprints,omitempty"`
	At           time.Time  `json:"at"`
}

// ErrText returns the error text or an empty string.
func (a Action) ErrText() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// MarshalJSON adds the error text to the encoded action.
func (a Action) MarshalJSON() ([]byte, error) {
	type plain Action
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(a), Error: a.ErrText()})
}

// Report collects the actions of one sync or reconcile run.
type Report struct {
	RunID         string       `json:"run_id"`
	Source        string       `json:"source,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Fetch         FetchSummary `json:"fetch"`
	UpsertSkipped bool         `json:"upsert_skipped"`
	DryRun        bool         `json:"dry_run"`
	Actions       []Action     `json:"actions"`
}

// Add appends an action to the report.
func (r *Report) Add(a Action) {
	r.Actions = append(r.Actions, a)
}

// Names returns the sorted principal names recorded with the given kind.
func (r *Report) Names(kind ActionKind) []string {
	var names []string
	for _, a := range r.Actions {
		if a.Kind == kind {
			names = append(names, a.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Counts returns the number of actions per kind.
func (r *Report) Counts() map[ActionKind]int {
	counts := make(map[ActionKind]int)
	for _, a := range r.Actions {
		counts[a.Kind]++
	}
	return counts
}

// Changes returns the number of created, updated and deleted principals.
func (r *Report) Changes() int {
	c := r.Counts()
	return c[ActionCreated] + c[ActionUpdated] + c[ActionDeleted]
}

// Err joins the errors of all failed actions. It is nil when nothing failed.
func (r *Report) Err() error {
	var errs []error
	for _, a := range r.Actions {
		if a.Kind == ActionFailed && a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errors.Join(errs...)
}
