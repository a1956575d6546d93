// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPrincipalString(t *testing.T) {
	p := Principal{Name: "alice", UID: 1001}
	if got := p.String(); got != "alice (uid 1001)" {
		t.Errorf("unexpected Principal.String(): %q", got)
	}
}

func TestFetchSummaryChanged(t *testing.T) {
	if (FetchSummary{}).Changed() {
		t.Fatal("empty summary must not report a change")
	}
	if !(FetchSummary{Deleted: []string{"bob.pub"}}).Changed() {
		t.Fatal("a deletion is a change")
	}
	if !(FetchSummary{Downloaded: []string{"alice.pub"}}).Changed() {
		t.Fatal("a download is a change")
	}
}

func TestReportNamesAndCounts(t *testing.T) {
	r := &Report{}
	r.Add(Action{Name: "carol", Kind: ActionDeleted})
	r.Add(Action{Name: "bob", Kind: ActionCreated})
	r.Add(Action{Name: "alice", Kind: ActionCreated})
	r.Add(Action{Name: "Bob", Kind: ActionSkipped, Reason: "invalid principal name"})

	if diff := cmp.Diff([]string{"alice", "bob"}, r.Names(ActionCreated)); diff != "" {
		t.Errorf("created names mismatch (-want +got):\n%s", diff)
	}
	if got := r.Changes(); got != 3 {
		t.Errorf("Changes() = %d, want 3", got)
	}
	if got := r.Counts()[ActionSkipped]; got != 1 {
		t.Errorf("skipped count = %d, want 1", got)
	}
}

func TestReportErr(t *testing.T) {
	r := &Report{}
	r.Add(Action{Name: "alice", Kind: ActionCreated})
	if err := r.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	boom := errors.New("useradd failed")
	r.Add(Action{Name: "bob", Kind: ActionFailed, Err: boom})
	if err := r.Err(); !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap %v, got %v", boom, err)
	}
}

func TestActionMarshalJSONIncludesError(t *testing.T) {
	a := Action{Name: "bob", Kind: ActionFailed, Err: errors.New("useradd: exit status 9")}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "useradd: exit status 9" || got["name"] != "bob" || got["kind"] != "failed" {
		t.Fatalf("unexpected encoding: %s", data)
	}

	ok, _ := json.Marshal(Action{Name: "alice", Kind: ActionCreated})
	if strings.Contains(string(ok), `"error"`) {
		t.Errorf("error key present without an error: %s", ok)
	}
}
