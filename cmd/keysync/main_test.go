// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toeirei/keysync/buildvars"
	"github.com/toeirei/keysync/internal/account"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/lock"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/testutil"
)

// testEnv is an isolated keysync setup: no config files are found, the lock
// and key directory live in a temp dir and accounts are kept in memory.
type testEnv struct {
	dir    string
	source string
	keyDir string
	lock   string
	store  *testutil.MemoryStore
}

func newTestEnv(t *testing.T, managed ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Chdir(dir)

	e := &testEnv{
		dir:    dir,
		source: filepath.Join(dir, "source"),
		keyDir: filepath.Join(dir, "keys"),
		lock:   filepath.Join(dir, "keysync.lock"),
		store:  testutil.NewMemoryStore(managed...),
	}
	if err := os.MkdirAll(e.source, 0o755); err != nil {
		t.Fatal(err)
	}
	old := newAccountStore
	newAccountStore = func(config.Config) (account.Store, error) { return e.store, nil }
	t.Cleanup(func() { newAccountStore = old })
	return e
}

// args returns the flags pointing a run at the env.
func (e *testEnv) args(cmd string, extra ...string) []string {
	out := []string{cmd, "--lang", "en", "--key-dir", e.keyDir, "--lock-file", e.lock}
	if cmd == "sync" || cmd == "daemon" {
		out = append(out, "--source", "file://"+e.source)
	}
	return append(out, extra...)
}

func (e *testEnv) writeKeys(t *testing.T, files map[string]string) {
	t.Helper()
	testutil.WriteKeyDir(t, e.source, files)
}

// run executes the CLI and returns exit code, stdout and stderr.
func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := execute(context.Background(), args, &out, &errb)
	return code, out.String(), errb.String()
}

func decodeReport(t *testing.T, out string) model.Report {
	t.Helper()
	var rep model.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	return rep
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"sync", "reconcile", "daemon", "history", "config", "version"} {
		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %s to be registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	newTestEnv(t)
	old := buildvars.Version
	buildvars.Version = "v9.9.9"
	defer func() { buildvars.Version = old }()

	code, out, _ := run(t, "version")
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, "keysync v9.9.9") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestExitCodes_BadArguments(t *testing.T) {
	e := newTestEnv(t)
	cases := map[string][]string{
		"unknown flag":    e.args("sync", "--no-such-flag"),
		"unknown command": {"frobnicate"},
		"extra argument":  e.args("sync", "extra"),
		"bad policy":      e.args("sync", "--policy", "sometimes"),
		"bad output":      e.args("sync", "--output", "xml"),
		"bad source":      {"sync", "--lang", "en", "--key-dir", e.keyDir, "--lock-file", e.lock, "--source", "ftp://host/keys"},
		"bad log format":  e.args("reconcile", "--log-format", "xml"),
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if code, _, stderr := run(t, args...); code != exitUsage {
				t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitUsage, stderr)
			}
		})
	}
}

func TestSync_MissingSource(t *testing.T) {
	e := newTestEnv(t)
	code, _, stderr := run(t, "sync", "--lang", "en", "--key-dir", e.keyDir, "--lock-file", e.lock)
	if code != exitMissingArg {
		t.Fatalf("exit code = %d, want %d", code, exitMissingArg)
	}
	if !strings.Contains(stderr, "--source") {
		t.Fatalf("expected error to name --source, got %q", stderr)
	}
}

func TestSync_SourceFromEnvironment(t *testing.T) {
	e := newTestEnv(t)
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})
	t.Setenv("KEYSYNC_SOURCE", "file://"+e.source)

	code, _, stderr := run(t, "sync", "--lang", "en", "--key-dir", e.keyDir, "--lock-file", e.lock)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if !e.store.Has("alice") {
		t.Fatalf("alice was not created")
	}
}

func TestSync_CreatesUpdatesAndDeletes(t *testing.T) {
	e := newTestEnv(t, "carol", "dave")
	e.store.SetCredentials("dave", "old key\n")
	e.writeKeys(t, map[string]string{
		"alice.pub": testutil.ValidED25519Key + "\n",
		"dave.pub":  testutil.ValidRSAKey + "\n",
		"Bad.pub":   testutil.ValidED25519Key + "\n",
	})

	code, out, stderr := run(t, e.args("sync", "--output", "json")...)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	rep := decodeReport(t, out)
	if got := rep.Names(model.ActionCreated); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("created = %v, want [alice]", got)
	}
	if got := rep.Names(model.ActionUpdated); len(got) != 1 || got[0] != "dave" {
		t.Fatalf("updated = %v, want [dave]", got)
	}
	if got := rep.Names(model.ActionDeleted); len(got) != 1 || got[0] != "carol" {
		t.Fatalf("deleted = %v, want [carol]", got)
	}
	if got := rep.Names(model.ActionSkipped); len(got) != 1 || got[0] != "Bad" {
		t.Fatalf("skipped = %v, want [Bad]", got)
	}
	if rep.RunID == "" || rep.Source != "file://"+e.source {
		t.Fatalf("unexpected run metadata: %+v", rep)
	}
	if e.store.Credentials("alice") != testutil.ValidED25519Key+"\n" {
		t.Fatalf("alice credentials = %q", e.store.Credentials("alice"))
	}
	if e.store.Has("carol") {
		t.Fatalf("carol should have been deleted")
	}
}

func TestSync_UnchangedSourceSkipsUpsertUnlessForced(t *testing.T) {
	e := newTestEnv(t)
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})
	if code, _, stderr := run(t, e.args("sync")...); code != exitOK {
		t.Fatalf("first sync failed with %d: %s", code, stderr)
	}

	// Out-of-band change that only a forced pass repairs.
	e.store.SetCredentials("alice", "tampered\n")

	code, out, _ := run(t, e.args("sync", "-o", "json")...)
	if code != exitOK {
		t.Fatalf("second sync exit code = %d", code)
	}
	if rep := decodeReport(t, out); !rep.UpsertSkipped {
		t.Fatalf("expected the create/update pass to be skipped")
	}
	if e.store.Credentials("alice") != "tampered\n" {
		t.Fatalf("credentials changed without --force")
	}

	code, out, _ = run(t, e.args("sync", "-o", "json", "--force")...)
	if code != exitOK {
		t.Fatalf("forced sync exit code = %d", code)
	}
	if rep := decodeReport(t, out); rep.UpsertSkipped {
		t.Fatalf("forced sync skipped the create/update pass")
	}
	if e.store.Credentials("alice") != testutil.ValidED25519Key {
		t.Fatalf("forced sync did not repair credentials: %q", e.store.Credentials("alice"))
	}
}

func TestSync_KeyContentAppliedVerbatimByDefault(t *testing.T) {
	e := newTestEnv(t)
	e.writeKeys(t, map[string]string{"alice.pub": "not a key, still alice's file\n"})

	if code, _, stderr := run(t, e.args("sync")...); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if got := e.store.Credentials("alice"); got != "not a key, still alice's file\n" {
		t.Fatalf("alice credentials = %q", got)
	}

	// With validation on, the unparseable file is skipped.
	e2 := newTestEnv(t)
	e2.writeKeys(t, map[string]string{"bob.pub": "garbage\n"})
	code, out, _ := run(t, e2.args("sync", "--validate-keys", "-o", "json")...)
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if e2.store.Has("bob") {
		t.Fatal("bob must not be created from an unparseable key file")
	}
	rep := decodeReport(t, out)
	if names := rep.Names(model.ActionSkipped); len(names) != 1 || names[0] != "bob" {
		t.Fatalf("expected bob to be skipped, got %v", names)
	}
}

func TestSync_DryRunChangesNothing(t *testing.T) {
	e := newTestEnv(t, "carol")
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})

	code, out, _ := run(t, e.args("sync", "--dry-run", "-o", "json")...)
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	rep := decodeReport(t, out)
	if !rep.DryRun {
		t.Fatalf("report not marked as dry run")
	}
	if e.store.Has("alice") || !e.store.Has("carol") {
		t.Fatalf("dry run modified accounts: %v", e.store.Names())
	}
}

func TestSync_FetchFailure(t *testing.T) {
	e := newTestEnv(t, "carol")
	code, _, _ := run(t, "sync", "--lang", "en", "--key-dir", e.keyDir, "--lock-file", e.lock,
		"--source", "file://"+filepath.Join(e.dir, "missing"))
	if code != exitRunFailed {
		t.Fatalf("exit code = %d, want %d", code, exitRunFailed)
	}
	if !e.store.Has("carol") {
		t.Fatalf("accounts must not be touched when the fetch fails")
	}
}

func TestSync_FailurePolicies(t *testing.T) {
	for _, tc := range []struct {
		policy    string
		wantCode  int
		wantAlice bool
	}{
		{"abort", exitRunFailed, false},
		{"continue", exitPartial, true},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			e := newTestEnv(t)
			e.store.Fail["create:aaron"] = errors.New("useradd: exit status 9")
			e.writeKeys(t, map[string]string{
				"aaron.pub": testutil.ValidED25519Key,
				"alice.pub": testutil.ValidED25519Key,
			})
			code, _, stderr := run(t, e.args("sync", "--policy", tc.policy)...)
			if code != tc.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr %q)", code, tc.wantCode, stderr)
			}
			if !strings.Contains(stderr, "aaron") {
				t.Fatalf("expected the failing principal in the error, got %q", stderr)
			}
			if e.store.Has("alice") != tc.wantAlice {
				t.Fatalf("alice created = %t, want %t", e.store.Has("alice"), tc.wantAlice)
			}
		})
	}
}

func TestSync_LockBusy(t *testing.T) {
	e := newTestEnv(t)
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})
	l, err := lock.Acquire(e.lock)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer l.Release()

	code, out, _ := run(t, e.args("sync")...)
	if code != exitRunFailed {
		t.Fatalf("exit code = %d, want %d", code, exitRunFailed)
	}
	if out != "" {
		t.Fatalf("no report expected while locked, got %q", out)
	}
	if e.store.Has("alice") {
		t.Fatalf("locked run must not change accounts")
	}
}

func TestSync_ExcludeFlag(t *testing.T) {
	e := newTestEnv(t, "ops")
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})

	code, _, _ := run(t, e.args("sync", "--exclude", "root,ops")...)
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !e.store.Has("ops") {
		t.Fatalf("excluded account was deleted")
	}
}

func TestSync_TextReport(t *testing.T) {
	e := newTestEnv(t)
	e.writeKeys(t, map[string]string{"alice.pub": testutil.ValidED25519Key})

	code, out, _ := run(t, e.args("sync")...)
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"alice", "created", "1 created"} {
		if !strings.Contains(out, want) {
			t.Fatalf("text report misses %q:\n%s", want, out)
		}
	}
}

func TestReconcile_UsesKeyDirWithoutSource(t *testing.T) {
	e := newTestEnv(t, "carol")
	testutil.WriteKeyDir(t, e.keyDir, map[string]string{"alice.pub": testutil.ValidED25519Key})

	code, out, stderr := run(t, e.args("reconcile", "-o", "json")...)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	rep := decodeReport(t, out)
	if rep.Source != "" {
		t.Fatalf("reconcile must not fetch, got source %q", rep.Source)
	}
	if !e.store.Has("alice") || e.store.Has("carol") {
		t.Fatalf("unexpected accounts after reconcile: %v", e.store.Names())
	}
}
