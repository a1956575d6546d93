// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestMirrorSync_DownloadsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteKeyDir(t, dir, map[string]string{
		"gone.pub":   "old",
		"README.txt": "not a key",
	})

	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	b.Put("Bob.pub", "B", t0)
	b.Put("notes.md", "ignored", t0)
	b.Put(".hidden.pub", "ignored", t0)

	sum, err := NewMirror(b, dir).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	want := model.FetchSummary{Downloaded: []string{"Bob.pub", "alice.pub"}, Deleted: []string{"gone.pub"}}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if got := readFile(t, filepath.Join(dir, "alice.pub")); got != "A" {
		t.Errorf("alice.pub = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "README.txt")); got != "not a key" {
		t.Errorf("non-key file was touched: %q", got)
	}
	fi, err := os.Stat(filepath.Join(dir, "alice.pub"))
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(t0) {
		t.Errorf("mtime = %v, want %v", fi.ModTime(), t0)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.md")); !os.IsNotExist(err) {
		t.Error("non-key object was downloaded")
	}
	if _, err := os.Stat(filepath.Join(dir, ".alice.pub.download")); !os.IsNotExist(err) {
		t.Error("temporary download file left behind")
	}
}

func TestMirrorSync_SecondRunIsNoop(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	m := NewMirror(b, dir)

	if _, err := m.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Opened = nil
	sum, err := m.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Changed() {
		t.Fatalf("second sync changed something: %+v", sum)
	}
	if len(b.Opened) != 0 {
		t.Fatalf("unchanged object was downloaded again: %v", b.Opened)
	}
}

func TestMirrorSync_RefreshesOnSizeOrNewerMtime(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	b.Put("carol.pub", "C", t0)
	m := NewMirror(b, dir)
	if _, err := m.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.Put("alice.pub", "A2", t0)               // size differs
	b.Put("carol.pub", "D", t0.Add(time.Hour)) // same size, newer
	sum, err := m.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alice.pub", "carol.pub"}, sum.Downloaded); diff != "" {
		t.Fatalf("downloaded mismatch (-want +got):\n%s", diff)
	}
	if got := readFile(t, filepath.Join(dir, "carol.pub")); got != "D" {
		t.Errorf("carol.pub = %q, want D", got)
	}
}

func TestMirrorSync_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	if _, err := NewMirror(b, dir).Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "alice.pub")); got != "A" {
		t.Errorf("alice.pub = %q", got)
	}
}

func TestMirrorSync_ListErrorWrapsErrFetch(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteKeyDir(t, dir, map[string]string{"alice.pub": "A"})
	b := testutil.NewMemoryBucket()
	b.ListErr = errors.New("access denied")

	_, err := NewMirror(b, dir).Sync(context.Background())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("cause missing from %v", err)
	}
	// Local files must survive a failed listing.
	if got := readFile(t, filepath.Join(dir, "alice.pub")); got != "A" {
		t.Errorf("alice.pub = %q", got)
	}
}

func TestMirrorSync_OpenErrorWrapsErrFetch(t *testing.T) {
	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	b.OpenErr = errors.New("connection reset")
	_, err := NewMirror(b, t.TempDir()).Sync(context.Background())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestMirrorSync_CancelledContext(t *testing.T) {
	b := testutil.NewMemoryBucket()
	b.Put("alice.pub", "A", t0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMirror(b, t.TempDir()).Sync(ctx)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrFetch) {
		t.Fatalf("expected cancelled fetch error, got %v", err)
	}
}

func TestOpen_FileBucket(t *testing.T) {
	src := t.TempDir()
	testutil.WriteKeyDir(t, src, map[string]string{"alice.pub": "A", "bob.pub": "B"})
	if err := os.Mkdir(filepath.Join(src, "sub.pub"), 0o755); err != nil {
		t.Fatal(err)
	}

	b, err := Open(context.Background(), "file://"+src, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = b.Close() }()

	dst := t.TempDir()
	sum, err := NewMirror(b, dst).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice.pub", "bob.pub"}, sum.Downloaded); diff != "" {
		t.Fatalf("downloaded mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), "file:///nonexistent/keysync/keys", Options{})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
