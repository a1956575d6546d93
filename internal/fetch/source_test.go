// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/toeirei/keysync/internal/testutil"
)

func TestNewSource_InvalidLocation(t *testing.T) {
	if _, err := NewSource("ftp://example.com/keys", t.TempDir(), Options{}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestSource_SyncReconnectsEachTime(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	testutil.WriteKeyDir(t, src, map[string]string{"alice.pub": testutil.ValidED25519Key})

	s, err := NewSource("file://"+src, dst, Options{})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if s.String() != "file://"+src {
		t.Fatalf("unexpected String(): %s", s)
	}

	sum, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice.pub"}, sum.Downloaded); diff != "" {
		t.Fatalf("downloaded mismatch (-want +got):\n%s", diff)
	}

	if err := os.Remove(filepath.Join(src, "alice.pub")); err != nil {
		t.Fatal(err)
	}
	sum, err = s.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice.pub"}, sum.Deleted); diff != "" {
		t.Fatalf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestSource_ConnectFailureIsFetchError(t *testing.T) {
	s, err := NewSource("file:///nonexistent/keysync/source", t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if _, err := s.Sync(context.Background()); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
