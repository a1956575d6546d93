// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquire_SecondAttemptIsBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "keysync.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	// flock locks belong to the open file description, so a second open in
	// the same process conflicts just like another process would.
	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	defer func() { _ = l2.Release() }()
	if l2.Path() != path {
		t.Errorf("Path() = %q", l2.Path())
	}
}

func TestAcquire_WritesPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keysync.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Release() }()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file content = %q", data)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	l, err := Acquire(filepath.Join(t.TempDir(), "keysync.lock"))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release failed: %v", err)
	}
}
