// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds in-memory fakes and fixtures shared by tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteKeyDir writes each file name -> content pair into dir.
func WriteKeyDir(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// FixedClock returns a clock function that always reports ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
