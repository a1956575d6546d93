// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/toeirei/keysync/internal/logging"
)

// MarkerName is the file written into the key directory after a pass that
// applied every key file without failures.
const MarkerName = ".keysync-complete"

// markerExists reports whether the marker at path is present. An empty path
// never has a marker.
func markerExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// clearMarker removes the marker. It reports false when a marker may still be
// on disk.
func clearMarker(path string) bool {
	if path == "" {
		return true
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warnf("failed to clear completion marker: %v", err)
		return false
	}
	return true
}

// writeMarker records that run runID completed. Errors are only logged.
func writeMarker(path, runID string, at time.Time) {
	if path == "" {
		return
	}
	content := fmt.Sprintf("%s %s\n", runID, at.UTC().Format(time.RFC3339))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		logging.Warnf("failed to write completion marker: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logging.Warnf("failed to write completion marker: %v", err)
	}
}
