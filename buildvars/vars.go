// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

import "fmt"

// Set at link time, e.g.
// -ldflags "-X github.com/toeirei/keysync/buildvars.Version=v1.2.0".
// They are empty for local builds.
var (
	Version string
	Commit  string
	Date    string
)

// VersionOrDefault returns Version if set, otherwise def.
func VersionOrDefault(def string) string {
	if len(Version) > 0 {
		return Version
	}
	return def
}

// Describe returns the version line printed by `keysync version`.
func Describe() string {
	s := VersionOrDefault("dev")
	if Commit != "" {
		s += fmt.Sprintf(" (commit %s", Commit)
		if Date != "" {
			s += ", built " + Date
		}
		s += ")"
	}
	return s
}
