// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package buildvars

import "testing"

func TestDescribe(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	defer func() { Version, Commit, Date = oldV, oldC, oldD }()

	cases := []struct {
		version, commit, date, want string
	}{
		{"", "", "", "dev"},
		{"v1.2.0", "", "", "v1.2.0"},
		{"v1.2.0", "abc123", "", "v1.2.0 (commit abc123)"},
		{"v1.2.0", "abc123", "2026-01-02", "v1.2.0 (commit abc123, built 2026-01-02)"},
	}
	for _, tc := range cases {
		Version, Commit, Date = tc.version, tc.commit, tc.date
		if got := Describe(); got != tc.want {
			t.Fatalf("Describe() = %q, want %q", got, tc.want)
		}
	}
}
