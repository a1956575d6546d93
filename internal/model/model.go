// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the plain data types shared by the keysync packages.
package model

import (
	"fmt"
	"time"
)

// KeyFile is a single synced public-key file named after its principal.
type KeyFile struct {
	PrincipalName string
	Content       []byte
	SourcePath    string
}

// Principal is a local OS account as reported by an account store.
type Principal struct {
	Name string
	UID  int
	GID  int
	Home string
	// Exists is false for zero values returned by failed lookups.
	Exists bool
	// Managed is true for members of the managed group. Only managed accounts
	// are updated or deleted.
	Managed bool
	// CredentialContent holds the authorized_keys content when it was read.
	CredentialContent []byte
}

// String returns the name with its uid, e.g. "alice (uid 1001)".
func (p Principal) String() string {
	return fmt.Sprintf("%s (uid %d)", p.Name, p.UID)
}

// FetchSummary describes what a fetch step changed in the key directory.
type FetchSummary struct {
	Downloaded []string `json:"downloaded,omitempty"`
	Deleted    []string `json:"deleted,omitempty"`
}

// Changed reports whether the fetch downloaded or deleted any file.
func (f FetchSummary) Changed() bool {
	return len(f.Downloaded) > 0 || len(f.Deleted) > 0
}

// RemoteObject is an object listed by a key source.
type RemoteObject struct {
	Name    string
	Size    int64
	ModTime time.Time
}
