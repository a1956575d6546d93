// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey parses authorized_keys content synced from object storage.
package sshkey

import (
	"bytes"
	"errors"

	"golang.org/x/crypto/ssh"
)

// ErrNoKeys is returned when content holds no parseable public key.
var ErrNoKeys = errors.New("no valid public key found")

// Key is one parsed authorized_keys entry.
type Key struct {
	Algorithm   string
	Comment     string
	Options     []string
	Fingerprint string
}

// ParseAuthorizedKeys returns every valid key line in content. Blank lines,
// comments and lines that do not parse are ignored, matching how sshd reads
// the file.
func ParseAuthorizedKeys(content []byte) ([]Key, error) {
	var keys []Key
	rest := bytes.TrimSpace(content)
	for len(rest) > 0 {
		pk, comment, options, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			// ParseAuthorizedKey only fails once no further key is found.
			break
		}
		keys = append(keys, Key{
			Algorithm:   pk.Type(),
			Comment:     comment,
			Options:     options,
			Fingerprint: ssh.FingerprintSHA256(pk),
		})
		rest = next
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return keys, nil
}

// Fingerprints returns the SHA256 fingerprints of the keys in content, or nil
// when it holds none.
func Fingerprints(content []byte) []string {
	keys, err := ParseAuthorizedKeys(content)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Fingerprint)
	}
	return out
}
