// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package account

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type passwdEntry struct {
	Name  string
	UID   int
	GID   int
	Home  string
	Shell string
}

type groupEntry struct {
	Name    string
	GID     int
	Members []string
}

// has reports whether u is a primary or supplementary member. A nil group
// has no members.
func (g *groupEntry) has(u passwdEntry) bool {
	if g == nil {
		return false
	}
	if u.GID == g.GID {
		return true
	}
	for _, m := range g.Members {
		if m == u.Name {
			return true
		}
	}
	return false
}

// readPasswd parses a passwd(5) file. Malformed lines are skipped.
func readPasswd(path string) ([]passwdEntry, error) {
	var out []passwdEntry
	err := scanColonFile(path, 7, func(f []string) {
		uid, err1 := strconv.Atoi(f[2])
		gid, err2 := strconv.Atoi(f[3])
		if err1 != nil || err2 != nil {
			return
		}
		out = append(out, passwdEntry{Name: f[0], UID: uid, GID: gid, Home: f[5], Shell: f[6]})
	})
	return out, err
}

// readGroup parses a group(5) file. Malformed lines are skipped.
func readGroup(path string) ([]groupEntry, error) {
	var out []groupEntry
	err := scanColonFile(path, 4, func(f []string) {
		gid, err := strconv.Atoi(f[2])
		if err != nil {
			return
		}
		var members []string
		for _, m := range strings.Split(f[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		out = append(out, groupEntry{Name: f[0], GID: gid, Members: members})
	})
	return out, err
}

func scanColonFile(path string, fields int, fn func([]string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != fields {
			continue
		}
		fn(parts)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
