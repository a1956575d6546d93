// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keyfile enumerates the synced key directory. Each principal owns one
// file named <name>.pub.
package keyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
)

// Suffix is the extension every key file carries.
const Suffix = ".pub"

// ReasonNotRegular is set on entries that are symlinks, directories or other
// non-regular files.
const ReasonNotRegular = "not a regular file"

var namePattern = regexp.MustCompile(`^[a-z][-a-z0-9.]*$`)

// ValidName reports whether name is an acceptable principal name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Entry is a key file found in the directory. Content is loaded on demand.
type Entry struct {
	FileName string
	Name     string
	Path     string
	// Unusable holds the reason the file cannot be applied, empty when it can.
	Unusable string
}

// Valid reports whether the entry's principal name passes validation.
func (e Entry) Valid() bool {
	return ValidName(e.Name)
}

// Load reads the file and returns it as a KeyFile.
func (e Entry) Load() (model.KeyFile, error) {
	if e.Unusable != "" {
		return model.KeyFile{}, fmt.Errorf("read key file %s: %s", e.Path, e.Unusable)
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return model.KeyFile{}, fmt.Errorf("read key file %s: %w", e.Path, err)
	}
	return model.KeyFile{PrincipalName: e.Name, Content: data, SourcePath: e.Path}, nil
}

// Scan lists the *.pub files in dir sorted by file name. Hidden files and
// in-flight downloads are ignored. Entries that are not regular files are
// returned with Unusable set so callers can report them.
func Scan(dir string) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read key directory %s: %w", dir, err)
	}
	var out []Entry
	for _, d := range dirents {
		name := d.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Suffix) {
			continue
		}
		e := Entry{
			FileName: name,
			Name:     strings.TrimSuffix(name, Suffix),
			Path:     filepath.Join(dir, name),
		}
		if !d.Type().IsRegular() {
			logging.Debugf("key file %s is not a regular file (%s)", name, d.Type())
			e.Unusable = ReasonNotRegular
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}
