// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-lint checks that every message ID passed to i18n.T exists in the
// English catalog, that the other catalogs carry the same IDs, and reports
// IDs nobody uses. Run it from the repository root:
//
//	go run ./tools/i18n-lint
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

// dynamicPrefixes are IDs built at runtime, e.g. "action." + kind.
var dynamicPrefixes = []string{"action."}

var (
	reT       = regexp.MustCompile(`i18n\.T\("([^"]+)"`)
	reDynamic = regexp.MustCompile(`i18n\.T\("([a-z_.]+\.)"\s*\+`)
)

var pluralForms = map[string]bool{"zero": true, "one": true, "two": true, "few": true, "many": true, "other": true}

// result is the outcome of one lint pass.
type result struct {
	// Undefined IDs are used in code but missing from the primary catalog.
	Undefined []string
	// Missing maps a secondary catalog to the primary IDs it lacks.
	Missing map[string][]string
	// Orphaned IDs are defined in the primary catalog but never used.
	Orphaned []string
}

func (r result) failed() bool {
	return len(r.Undefined) > 0 || len(r.Missing) > 0
}

func main() {
	res, err := lint(".", localesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-lint: %v\n", err)
		os.Exit(2)
	}
	res.print(os.Stdout)
	if res.failed() {
		os.Exit(1)
	}
}

func lint(root, locales string) (result, error) {
	res := result{Missing: map[string][]string{}}

	used, prefixes, err := findUsedKeys(root)
	if err != nil {
		return res, fmt.Errorf("scan sources: %w", err)
	}
	primary, err := loadKeys(filepath.Join(locales, primaryLocale))
	if err != nil {
		return res, fmt.Errorf("load %s: %w", primaryLocale, err)
	}

	for id := range used {
		if !primary[id] {
			res.Undefined = append(res.Undefined, id)
		}
	}
	for id := range primary {
		if !used[id] && !hasAnyPrefix(id, prefixes) {
			res.Orphaned = append(res.Orphaned, id)
		}
	}

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return res, err
	}
	for _, f := range files {
		if filepath.Base(f) == primaryLocale {
			continue
		}
		keys, err := loadKeys(f)
		if err != nil {
			return res, fmt.Errorf("load %s: %w", f, err)
		}
		var missing []string
		for id := range primary {
			if !keys[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			res.Missing[filepath.Base(f)] = missing
		}
	}
	sort.Strings(res.Undefined)
	sort.Strings(res.Orphaned)
	return res, nil
}

// findUsedKeys returns the literal IDs passed to i18n.T in non-test Go files
// below root, and the prefixes of IDs that are concatenated at runtime.
func findUsedKeys(root string) (map[string]bool, []string, error) {
	used := map[string]bool{}
	prefixes := append([]string(nil), dynamicPrefixes...)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || name == "_examples" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range reDynamic.FindAllStringSubmatch(string(content), -1) {
			prefixes = append(prefixes, m[1])
		}
		for _, m := range reT.FindAllStringSubmatch(string(content), -1) {
			if !strings.HasSuffix(m[1], ".") {
				used[m[1]] = true
			}
		}
		return nil
	})
	return used, prefixes, err
}

// loadKeys reads the message IDs of a catalog. Plural maps count as one ID.
func loadKeys(path string) (map[string]bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := map[string]bool{}
	flatten("", data, keys)
	return keys, nil
}

func flatten(prefix string, node any, keys map[string]bool) {
	m, ok := node.(map[string]any)
	if !ok || isPlural(m) {
		if prefix != "" {
			keys[prefix] = true
		}
		return
	}
	for k, v := range m {
		id := k
		if prefix != "" {
			id = prefix + "." + k
		}
		flatten(id, v, keys)
	}
}

func isPlural(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !pluralForms[k] {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (r result) print(w io.Writer) {
	section := func(title string, items []string) {
		fmt.Fprintf(w, "--- %s ---\n", title)
		if len(items) == 0 {
			fmt.Fprintln(w, "  none")
		}
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}
	section("Used but undefined in "+primaryLocale, r.Undefined)
	var files []string
	for f := range r.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	if len(files) == 0 {
		section("Missing translations", nil)
	}
	for _, f := range files {
		section("Missing in "+f, r.Missing[f])
	}
	section("Defined but unused", r.Orphaned)
}
