// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package i18n translates the messages keysync prints for humans. Log lines
// stay in English.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/toeirei/keysync/internal/logging"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// localeFS embeds the YAML translation files.
//
//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	current   string
)

// Init loads the embedded catalogs and selects lang. An empty lang is taken
// from the environment.
func Init(lang string) {
	if lang == "" {
		lang = DetectLang()
	}
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			logging.Warnf("i18n: read %s: %v", f.Name(), err)
			continue
		}
		if _, err := b.ParseMessageFileBytes(data, f.Name()); err != nil {
			logging.Warnf("i18n: parse %s: %v", f.Name(), err)
		}
	}

	mu.Lock()
	bundle = b
	localizer = i18n.NewLocalizer(b, lang)
	current = lang
	mu.Unlock()
}

// SetLang changes the active language.
func SetLang(lang string) {
	Init(lang)
}

// Lang returns the active language tag.
func Lang() string {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Languages lists the tags that have a catalog.
func Languages() []string {
	ensure()
	mu.RLock()
	defer mu.RUnlock()
	var out []string
	for _, tag := range bundle.LanguageTags() {
		out = append(out, tag.String())
	}
	return out
}

// T translates a message by its ID. The optional data map fills template
// fields such as {{.Count}}; an int "Count" entry also selects the plural
// form. Unknown IDs are returned unchanged.
func T(messageID string, data ...map[string]any) string {
	ensure()
	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
		if n, ok := data[0]["Count"].(int); ok {
			cfg.PluralCount = n
		}
	}
	mu.RLock()
	l := localizer
	mu.RUnlock()
	msg, err := l.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}

// DetectLang derives a language tag from LC_ALL, LC_MESSAGES or LANG, e.g.
// "de_DE.UTF-8" becomes "de-DE". It falls back to English.
func DetectLang() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
		if err != nil {
			continue
		}
		return tag.String()
	}
	return language.English.String()
}

func ensure() {
	mu.RLock()
	ready := localizer != nil
	mu.RUnlock()
	if !ready {
		Init("")
	}
}
