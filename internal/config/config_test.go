// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	cfg "github.com/toeirei/keysync/internal/config"
)

// isolate points the user config dir and the working directory at empty
// temp dirs so no real keysync.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	t.Setenv("HOME", tmp)
	wd, _ := os.Getwd()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(cfg.Default(), got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	// Key files are applied byte for byte unless validation is asked for.
	if got.ValidateKeys {
		t.Fatal("validate_keys must default to false")
	}
}

func TestLoadConfig_FileEnvFlagPrecedence(t *testing.T) {
	tmp := isolate(t)
	dir := filepath.Join(tmp, "xdg", "keysync")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := strings.Join([]string{
		"source: s3://file-bucket/keys",
		"policy: continue",
		"run_timeout: 2m",
		"exclude: [root, admin]",
		"account:",
		"  groups: [users, docker]",
		"history:",
		"  enabled: true",
		"  type: postgres",
		"  dsn: postgres://keysync@db/keysync",
		"language: de",
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "keysync.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KEYSYNC_POLICY", "abort")
	t.Setenv("KEYSYNC_HISTORY_TYPE", "mysql")

	cmd := &cobra.Command{}
	cmd.Flags().String("source", "", "")
	cmd.Flags().String("lang", "", "")
	if err := cmd.Flags().Set("source", "sftp://deploy@keys/srv/keys"); err != nil {
		t.Fatal(err)
	}

	got, err := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Source != "sftp://deploy@keys/srv/keys" {
		t.Errorf("flag should win, got source %q", got.Source)
	}
	if got.Policy != "abort" {
		t.Errorf("env should beat file, got policy %q", got.Policy)
	}
	if got.History.Type != "mysql" || got.History.DSN != "postgres://keysync@db/keysync" || !got.History.Enabled {
		t.Errorf("unexpected history config: %+v", got.History)
	}
	if got.RunTimeout != 2*time.Minute {
		t.Errorf("run_timeout = %s", got.RunTimeout)
	}
	if diff := cmp.Diff([]string{"root", "admin"}, got.Exclude); diff != "" {
		t.Errorf("exclude mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"users", "docker"}, got.Account.Groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	// Unchanged --lang must not hide the file value.
	if got.Language != "de" {
		t.Errorf("language = %q, want de", got.Language)
	}
	if got.CommandTimeout != 30*time.Second {
		t.Errorf("default command_timeout lost: %s", got.CommandTimeout)
	}
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	tmp := isolate(t)
	path := filepath.Join(tmp, "custom.yaml")
	if err := os.WriteFile(path, []byte("key_dir: /srv/keys\nmin_uid: 2000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.KeyDir != "/srv/keys" || got.MinUID != 2000 {
		t.Errorf("explicit file not applied: %+v", got)
	}

	missing := filepath.Join(tmp, "absent.yaml")
	if _, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &missing); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	tmp := isolate(t)
	path := filepath.Join(tmp, "bad.yaml")
	if err := os.WriteFile(path, []byte("source: \"unterminated\nkey_dir: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_LocalFileInWorkingDir(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("keysync.yaml", []byte("source: file:///srv/drop\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Source != "file:///srv/drop" {
		t.Errorf("source = %q", got.Source)
	}
	if cfg.ConfigFileUsed("") == "" {
		t.Error("ConfigFileUsed did not find ./keysync.yaml")
	}
}

func TestWriteConfigFile_RoundTrip(t *testing.T) {
	tmp := isolate(t)
	c := cfg.Default()
	c.Source = "s3://keys/prod"
	c.History.Enabled = true

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	if want := filepath.Join(tmp, "xdg", "keysync", "keysync.yaml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", fi.Mode().Perm())
	}

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(c, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	c := cfg.Default()
	c.Policy = "retry"
	c.MinUID = -1
	c.History.Enabled = true
	c.History.Type = "oracle"
	c.History.DSN = ""
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"retry", "min_uid", "history.type", "history.dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestGetConfigPath_System(t *testing.T) {
	p, err := cfg.GetConfigPath(true)
	if err != nil {
		t.Fatal(err)
	}
	if p != "/etc/keysync/keysync.yaml" {
		t.Errorf("system path = %q", p)
	}
}
