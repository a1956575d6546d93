// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/toeirei/keysync/internal/reconcile"
)

// Config is the keysync configuration file.
type Config struct {
	// Source is the key location, e.g. s3://bucket/prefix.
	Source   string `mapstructure:"source" yaml:"source"`
	KeyDir   string `mapstructure:"key_dir" yaml:"key_dir"`
	LockFile string `mapstructure:"lock_file" yaml:"lock_file"`
	// Exclude lists accounts keysync never touches.
	Exclude      []string `mapstructure:"exclude" yaml:"exclude"`
	Policy       string   `mapstructure:"policy" yaml:"policy"`
	MinUID       int      `mapstructure:"min_uid" yaml:"min_uid"`
	ValidateKeys bool     `mapstructure:"validate_keys" yaml:"validate_keys"`

	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Language       string        `mapstructure:"language" yaml:"language"`

	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	SFTP    SFTPConfig    `mapstructure:"sftp" yaml:"sftp"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Daemon  DaemonConfig  `mapstructure:"daemon" yaml:"daemon"`
}

type AccountConfig struct {
	Shell          string   `mapstructure:"shell" yaml:"shell"`
	ManagedGroup   string   `mapstructure:"managed_group" yaml:"managed_group"`
	Groups         []string `mapstructure:"groups" yaml:"groups"`
	AuthorizedKeys string   `mapstructure:"authorized_keys" yaml:"authorized_keys"`
	PasswdFile     string   `mapstructure:"passwd_file" yaml:"passwd_file"`
	GroupFile      string   `mapstructure:"group_file" yaml:"group_file"`
}

// StorageConfig configures the S3 client. Credentials come from the
// standard AWS environment variables, shared credentials file or instance
// role.
type StorageConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Region   string `mapstructure:"region" yaml:"region"`
	UseSSL   bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type SFTPConfig struct {
	IdentityFile string `mapstructure:"identity_file" yaml:"identity_file"`
	KnownHosts   string `mapstructure:"known_hosts" yaml:"known_hosts"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Type    string `mapstructure:"type" yaml:"type"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	// Retention is how long `history maintain` keeps runs; zero keeps all.
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DaemonConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"source":                  "",
		"key_dir":                 "/var/lib/keysync/keys",
		"lock_file":               "/run/keysync.lock",
		"exclude":                 []string{"root"},
		"policy":                  string(reconcile.PolicyAbort),
		"min_uid":                 1000,
		"validate_keys":           false,
		"command_timeout":         "30s",
		"run_timeout":             "10m",
		"language":                "",
		"account.shell":           "/bin/bash",
		"account.managed_group":   "keysync",
		"account.groups":          []string{},
		"account.authorized_keys": ".ssh/authorized_keys",
		"account.passwd_file":     "/etc/passwd",
		"account.group_file":      "/etc/group",
		"storage.endpoint":        "s3.amazonaws.com",
		"storage.region":          "",
		"storage.use_ssl":         true,
		"sftp.identity_file":      "",
		"sftp.known_hosts":        "",
		"history.enabled":         false,
		"history.type":            "sqlite",
		"history.dsn":             "/var/lib/keysync/history.db",
		"history.retention":       "2160h",
		"log.level":               "info",
		"log.format":              "text",
		"daemon.schedule":         "@every 15m",
	}
}

// Default returns a Config holding the defaults, as written by `config init`.
func Default() Config {
	return Config{
		KeyDir:         "/var/lib/keysync/keys",
		LockFile:       "/run/keysync.lock",
		Exclude:        []string{"root"},
		Policy:         string(reconcile.PolicyAbort),
		MinUID:         1000,
		CommandTimeout: 30 * time.Second,
		RunTimeout:     10 * time.Minute,
		Account: AccountConfig{
			Shell:          "/bin/bash",
			ManagedGroup:   "keysync",
			Groups:         []string{},
			AuthorizedKeys: ".ssh/authorized_keys",
			PasswdFile:     "/etc/passwd",
			GroupFile:      "/etc/group",
		},
		Storage: StorageConfig{Endpoint: "s3.amazonaws.com", UseSSL: true},
		History: HistoryConfig{Type: "sqlite", DSN: "/var/lib/keysync/history.db", Retention: 90 * 24 * time.Hour},
		Log:     LogConfig{Level: "info", Format: "text"},
		Daemon:  DaemonConfig{Schedule: "@every 15m"},
	}
}

// Validate checks values that cannot be expressed by types alone.
func (c Config) Validate() error {
	var errs []error
	if _, err := reconcile.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.KeyDir == "" {
		errs = append(errs, errors.New("key_dir must not be empty"))
	}
	if c.MinUID < 0 {
		errs = append(errs, fmt.Errorf("min_uid must not be negative, got %d", c.MinUID))
	}
	if c.CommandTimeout < 0 || c.RunTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.History.Enabled {
		switch c.History.Type {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Errorf("history.type must be sqlite, postgres or mysql, got %q", c.History.Type))
		}
		if c.History.DSN == "" {
			errs = append(errs, errors.New("history.dsn must be set when history is enabled"))
		}
	}
	return errors.Join(errs...)
}
