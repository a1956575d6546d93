// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads keysync settings from keysync.yaml, KEYSYNC_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = "keysync"
	envPrefix  = "keysync"
)

// FlagKeys maps command-line flag names to configuration keys when the two
// differ. Other flags bind under their own name.
var FlagKeys = map[string]string{
	"lang":            "language",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"key-dir":         "key_dir",
	"lock-file":       "lock_file",
	"schedule":        "daemon.schedule",
	"validate-keys":   "validate_keys",
	"min-uid":         "min_uid",
	"command-timeout": "command_timeout",
	"run-timeout":     "run_timeout",
}

// GetConfigPath returns the user or system configuration file path.
func GetConfigPath(system bool) (string, error) {
	if system {
		return filepath.Join("/etc", configName, configName+".yaml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, configName, configName+".yaml"), nil
}

// LoadConfig builds a T from defaults, the first keysync.yaml found (or
// configFile when given), the environment and the flags of cmd. A missing
// keysync.yaml is not an error; a missing explicit configFile is.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cmd != nil {
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := f.Name
		if mapped, ok := FlagKeys[f.Name]; ok {
			key = mapped
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// ConfigFileUsed returns the configuration file LoadConfig would read, or an
// empty string when none exists.
func ConfigFileUsed(configFile string) string {
	if configFile != "" {
		return configFile
	}
	var candidates []string
	if p, err := GetConfigPath(false); err == nil {
		candidates = append(candidates, p)
	}
	if p, err := GetConfigPath(true); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, configName+".yaml")
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// WriteConfigFile writes c as YAML to the user or system path and returns
// the path. The file is 0600 since DSNs may carry passwords.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigTo(c, path)
}

// WriteConfigTo writes c as YAML to path.
func WriteConfigTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
