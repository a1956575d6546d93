// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package account manages local OS accounts and their authorized_keys files.
// Accounts are created and removed with the shadow-utils commands; the
// passwd and group databases are read directly.
package account

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/toeirei/keysync/internal/model"
)

// Store is the set of account operations keysync needs from a host.
type Store interface {
	ListAccounts(ctx context.Context) ([]model.Principal, error)
	LookupAccount(ctx context.Context, name string) (model.Principal, error)
	CreateAccount(ctx context.Context, name string) error
	DeleteAccount(ctx context.Context, name string) error
	ReadCredentials(ctx context.Context, name string) ([]byte, error)
	WriteCredentials(ctx context.Context, name string, content []byte) error
}

// Defaults for Options.
const (
	DefaultShell          = "/bin/bash"
	DefaultManagedGroup   = "keysync"
	DefaultPasswdFile     = "/etc/passwd"
	DefaultGroupFile      = "/etc/group"
	DefaultAuthorizedKeys = ".ssh/authorized_keys"
)

// Options configures an OSStore.
type Options struct {
	// Shell is the login shell of created accounts.
	Shell string
	// ManagedGroup marks accounts owned by keysync. Created accounts join it
	// and only its members are listed for deletion.
	ManagedGroup string
	// Groups are additional supplementary groups for created accounts.
	Groups []string
	// AuthorizedKeys is the credential file path relative to the home directory.
	AuthorizedKeys string

	PasswdFile string
	GroupFile  string
	Runner     Runner
}

// OSStore is a Store backed by the host account database.
type OSStore struct {
	opts Options
	run  Runner
}

// NewOSStore fills in defaults and returns an OSStore.
func NewOSStore(opts Options) (*OSStore, error) {
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	if opts.ManagedGroup == "" {
		opts.ManagedGroup = DefaultManagedGroup
	}
	if opts.AuthorizedKeys == "" {
		opts.AuthorizedKeys = DefaultAuthorizedKeys
	}
	if filepath.IsAbs(opts.AuthorizedKeys) || strings.Contains(opts.AuthorizedKeys, "..") {
		return nil, fmt.Errorf("authorized keys path %q must be relative to the home directory", opts.AuthorizedKeys)
	}
	if opts.PasswdFile == "" {
		opts.PasswdFile = DefaultPasswdFile
	}
	if opts.GroupFile == "" {
		opts.GroupFile = DefaultGroupFile
	}
	run := opts.Runner
	if run == nil {
		run = ExecRunner{}
	}
	return &OSStore{opts: opts, run: run}, nil
}

// ListAccounts returns the members of the managed group, primary or
// supplementary, sorted by name. A missing group yields no accounts.
func (s *OSStore) ListAccounts(ctx context.Context) ([]model.Principal, error) {
	users, err := readPasswd(s.opts.PasswdFile)
	if err != nil {
		return nil, err
	}
	group, err := s.managedGroup()
	if err != nil || group == nil {
		return nil, err
	}

	var out []model.Principal
	for _, u := range users {
		if group.has(u) {
			p := principalFrom(u)
			p.Managed = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LookupAccount returns the named account from the passwd database. Managed
// is set when the account belongs to the managed group.
func (s *OSStore) LookupAccount(ctx context.Context, name string) (model.Principal, error) {
	users, err := readPasswd(s.opts.PasswdFile)
	if err != nil {
		return model.Principal{}, err
	}
	for _, u := range users {
		if u.Name != name {
			continue
		}
		group, err := s.managedGroup()
		if err != nil {
			return model.Principal{}, err
		}
		p := principalFrom(u)
		p.Managed = group.has(u)
		return p, nil
	}
	return model.Principal{Name: name}, nil
}

// CreateAccount runs useradd with a home directory, the configured shell and
// the managed group plus extra groups. The managed group is created first
// when it does not exist yet.
func (s *OSStore) CreateAccount(ctx context.Context, name string) error {
	group, err := s.managedGroup()
	if err != nil {
		return err
	}
	if group == nil {
		if err := s.run.Run(ctx, "groupadd", s.opts.ManagedGroup); err != nil {
			return fmt.Errorf("create managed group: %w", err)
		}
	}
	groups := append([]string{s.opts.ManagedGroup}, s.opts.Groups...)
	return s.run.Run(ctx, "useradd",
		"--create-home",
		"--shell", s.opts.Shell,
		"--groups", strings.Join(groups, ","),
		name)
}

// DeleteAccount removes the account and its home directory.
func (s *OSStore) DeleteAccount(ctx context.Context, name string) error {
	return s.run.Run(ctx, "userdel", "--remove", name)
}

// ReadCredentials returns the authorized_keys content or nil when the file
// does not exist.
func (s *OSStore) ReadCredentials(ctx context.Context, name string) ([]byte, error) {
	p, err := s.mustLookup(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(p.Home, s.opts.AuthorizedKeys))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read authorized keys of %s: %w", name, err)
	}
	return data, nil
}

// WriteCredentials replaces the authorized_keys file of an account. The
// directory is 0700 and the file 0600, both owned by the account. The file is
// written next to its final path and renamed into place.
func (s *OSStore) WriteCredentials(ctx context.Context, name string, content []byte) error {
	p, err := s.mustLookup(ctx, name)
	if err != nil {
		return err
	}
	finalPath := filepath.Join(p.Home, s.opts.AuthorizedKeys)
	dir := filepath.Dir(finalPath)

	if fi, err := os.Lstat(dir); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to write through symlinked %s", dir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("chmod %s: %w", dir, err)
	}
	if err := os.Chown(dir, p.UID, p.GID); err != nil {
		return fmt.Errorf("chown %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".authorized_keys.keysync.*")
	if err != nil {
		return fmt.Errorf("create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := os.Chown(tmpPath, p.UID, p.GID); err != nil {
		cleanup()
		return fmt.Errorf("chown %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", finalPath, err)
	}
	return nil
}

func (s *OSStore) mustLookup(ctx context.Context, name string) (model.Principal, error) {
	p, err := s.LookupAccount(ctx, name)
	if err != nil {
		return p, err
	}
	if !p.Exists {
		return p, fmt.Errorf("account %q does not exist", name)
	}
	if p.Home == "" || !filepath.IsAbs(p.Home) {
		return p, fmt.Errorf("account %q has no usable home directory (%q)", name, p.Home)
	}
	return p, nil
}

func (s *OSStore) managedGroup() (*groupEntry, error) {
	groups, err := readGroup(s.opts.GroupFile)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == s.opts.ManagedGroup {
			return &groups[i], nil
		}
	}
	return nil, nil
}

func principalFrom(u passwdEntry) model.Principal {
	return model.Principal{Name: u.Name, UID: u.UID, GID: u.GID, Home: u.Home, Exists: true}
}
