// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/toeirei/keysync/internal/model"
)

// MemoryStore is an in-memory account store used by tests to avoid touching
// the host account database.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Principal
	// unmanaged accounts exist but are not returned by ListAccounts.
	unmanaged map[string]bool
	nextUID   int

	// Fail maps "op:name" (e.g. "create:bob") to an error returned by that call.
	Fail map[string]error
	// Calls records every mutating call as "op:name".
	Calls []string
}

// NewMemoryStore returns a store pre-populated with the given managed accounts.
func NewMemoryStore(names ...string) *MemoryStore {
	s := &MemoryStore{
		accounts:  make(map[string]*model.Principal),
		unmanaged: make(map[string]bool),
		nextUID:   1000,
		Fail:      make(map[string]error),
	}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *MemoryStore) add(name string) *model.Principal {
	s.nextUID++
	p := &model.Principal{Name: name, UID: s.nextUID, GID: s.nextUID, Home: "/home/" + name, Exists: true, Managed: true}
	s.accounts[name] = p
	return p
}

// AddUnmanaged adds an account that exists but is outside the managed set.
func (s *MemoryStore) AddUnmanaged(name string, uid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.add(name)
	p.UID = uid
	p.Managed = false
	s.unmanaged[name] = true
}

// SetCredentials seeds the credential content of an existing account.
func (s *MemoryStore) SetCredentials(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.accounts[name]; ok {
		p.CredentialContent = []byte(content)
	}
}

// SetUID changes the uid of an existing account.
func (s *MemoryStore) SetUID(name string, uid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.accounts[name]; ok {
		p.UID = uid
	}
}

// Has reports whether an account exists.
func (s *MemoryStore) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[name]
	return ok
}

// Credentials returns the stored credential content of an account.
func (s *MemoryStore) Credentials(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.accounts[name]; ok {
		return string(p.CredentialContent)
	}
	return ""
}

// Names returns all account names, managed or not, sorted.
func (s *MemoryStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ResetCalls clears the recorded calls.
func (s *MemoryStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

func (s *MemoryStore) record(op, name string) error {
	key := op + ":" + name
	s.Calls = append(s.Calls, key)
	if err, ok := s.Fail[key]; ok {
		return err
	}
	return nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.Fail["list:"]; ok {
		return nil, err
	}
	var out []model.Principal
	for name, p := range s.accounts {
		if s.unmanaged[name] {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) LookupAccount(ctx context.Context, name string) (model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.Fail["lookup:"+name]; ok {
		return model.Principal{}, err
	}
	p, ok := s.accounts[name]
	if !ok {
		return model.Principal{Name: name}, nil
	}
	return *p, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create", name); err != nil {
		return err
	}
	if _, ok := s.accounts[name]; ok {
		return fmt.Errorf("useradd: user '%s' already exists", name)
	}
	s.add(name)
	return nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete", name); err != nil {
		return err
	}
	if _, ok := s.accounts[name]; !ok {
		return fmt.Errorf("userdel: user '%s' does not exist", name)
	}
	delete(s.accounts, name)
	delete(s.unmanaged, name)
	return nil
}

func (s *MemoryStore) ReadCredentials(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.Fail["read:"+name]; ok {
		return nil, err
	}
	p, ok := s.accounts[name]
	if !ok {
		return nil, fmt.Errorf("no such account %q", name)
	}
	return append([]byte(nil), p.CredentialContent...), nil
}

func (s *MemoryStore) WriteCredentials(ctx context.Context, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("write", name); err != nil {
		return err
	}
	p, ok := s.accounts[name]
	if !ok {
		return fmt.Errorf("no such account %q", name)
	}
	p.CredentialContent = append([]byte(nil), content...)
	return nil
}
