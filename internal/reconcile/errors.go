// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPrincipalName marks key files whose name fails validation.
	// It is recorded as a skip reason and never fails a run.
	ErrInvalidPrincipalName = errors.New("invalid principal name")

	// ErrAccountStore marks failures of the account store (create, delete,
	// read or write of credentials, listing).
	ErrAccountStore = errors.New("account store failure")
)

// PrincipalError is the failure of a single principal's handling.
type PrincipalError struct {
	Name string
	Op   string
	Err  error
}

func (e *PrincipalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *PrincipalError) Unwrap() error { return e.Err }

// storeError wraps an account store failure for one principal.
func storeError(name, op string, err error) *PrincipalError {
	return &PrincipalError{Name: name, Op: op, Err: fmt.Errorf("%w: %w", ErrAccountStore, err)}
}
