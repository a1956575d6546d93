// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"

	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
)

// Source connects to a location for every Sync and mirrors it into a local
// directory. Connection failures surface from Sync, wrapped in ErrFetch.
type Source struct {
	raw  string
	dir  string
	opts Options
}

// NewSource validates raw and returns a Source writing into dir.
func NewSource(raw, dir string, opts Options) (*Source, error) {
	if _, err := ParseLocation(raw); err != nil {
		return nil, err
	}
	return &Source{raw: raw, dir: dir, opts: opts}, nil
}

// Sync opens the bucket, mirrors it and closes it again.
func (s *Source) Sync(ctx context.Context) (model.FetchSummary, error) {
	b, err := Open(ctx, s.raw, s.opts)
	if err != nil {
		return model.FetchSummary{}, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logging.Warnf("closing %s: %v", s.raw, err)
		}
	}()
	return NewMirror(b, s.dir).Sync(ctx)
}

func (s *Source) String() string { return s.raw }
