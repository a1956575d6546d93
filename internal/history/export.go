// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Dump is the document written by Export.
type Dump struct {
	ExportedAt time.Time      `json:"exported_at"`
	Runs       []Run          `json:"runs"`
	Actions    []ActionRecord `json:"actions"`
}

// Export writes every run and action as zstd-compressed JSON.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	dump := Dump{ExportedAt: time.Now().UTC()}
	if err := s.db.NewSelect().Model(&dump.Runs).OrderExpr("started_at ASC, id ASC").Scan(ctx); err != nil {
		return fmt.Errorf("read runs: %w", err)
	}
	if err := s.db.NewSelect().Model(&dump.Actions).OrderExpr("id ASC").Scan(ctx); err != nil {
		return fmt.Errorf("read actions: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode history: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	return nil
}
