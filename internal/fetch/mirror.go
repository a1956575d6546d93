// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package fetch mirrors public-key files from a remote location into the local
// key directory before reconciliation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
)

// ErrFetch marks every failure of the fetch step.
var ErrFetch = errors.New("fetch failed")

const keySuffix = ".pub"

// Bucket is a flat listing of objects under a remote prefix. Names are
// relative to the prefix.
type Bucket interface {
	List(ctx context.Context) ([]model.RemoteObject, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Close() error
}

// Mirror keeps a local directory in step with the *.pub objects of a bucket.
type Mirror struct {
	bucket Bucket
	dir    string
}

// NewMirror returns a Mirror that writes into dir.
func NewMirror(bucket Bucket, dir string) *Mirror {
	return &Mirror{bucket: bucket, dir: dir}
}

// Sync downloads new or changed key files and removes local key files that no
// longer exist remotely. Files without the .pub suffix are left alone.
func (m *Mirror) Sync(ctx context.Context) (model.FetchSummary, error) {
	var summary model.FetchSummary

	objects, err := m.bucket.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: list remote keys: %w", ErrFetch, err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return summary, fmt.Errorf("%w: create key directory: %w", ErrFetch, err)
	}

	remote := make(map[string]bool, len(objects))
	for _, obj := range objects {
		if !isKeyName(obj.Name) {
			continue
		}
		remote[obj.Name] = true
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		stale, err := m.stale(obj)
		if err != nil {
			return summary, err
		}
		if !stale {
			continue
		}
		if err := m.download(ctx, obj); err != nil {
			return summary, err
		}
		logging.Infof("downloaded %s (%d bytes)", obj.Name, obj.Size)
		summary.Downloaded = append(summary.Downloaded, obj.Name)
	}

	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		return summary, fmt.Errorf("%w: read key directory: %w", ErrFetch, err)
	}
	for _, d := range dirents {
		name := d.Name()
		if !d.Type().IsRegular() || !isKeyName(name) || remote[name] {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			return summary, fmt.Errorf("%w: remove %s: %w", ErrFetch, name, err)
		}
		logging.Infof("removed %s, no longer present remotely", name)
		summary.Deleted = append(summary.Deleted, name)
	}

	sort.Strings(summary.Downloaded)
	sort.Strings(summary.Deleted)
	return summary, nil
}

// stale reports whether the local copy is missing, differs in size or is
// older than the remote object. Times are compared at second granularity.
func (m *Mirror) stale(obj model.RemoteObject) (bool, error) {
	fi, err := os.Stat(filepath.Join(m.dir, obj.Name))
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrFetch, obj.Name, err)
	}
	if fi.Size() != obj.Size {
		return true, nil
	}
	return obj.ModTime.Truncate(time.Second).After(fi.ModTime().Truncate(time.Second)), nil
}

func (m *Mirror) download(ctx context.Context, obj model.RemoteObject) error {
	rc, err := m.bucket.Open(ctx, obj.Name)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrFetch, obj.Name, err)
	}
	defer func() { _ = rc.Close() }()

	finalPath := filepath.Join(m.dir, obj.Name)
	tmpPath := filepath.Join(m.dir, "."+obj.Name+".download")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFetch, tmpPath, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: download %s: %w", ErrFetch, obj.Name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %w", ErrFetch, tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %w", ErrFetch, obj.Name, err)
	}
	if !obj.ModTime.IsZero() {
		if err := os.Chtimes(finalPath, obj.ModTime, obj.ModTime); err != nil {
			return fmt.Errorf("%w: set mtime of %s: %w", ErrFetch, obj.Name, err)
		}
	}
	return nil
}

// isKeyName accepts visible *.pub names without a path component.
func isKeyName(name string) bool {
	return strings.HasSuffix(name, keySuffix) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`)
}
