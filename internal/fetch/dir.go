// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/toeirei/keysync/internal/model"
)

// dirBucket serves a local directory, e.g. an NFS-mounted key drop.
type dirBucket struct {
	dir string
}

func newDirBucket(dir string) (*dirBucket, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &dirBucket{dir: dir}, nil
}

func (b *dirBucket) List(ctx context.Context) ([]model.RemoteObject, error) {
	dirents, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var out []model.RemoteObject
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		fi, err := d.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, model.RemoteObject{Name: d.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *dirBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(b.dir, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *dirBucket) Close() error { return nil }
