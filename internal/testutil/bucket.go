// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/toeirei/keysync/internal/model"
)

type memObject struct {
	data    []byte
	modTime time.Time
}

// MemoryBucket is an in-memory key source with the method set of fetch.Bucket.
type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string]memObject

	// ListErr and OpenErr, when set, are returned by List and Open.
	ListErr error
	OpenErr error
	// Opened records every object name passed to Open.
	Opened []string
	Closed bool
}

// NewMemoryBucket returns an empty bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: make(map[string]memObject)}
}

// Put stores an object.
func (b *MemoryBucket) Put(name, content string, modTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = memObject{data: []byte(content), modTime: modTime}
}

// Remove deletes an object.
func (b *MemoryBucket) Remove(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
}

func (b *MemoryBucket) List(ctx context.Context) ([]model.RemoteObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	out := make([]model.RemoteObject, 0, len(b.objects))
	for name, o := range b.objects {
		out = append(out, model.RemoteObject{Name: name, Size: int64(len(o.data)), ModTime: o.modTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *MemoryBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Opened = append(b.Opened, name)
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	o, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (b *MemoryBucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}
