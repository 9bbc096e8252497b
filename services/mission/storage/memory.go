// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore is a durable-scope Backend held in process memory. It
// outlives conversations but not the process.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (m *MemoryStore) Download(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(content), nil
}

func (m *MemoryStore) Write(_ context.Context, path string, content []byte) (FilesUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return nil, ErrAlreadyExists
	}
	m.files[path] = bytes.Clone(content)
	return nil, nil
}

func (m *MemoryStore) Edit(_ context.Context, path string, oldContent, newContent []byte) (FilesUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	edited, err := ApplyEdit(current, oldContent, newContent)
	if err != nil {
		return nil, err
	}
	m.files[path] = edited
	return nil, nil
}
