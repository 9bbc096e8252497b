// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// keyPrefix namespaces file keys inside the database.
const keyPrefix = "mv/file:"

// Store is a storage.Backend over a DB.
//
// Write and Edit run inside a single read-write transaction, so a
// concurrent writer to the same path surfaces as a conflict instead of a
// lost update.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *DB
}

var _ storage.Backend = (*Store)(nil)

// NewStore returns a Store over db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func fileKey(path string) []byte {
	return []byte(keyPrefix + path)
}

// Download returns the content at path, or storage.ErrNotFound.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	var content []byte
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(path))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.BackendError{Op: "download", Path: path, Err: err}
	}
	return content, nil
}

// Write creates path. Fails with storage.ErrAlreadyExists if present.
func (s *Store) Write(ctx context.Context, path string, content []byte) (storage.FilesUpdate, error) {
	err := s.db.Update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(fileKey(path))
		if err == nil {
			return storage.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(fileKey(path), content)
	})
	return nil, classify("write", path, err)
}

// Edit replaces the single occurrence of oldContent with newContent.
func (s *Store) Edit(ctx context.Context, path string, oldContent, newContent []byte) (storage.FilesUpdate, error) {
	err := s.db.Update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		edited, err := storage.ApplyEdit(current, oldContent, newContent)
		if err != nil {
			return err
		}
		return txn.Set(fileKey(path), edited)
	})
	return nil, classify("edit", path, err)
}

// classify passes storage sentinels through and wraps everything else.
func classify(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, storage.ErrEditConflict):
		return err
	case errors.Is(err, badger.ErrConflict):
		return &storage.BackendError{Op: op, Path: path, Err: errors.Join(storage.ErrEditConflict, err)}
	default:
		return &storage.BackendError{Op: op, Path: path, Err: err}
	}
}
