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
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

func openInMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestOpenRequiresPath verifies a persistent database needs a path.
func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

// TestStore_Lifecycle verifies the Backend contract end to end.
func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openInMemory(t))
	path := "/memories/users/u1/missions/m1/knowledge_graph/citation_ledger.json"

	_, err := s.Download(ctx, path)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	update, err := s.Write(ctx, path, []byte(`{"sources":[]}`))
	require.NoError(t, err)
	assert.Nil(t, update)

	_, err = s.Write(ctx, path, []byte("again"))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = s.Edit(ctx, path, []byte(`{"sources":[]}`), []byte(`{"sources":[1]}`))
	require.NoError(t, err)

	got, err := s.Download(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{"sources":[1]}`, string(got))

	_, err = s.Edit(ctx, path, []byte("absent"), []byte("x"))
	assert.ErrorIs(t, err, storage.ErrEditConflict)

	_, err = s.Edit(ctx, "/memories/none", []byte("a"), []byte("b"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestStore_PersistsAcrossReopen verifies on-disk durability.
func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	db, err := Open(cfg)
	require.NoError(t, err)
	_, err = NewStore(db).Write(ctx, "/memories/x", []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewStore(db).Download(ctx, "/memories/x")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
}

// TestStore_CancelledContext verifies a cancelled context is a backend error.
func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore(openInMemory(t)).Download(ctx, "/memories/x")
	var berr *storage.BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "download", berr.Op)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDB_UpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openInMemory(t)

	boom := errors.New("boom")
	err := db.Update(ctx, func(txn *badger.Txn) error {
		require.NoError(t, txn.Set([]byte("k"), []byte("v")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.View(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestNewGCRunner_Validation(t *testing.T) {
	db := openInMemory(t)

	_, err := NewGCRunner(nil, time.Second, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db.db, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db.db, time.Second, 1.5, nil)
	assert.Error(t, err)
}

// TestGCRunner_StartStop verifies Stop is idempotent and safe before Start.
func TestGCRunner_StartStop(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewGCRunner(db.db, 10*time.Millisecond, 0.5, nil)
	require.NoError(t, err)
	runner.Start()
	runner.Start()
	time.Sleep(30 * time.Millisecond)
	runner.Stop()
	runner.Stop()

	idle, err := NewGCRunner(db.db, time.Second, 0.5, nil)
	require.NoError(t, err)
	idle.Stop()
	idle.Start()
}
