// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcsstore is a durable scope backed by a Google Cloud Storage
// bucket, for deployments where several vault processes share missions.
//
// Writes use GCS preconditions instead of read-then-write: Write requires
// the object to be absent and Edit requires the generation it read, so a
// racing writer fails the call rather than being overwritten.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	mstorage "github.com/AleutianAI/AleutianResearch/services/mission/storage"
)

// Config configures the bucket connection.
type Config struct {
	// Bucket is the GCS bucket name. Required.
	Bucket string

	// Prefix is prepended to every object name, e.g. "vault/".
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// errPrecondition marks a failed GCS precondition.
var errPrecondition = errors.New("precondition failed")

// objectStore is the slice of GCS the Store needs.
type objectStore interface {
	// read returns content and generation, or mstorage.ErrNotFound.
	read(ctx context.Context, name string) ([]byte, int64, error)

	// write stores data. generation 0 requires absence; otherwise the
	// live generation must match. Fails with errPrecondition.
	write(ctx context.Context, name string, data []byte, generation int64) error
}

// bucketObjects implements objectStore over a real bucket.
type bucketObjects struct {
	bucket *storage.BucketHandle
}

func (b *bucketObjects) read(ctx context.Context, name string) ([]byte, int64, error) {
	r, err := b.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, mstorage.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, r.Attrs.Generation, nil
}

func (b *bucketObjects) write(ctx context.Context, name string, data []byte, generation int64) error {
	obj := b.bucket.Object(name)
	if generation == 0 {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		obj = obj.If(storage.Conditions{GenerationMatch: generation})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return errPrecondition
		}
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}

// Store is a mission storage.Backend over GCS.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	objects objectStore
	prefix  string
	closer  io.Closer
}

var _ mstorage.Backend = (*Store)(nil)

// New connects to the configured bucket.
//
// Inputs:
//
//	ctx - Context for client creation.
//	cfg - Bucket configuration. Bucket is required.
//
// Outputs:
//
//	*Store - The store. Call Close to release the client.
//	error - Non-nil if the key file is missing or the client fails.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not accessible at %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Store{
		objects: &bucketObjects{bucket: client.Bucket(cfg.Bucket)},
		prefix:  cfg.Prefix,
		closer:  client,
	}, nil
}

// Close releases the GCS client.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// objectName maps a vault path to an object name.
func (s *Store) objectName(path string) string {
	return s.prefix + strings.TrimPrefix(path, "/")
}

// Download returns the object content, or storage.ErrNotFound.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	data, _, err := s.objects.read(ctx, s.objectName(path))
	if errors.Is(err, mstorage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &mstorage.BackendError{Op: "download", Path: path, Err: err}
	}
	return data, nil
}

// Write creates the object only if it does not exist.
func (s *Store) Write(ctx context.Context, path string, content []byte) (mstorage.FilesUpdate, error) {
	err := s.objects.write(ctx, s.objectName(path), content, 0)
	if errors.Is(err, errPrecondition) {
		return nil, mstorage.ErrAlreadyExists
	}
	if err != nil {
		return nil, &mstorage.BackendError{Op: "write", Path: path, Err: err}
	}
	return nil, nil
}

// Edit reads the object, applies the edit, and writes it back
// conditioned on the generation it read.
func (s *Store) Edit(ctx context.Context, path string, oldContent, newContent []byte) (mstorage.FilesUpdate, error) {
	name := s.objectName(path)
	current, generation, err := s.objects.read(ctx, name)
	if errors.Is(err, mstorage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &mstorage.BackendError{Op: "edit", Path: path, Err: err}
	}

	edited, err := mstorage.ApplyEdit(current, oldContent, newContent)
	if err != nil {
		return nil, err
	}

	err = s.objects.write(ctx, name, edited, generation)
	if errors.Is(err, errPrecondition) {
		return nil, fmt.Errorf("object %s changed since generation %d: %w", name, generation, mstorage.ErrEditConflict)
	}
	if err != nil {
		return nil, &mstorage.BackendError{Op: "edit", Path: path, Err: err}
	}
	return nil, nil
}
