// Package storagetest provides an in-memory blob store for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/vigil/pkg/lifecycle"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// ErrRefused is returned for keys registered with FailOn.
var ErrRefused = errors.New("storagetest: operation refused")

// Store implements storage.System in memory. Listings return PageSize blobs
// at a time so callers must follow markers.
type Store struct {
	PageSize int

	mu        sync.Mutex
	blobs     map[string][]byte
	types     map[string]string
	fail      map[string]bool
	listCalls int
}

// New returns an empty store with the given listing page size.
func New(pageSize int) *Store {
	return &Store{
		PageSize: pageSize,
		blobs:    make(map[string][]byte),
		types:    make(map[string]string),
		fail:     make(map[string]bool),
	}
}

// Seed writes blobs without going through Upload.
func (s *Store) Seed(blobs map[string]string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range blobs {
		s.blobs[k] = []byte(v)
	}
	return s
}

// FailOn makes Download and Delete of key fail with ErrRefused.
func (s *Store) FailOn(key string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[key] = true
	return s
}

// Keys returns the stored keys in order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Content returns the bytes stored at key.
func (s *Store) Content(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	return data, ok
}

// ListCalls reports how many List calls were served.
func (s *Store) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Store) Start(*lifecycle.Coordinator) error { return nil }
func (s *Store) Container() string                  { return "memory" }

func (s *Store) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	s.types[key] = contentType
	return nil
}

func (s *Store) Download(_ context.Context, key string) (*storage.BlobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[key] {
		return nil, ErrRefused
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.BlobResult{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   s.types[key],
		ContentLength: int64(len(data)),
	}, nil
}

func (s *Store) Find(_ context.Context, key string) (*storage.BlobMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.BlobMeta{Name: key, ContentType: s.types[key], ContentLength: int64(len(data))}, nil
}

func (s *Store) List(_ context.Context, prefix, marker string, maxResults int32) (*storage.BlobList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	size := s.PageSize
	if maxResults > 0 && int(maxResults) < size {
		size = int(maxResults)
	}

	keys := make([]string, 0)
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) && k > marker {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	list := &storage.BlobList{Blobs: make([]storage.BlobMeta, 0)}
	for i, k := range keys {
		if i == size {
			list.NextMarker = keys[i-1]
			break
		}
		list.Blobs = append(list.Blobs, storage.BlobMeta{Name: k, ContentLength: int64(len(s.blobs[k]))})
	}
	return list, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[key] {
		return ErrRefused
	}
	delete(s.blobs, key)
	delete(s.types, key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *Store) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		return "", storage.ErrInvalidExpiry
	}
	return "memory://" + key + "?se=" + expiry.String(), nil
}
