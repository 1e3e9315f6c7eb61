package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

var ErrNotFound = core.NewError(core.KindNotFound, "file not found")

type object struct {
	content     []byte
	contentType string
}

// MemoryStore keeps files in memory. Used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

var _ core.FileStore = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "/media"
	}
	return &MemoryStore{objects: make(map[string]object), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading file")
	}
	s.mu.Lock()
	s.objects[key] = object{content: content, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.content)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return s.baseURL + "/" + key
}

// Keys lists the stored keys starting with prefix.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
