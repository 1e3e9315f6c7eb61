package core

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// StagedFiles records the objects a unit of work writes to a FileStore.
// Objects are written under fresh keys, so a failed unit of work can delete them without touching committed files.
type StagedFiles struct {
	store  FileStore
	logger Logger

	mu   sync.Mutex
	keys []string
}

func StageFiles(store FileStore, logger Logger) *StagedFiles {
	return &StagedFiles{store: store, logger: logger}
}

func (s *StagedFiles) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if err := s.store.Put(ctx, key, bytes.NewReader(content), int64(len(content)), contentType); err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Settle returns err unchanged; when it is not nil, every staged object is deleted first.
// Deletion failures are logged, never returned.
func (s *StagedFiles) Settle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	s.mu.Lock()
	keys := s.keys
	s.keys = nil
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if dErr := s.store.Delete(ctx, key); dErr != nil {
			s.logger.Warn(fmt.Sprintf("deleting orphaned file %s: %v", key, dErr), dErr)
		}
	}
	return err
}
