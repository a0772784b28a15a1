package contentstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var rawPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

type storedObject struct {
	upload Upload
	pinned time.Time
}

// MemoryStore is an in-process content store. Identifiers are CIDv1 raw
// sha2-256 digests of the data, so identical bytes share one identifier.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
	uploads int
}

// NewMemoryStore creates an empty in-memory content store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]storedObject)}
}

// Upload implements Client
func (s *MemoryStore) Upload(ctx context.Context, u Upload) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if len(u.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUploadFailed)
	}

	c, err := rawPrefix.Sum(u.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	data := append([]byte(nil), u.Data...)
	kv := make(map[string]string, len(u.KeyValues))
	for k, v := range u.KeyValues {
		kv[k] = v
	}
	u.Data = data
	u.KeyValues = kv

	now := time.Now()
	s.mu.Lock()
	s.objects[c.String()] = storedObject{upload: u, pinned: now}
	s.uploads++
	s.mu.Unlock()

	return &Result{ContentID: c.String(), Size: int64(len(data)), Timestamp: now}, nil
}

// Get returns a stored upload by content identifier
func (s *MemoryStore) Get(contentID string) (Upload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[contentID]
	return obj.upload, ok
}

// Uploads returns the number of successful Upload calls, duplicates included
func (s *MemoryStore) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}
