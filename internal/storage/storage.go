// Package storage holds ticket attachment objects.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultBucket is the bucket attachments are written to.
const DefaultBucket = "ticket-attachments"

// ErrObjectExists is returned when uploading to an occupied key. Uploads never overwrite.
var ErrObjectExists = errors.New("object already exists")

// ObjectStore is the storage sub-API used by ticket submission.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	PublicURL(key string) string
}

// AttachmentKey returns the object key for a ticket attachment. The key always
// names an object inside the ticket's namespace; a file name that reduces to
// nothing usable is replaced by a random name with extension ext.
func AttachmentKey(ticketID, fileName, ext string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		base = uuid.NewString() + ext
	}
	return "attachments/" + ticketID + "/" + base
}

// Object is a stored blob held by MemoryStore.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in process. Used when no S3 endpoint is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	baseURL string
	objects map[string]Object
}

// NewMemoryStore creates an empty store serving URLs under baseURL.
func NewMemoryStore(bucket, baseURL string) *MemoryStore {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &MemoryStore{bucket: bucket, baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string]Object)}
}

func (s *MemoryStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return fmt.Errorf("upload %s: %w", key, ErrObjectExists)
	}
	s.objects[key] = Object{Data: buf.Bytes(), ContentType: contentType}
	return nil
}

func (s *MemoryStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Get returns a stored object.
func (s *MemoryStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys lists stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
