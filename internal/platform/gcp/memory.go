package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryBucketService keeps objects in a map. It backs local development and
// tests when no bucket is configured.
type MemoryBucketService struct {
	log     *logger.Logger
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryBucketService(log *logger.Logger, publicBaseURL string) *MemoryBucketService {
	return &MemoryBucketService{
		log:     log.With("service", "MemoryBucketService"),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		objects: map[string]memoryObject{},
	}
}

func memoryKey(category BucketCategory, key string) string {
	return string(category) + "/" + strings.TrimLeft(key, "/")
}

func (m *MemoryBucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	m.mu.Lock()
	m.objects[memoryKey(category, key)] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(category, key)
	if _, ok := m.objects[k]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	delete(m.objects, k)
	return nil
}

func (m *MemoryBucketService) GetPublicURL(category BucketCategory, key string) string {
	return fmt.Sprintf("%s/%s", m.baseURL, memoryKey(category, key))
}

// Open returns the stored object; used by the local media route.
func (m *MemoryBucketService) Open(category BucketCategory, key string) (io.Reader, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memoryKey(category, key)]
	if !ok {
		return nil, "", false
	}
	return bytes.NewReader(obj.data), obj.contentType, true
}

func (m *MemoryBucketService) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
