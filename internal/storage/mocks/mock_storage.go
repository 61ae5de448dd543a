// Package mocks provides testify mocks for storage.Storage.
package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"certstamp/internal/storage"
)

// MockStorage is a testify mock of storage.Storage. Put drains the reader
// before matching, so bodies can be inspected through Uploaded.
type MockStorage struct {
	mock.Mock

	mu       sync.Mutex
	uploaded map[string][]byte
}

// Uploaded returns the bytes passed to Put for key.
func (m *MockStorage) Uploaded(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploaded[key]
}

func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	if r != nil {
		b, _ := io.ReadAll(r)
		m.mu.Lock()
		if m.uploaded == nil {
			m.uploaded = make(map[string][]byte)
		}
		m.uploaded[key] = b
		m.mu.Unlock()
	}

	args := m.Called(ctx, key, r, opt)
	info, _ := args.Get(0).(storage.ObjectInfo)
	return info, args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	info, _ := args.Get(1).(storage.ObjectInfo)
	return rc, info, args.Error(2)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
