package memory

import (
	"context"
	"sync"
	"time"

	"certstamp/internal/model"
	"certstamp/internal/repository"
)

// CertificateMemory keeps the certificate log in a slice. It is used by tests
// and by certctl when no persistent log is configured.
type CertificateMemory struct {
	mu    sync.RWMutex
	items []model.Certificate
	now   func() time.Time
}

// NewCertificateMemory returns an empty in-memory log.
func NewCertificateMemory() *CertificateMemory {
	return &CertificateMemory{now: time.Now}
}

var _ repository.CertificateRepository = (*CertificateMemory)(nil)

func (m *CertificateMemory) Append(ctx context.Context, cert *model.Certificate, _ []byte) (*model.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := repository.Fill(cert, m.now())
	m.items = append(m.items, rec)
	return &rec, nil
}

func (m *CertificateMemory) FindByDigest(ctx context.Context, digest string) (*model.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.items {
		if c.Digest == digest {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *CertificateMemory) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Certificate], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &repository.PageResult[model.Certificate]{
		Items: repository.Page(m.items, pq),
		Total: len(m.items),
	}, nil
}

func (m *CertificateMemory) Ping(context.Context) error { return nil }
