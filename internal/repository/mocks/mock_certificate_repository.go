package mocks

import (
	"context"

	"certstamp/internal/model"
	"certstamp/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockCertificateRepository struct {
	mock.Mock
}

func (m *MockCertificateRepository) Append(ctx context.Context, cert *model.Certificate, qrImage []byte) (*model.Certificate, error) {
	args := m.Called(ctx, cert, qrImage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Certificate), args.Error(1)
}

func (m *MockCertificateRepository) FindByDigest(ctx context.Context, digest string) (*model.Certificate, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Certificate), args.Error(1)
}

func (m *MockCertificateRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Certificate], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Certificate]), args.Error(1)
}

func (m *MockCertificateRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
