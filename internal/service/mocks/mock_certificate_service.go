package mocks

import (
	"context"
	"io"

	"certstamp/internal/model"
	"certstamp/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockCertificateService struct {
	mock.Mock
}

func (m *MockCertificateService) Issue(ctx context.Context, r io.Reader, name string) (*service.IssueResult, error) {
	args := m.Called(ctx, r, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssueResult), args.Error(1)
}

func (m *MockCertificateService) Verify(ctx context.Context, hash string) (*model.VerifyResult, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VerifyResult), args.Error(1)
}

func (m *MockCertificateService) List(ctx context.Context, limit, offset int) (*service.CertificateListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CertificateListResult), args.Error(1)
}

func (m *MockCertificateService) QRCode(ctx context.Context, hash string) ([]byte, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCertificateService) Payload(digest string) string {
	return m.Called(digest).String(0)
}

func (m *MockCertificateService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
