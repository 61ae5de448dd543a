package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"certstamp/internal/digest"
	"certstamp/internal/events"
	"certstamp/internal/model"
	"certstamp/internal/qrcode"
	"certstamp/internal/repository"
	"certstamp/internal/repository/memory"
	repoMocks "certstamp/internal/repository/mocks"
	"certstamp/internal/storage"
	storeMocks "certstamp/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var qrKeyPattern = regexp.MustCompile(`^qr/qr_[0-9a-f]{8}\.png$`)

type mockStamper struct{ mock.Mock }

func (m *mockStamper) Stamp(doc, img []byte, text string) ([]byte, error) {
	args := m.Called(doc, img, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockEncoder struct{ mock.Mock }

func (m *mockEncoder) Encode(payload string) ([]byte, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishIssued(ctx context.Context, ev events.IssuedEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

// passthroughStamper appends the caption so tests can see what was stamped.
type passthroughStamper struct{}

func (passthroughStamper) Stamp(doc, img []byte, text string) ([]byte, error) {
	out := append([]byte{}, doc...)
	return append(out, text...), nil
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestCertificateService_Issue(t *testing.T) {
	ctx := context.Background()
	doc := []byte("hello world")
	sum := digest.Sum(doc)
	png := []byte("png")
	stamped := []byte("stamped")

	type deps struct {
		repo  *repoMocks.MockCertificateRepository
		store *storeMocks.MockStorage
		st    *mockStamper
		enc   *mockEncoder
		pub   *mockPublisher
	}

	tests := []struct {
		name       string
		reader     io.Reader
		docName    string
		setupMocks func(d deps)
		wantErr    error
		wantLogErr string
		check      func(t *testing.T, d deps, res *IssueResult)
	}{
		{
			name:    "happy path",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, "SHA-256 Hash:\n"+sum).Return(stamped, nil)
				d.store.On("Put", mock.Anything, mock.MatchedBy(qrKeyPattern.MatchString), mock.Anything, storage.PutObjectOptions{
					Size:        3,
					ContentType: "image/png",
					Metadata:    map[string]string{"digest": sum},
				}).Return(storage.ObjectInfo{}, nil)
				d.repo.On("Append", mock.Anything, mock.MatchedBy(func(c *model.Certificate) bool {
					return c.Name == "D1.pdf" && c.Digest == sum && qrKeyPattern.MatchString(c.QRCode)
				}), png).Return(&model.Certificate{ID: "gen-id", Name: "D1.pdf", Digest: sum}, nil)
				d.pub.On("PublishIssued", mock.Anything, mock.MatchedBy(func(ev events.IssuedEvent) bool {
					return ev.ID == "gen-id" && ev.Digest == sum
				})).Return(nil)
			},
			check: func(t *testing.T, d deps, res *IssueResult) {
				assert.Equal(t, stamped, res.Document)
				assert.Equal(t, sum, res.Digest)
				assert.Equal(t, "gen-id", res.Certificate.ID)
				key := d.store.Calls[0].Arguments.String(1)
				assert.Equal(t, png, d.store.Uploaded(key))
			},
		},
		{
			name:    "validation error - nil reader",
			docName: "D1.pdf",
			wantErr: ErrReaderNil,
		},
		{
			name:    "validation error - blank name",
			reader:  bytes.NewReader(doc),
			docName: "   ",
			wantErr: ErrNameRequired,
		},
		{
			name:    "qr overflow is returned",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(nil, qrcode.ErrEncodingOverflow)
			},
			wantErr: qrcode.ErrEncodingOverflow,
		},
		{
			name:    "stamp error is returned",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, mock.Anything).Return(nil, errors.New("not a pdf"))
			},
			wantErr: errors.New("stamp document: not a pdf"),
		},
		{
			name:    "log failure still returns the document and rolls back the image",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, mock.Anything).Return(stamped, nil)
				d.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				d.repo.On("Append", mock.Anything, mock.Anything, png).Return(nil, repository.ErrStoreLocked)
				d.store.On("Delete", mock.Anything, mock.MatchedBy(qrKeyPattern.MatchString)).Return(nil)
			},
			wantLogErr: "append log",
			check: func(t *testing.T, d deps, res *IssueResult) {
				assert.Equal(t, stamped, res.Document)
				assert.Nil(t, res.Certificate)
				assert.ErrorIs(t, res.LogErr, repository.ErrStoreLocked)
				d.pub.AssertNotCalled(t, "PublishIssued", mock.Anything, mock.Anything)
			},
		},
		{
			name:    "log failure with failed rollback",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, mock.Anything).Return(stamped, nil)
				d.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				d.repo.On("Append", mock.Anything, mock.Anything, png).Return(nil, repository.ErrStoreCorrupt)
				d.store.On("Delete", mock.Anything, mock.Anything).Return(errors.New("delete fail"))
			},
			wantLogErr: "rollback delete failed: delete fail",
			check: func(t *testing.T, d deps, res *IssueResult) {
				assert.ErrorIs(t, res.LogErr, repository.ErrStoreCorrupt)
			},
		},
		{
			name:    "image storage failure still appends the record",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, mock.Anything).Return(stamped, nil)
				d.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, errors.New("disk full"))
				d.repo.On("Append", mock.Anything, mock.MatchedBy(func(c *model.Certificate) bool { return c.QRCode == "" }), png).
					Return(&model.Certificate{ID: "gen-id", Digest: sum}, nil)
				d.pub.On("PublishIssued", mock.Anything, mock.Anything).Return(nil)
			},
			wantLogErr: "store qr image: disk full",
			check: func(t *testing.T, d deps, res *IssueResult) {
				assert.Equal(t, "gen-id", res.Certificate.ID)
				d.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			},
		},
		{
			name:    "event failure is reported",
			reader:  bytes.NewReader(doc),
			docName: "D1.pdf",
			setupMocks: func(d deps) {
				d.enc.On("Encode", sum).Return(png, nil)
				d.st.On("Stamp", doc, png, mock.Anything).Return(stamped, nil)
				d.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				d.repo.On("Append", mock.Anything, mock.Anything, png).Return(&model.Certificate{ID: "gen-id"}, nil)
				d.pub.On("PublishIssued", mock.Anything, mock.Anything).Return(errors.New("broker down"))
			},
			wantLogErr: "publish event: broker down",
			check: func(t *testing.T, d deps, res *IssueResult) {
				assert.NotNil(t, res.Certificate)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deps{
				repo:  new(repoMocks.MockCertificateRepository),
				store: new(storeMocks.MockStorage),
				st:    new(mockStamper),
				enc:   new(mockEncoder),
				pub:   new(mockPublisher),
			}
			if tt.setupMocks != nil {
				tt.setupMocks(d)
			}
			svc := NewCertificateService(d.repo, d.store, d.st, d.enc, WithPublisher(d.pub), quiet())

			res, err := svc.Issue(ctx, tt.reader, tt.docName)

			if tt.wantErr != nil {
				assert.Nil(t, res)
				if errors.Is(err, tt.wantErr) {
					return
				}
				assert.EqualError(t, err, tt.wantErr.Error())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res)
			if tt.wantLogErr != "" {
				assert.ErrorContains(t, res.LogErr, tt.wantLogErr)
			} else {
				assert.NoError(t, res.LogErr)
			}
			if tt.check != nil {
				tt.check(t, d, res)
			}
			d.repo.AssertExpectations(t)
			d.store.AssertExpectations(t)
			d.enc.AssertExpectations(t)
			d.st.AssertExpectations(t)
		})
	}
}

func newIntegrated(t *testing.T, opts ...Option) (CertificateService, *memory.CertificateMemory) {
	t.Helper()
	repo := memory.NewCertificateMemory()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	enc, err := qrcode.NewEncoder("medium", 120)
	require.NoError(t, err)
	opts = append([]Option{quiet(), WithLocation(time.UTC)}, opts...)
	return NewCertificateService(repo, store, passthroughStamper{}, enc, opts...), repo
}

func TestCertificateService_IssueThenVerify(t *testing.T) {
	svc, repo := newIntegrated(t)
	ctx := context.Background()

	doc := bytes.Repeat([]byte{0x5a}, 500)
	res, err := svc.Issue(ctx, bytes.NewReader(doc), "D1")
	require.NoError(t, err)
	require.NoError(t, res.LogErr)

	h1 := digest.Sum(doc)
	assert.Equal(t, h1, res.Digest)
	assert.True(t, strings.HasSuffix(string(res.Document), "SHA-256 Hash:\n"+h1))
	assert.Equal(t, doc, res.Document[:500])

	list, err := repo.List(ctx, repository.PageQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "D1", list.Items[0].Name)
	assert.Equal(t, h1, list.Items[0].Digest)

	got, err := svc.Verify(ctx, h1)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "D1", *got.Name)
	assert.Equal(t, list.Items[0].CreatedAt.UTC().Format(model.DateLayout), *got.Date)

	// surrounding whitespace is ignored
	got, err = svc.Verify(ctx, "  "+h1+"\n")
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, h1, got.Hash)
}

func TestCertificateService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown hash on empty log", func(t *testing.T) {
		svc, _ := newIntegrated(t)
		got, err := svc.Verify(ctx, "deadbeef")
		require.NoError(t, err)
		assert.False(t, got.Found)
		assert.Nil(t, got.Name)
		assert.Nil(t, got.Date)
	})

	t.Run("empty input is a miss", func(t *testing.T) {
		mRepo := new(repoMocks.MockCertificateRepository)
		svc := NewCertificateService(mRepo, nil, nil, nil, quiet())

		got, err := svc.Verify(ctx, "   ")
		require.NoError(t, err)
		assert.False(t, got.Found)
		mRepo.AssertNotCalled(t, "FindByDigest", mock.Anything, mock.Anything)
	})

	t.Run("store failure is an error", func(t *testing.T) {
		mRepo := new(repoMocks.MockCertificateRepository)
		mRepo.On("FindByDigest", mock.Anything, "abc").Return(nil, repository.ErrStoreCorrupt)
		svc := NewCertificateService(mRepo, nil, nil, nil, quiet())

		got, err := svc.Verify(ctx, "abc")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, repository.ErrStoreCorrupt)
	})

	t.Run("duplicates resolve to the first record", func(t *testing.T) {
		svc, repo := newIntegrated(t)
		doc := []byte("same bytes")

		first, err := svc.Issue(ctx, bytes.NewReader(doc), "first.pdf")
		require.NoError(t, err)
		second, err := svc.Issue(ctx, bytes.NewReader(doc), "second.pdf")
		require.NoError(t, err)
		assert.Equal(t, first.Digest, second.Digest)
		assert.NotEqual(t, first.Certificate.ID, second.Certificate.ID)

		list, err := repo.List(ctx, repository.PageQuery{})
		require.NoError(t, err)
		assert.Equal(t, 2, list.Total)

		got, err := svc.Verify(ctx, first.Digest)
		require.NoError(t, err)
		assert.Equal(t, "first.pdf", *got.Name)

		// verification never writes
		got2, err := svc.Verify(ctx, first.Digest)
		require.NoError(t, err)
		assert.Equal(t, got, got2)
		list, _ = repo.List(ctx, repository.PageQuery{})
		assert.Equal(t, 2, list.Total)
	})
}

func TestCertificateService_List(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockCertificateRepository)
	svc := NewCertificateService(mRepo, nil, nil, nil, quiet())

	mRepo.On("List", mock.Anything, repository.PageQuery{Limit: 10, Offset: 0}).
		Return(&repository.PageResult[model.Certificate]{Items: []model.Certificate{{ID: "1"}}, Total: 1}, nil)

	res, err := svc.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, res.Items, 1)
	mRepo.AssertExpectations(t)

	t.Run("dates follow the service location", func(t *testing.T) {
		jakarta := time.FixedZone("WIB", 7*60*60)
		stored := time.Date(2026, 5, 4, 20, 30, 0, 0, time.UTC)
		repo := new(repoMocks.MockCertificateRepository)
		repo.On("List", mock.Anything, mock.Anything).
			Return(&repository.PageResult[model.Certificate]{Items: []model.Certificate{{ID: "1", Digest: "h1", CreatedAt: stored}}, Total: 1}, nil)
		repo.On("FindByDigest", mock.Anything, "h1").
			Return(&model.Certificate{ID: "1", Digest: "h1", CreatedAt: stored}, nil)
		svc := NewCertificateService(repo, nil, nil, nil, quiet(), WithLocation(jakarta))

		res, err := svc.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "2026-05-05 03:30:00", res.Items[0].Date())
		assert.True(t, stored.Equal(res.Items[0].CreatedAt))

		got, err := svc.Verify(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, res.Items[0].Date(), *got.Date)
	})

	mRepo2 := new(repoMocks.MockCertificateRepository)
	mRepo2.On("List", mock.Anything, mock.Anything).Return(nil, repository.ErrStoreLocked)
	_, err = NewCertificateService(mRepo2, nil, nil, nil, quiet()).List(ctx, 5, 0)
	assert.ErrorIs(t, err, repository.ErrStoreLocked)
}

func TestCertificateService_QRCode(t *testing.T) {
	ctx := context.Background()
	cert := &model.Certificate{ID: "1", Digest: "abc", QRCode: "qr/qr_00000000.png"}

	t.Run("stored image", func(t *testing.T) {
		mRepo := new(repoMocks.MockCertificateRepository)
		mStore := new(storeMocks.MockStorage)
		mRepo.On("FindByDigest", mock.Anything, "abc").Return(cert, nil)
		mStore.On("Get", mock.Anything, "qr/qr_00000000.png").Return(io.NopCloser(strings.NewReader("stored")), storage.ObjectInfo{}, nil)
		svc := NewCertificateService(mRepo, mStore, nil, nil, quiet())

		b, err := svc.QRCode(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "stored", string(b))
	})

	t.Run("regenerated when the image is gone", func(t *testing.T) {
		mRepo := new(repoMocks.MockCertificateRepository)
		mStore := new(storeMocks.MockStorage)
		enc := new(mockEncoder)
		mRepo.On("FindByDigest", mock.Anything, "abc").Return(cert, nil)
		mStore.On("Get", mock.Anything, "qr/qr_00000000.png").Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
		enc.On("Encode", "https://certs.example.org/verify?hash=abc").Return([]byte("fresh"), nil)
		svc := NewCertificateService(mRepo, mStore, nil, enc, quiet(), WithBaseURL("https://certs.example.org/"))

		b, err := svc.QRCode(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(b))
	})

	t.Run("never issued", func(t *testing.T) {
		mRepo := new(repoMocks.MockCertificateRepository)
		mRepo.On("FindByDigest", mock.Anything, "nope").Return(nil, nil)
		svc := NewCertificateService(mRepo, nil, nil, nil, quiet())

		_, err := svc.QRCode(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.QRCode(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCertificateService_Payload(t *testing.T) {
	plain := NewCertificateService(nil, nil, nil, nil)
	assert.Equal(t, "abc", plain.Payload("abc"))

	linked := NewCertificateService(nil, nil, nil, nil, WithBaseURL("https://certs.example.org/"))
	assert.Equal(t, "https://certs.example.org/verify?hash=abc", linked.Payload("abc"))
}

func TestQRKey(t *testing.T) {
	a, b := qrKey(), qrKey()
	assert.Regexp(t, qrKeyPattern, a)
	assert.NotEqual(t, a, b)
}
