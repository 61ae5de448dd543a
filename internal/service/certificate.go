package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"certstamp/internal/digest"
	"certstamp/internal/events"
	"certstamp/internal/model"
	"certstamp/internal/repository"
	"certstamp/internal/stamper"
	"certstamp/internal/storage"
)

var (
	ErrReaderNil    = errors.New("reader is nil")
	ErrNameRequired = errors.New("document name is required")
	ErrNotFound     = errors.New("certificate not found")
)

var tracer = otel.Tracer("certstamp/internal/service")

// Stamper places the QR image and caption on a PDF.
type Stamper interface {
	Stamp(doc, img []byte, text string) ([]byte, error)
}

// Encoder renders a QR payload as PNG.
type Encoder interface {
	Encode(payload string) ([]byte, error)
}

// IssueResult is what the caller gets back from Issue. Document is always set;
// LogErr reports side effects (QR storage, log append, event) that failed after
// stamping succeeded.
type IssueResult struct {
	Document    []byte
	Digest      string
	Certificate *model.Certificate
	LogErr      error
}

// CertificateListResult is the service-level DTO for paginated certificates.
type CertificateListResult struct {
	Items []model.Certificate `json:"data"`
	Total int                 `json:"total"`
}

// CertificateService defines the certificate use cases.
type CertificateService interface {
	// Issue hashes the document, stamps QR and hash onto it and records it.
	Issue(ctx context.Context, r io.Reader, name string) (*IssueResult, error)

	// Verify reports whether hash was issued. A miss is Found=false, not an error.
	Verify(ctx context.Context, hash string) (*model.VerifyResult, error)

	// List returns log records using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*CertificateListResult, error)

	// QRCode returns the QR PNG of an issued digest.
	QRCode(ctx context.Context, hash string) ([]byte, error)

	// Payload is the string encoded into the QR code of digest.
	Payload(digest string) string

	// Ping checks that the certificate log is reachable.
	Ping(ctx context.Context) error
}

// Option configures a certificate service.
type Option func(*certificateService)

// WithPublisher sends issue events through p.
func WithPublisher(p events.Publisher) Option {
	return func(s *certificateService) { s.events = p }
}

// WithBaseURL makes QR payloads verification links below base.
func WithBaseURL(base string) Option {
	return func(s *certificateService) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *certificateService) { s.logger = l }
}

// WithLocation sets the zone verification and listing dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(s *certificateService) { s.loc = loc }
}

type certificateService struct {
	repo    repository.CertificateRepository
	store   storage.Storage
	stamper Stamper
	encoder Encoder
	events  events.Publisher
	baseURL string
	logger  *slog.Logger
	loc     *time.Location
}

// NewCertificateService constructs a new CertificateService.
func NewCertificateService(repo repository.CertificateRepository, store storage.Storage, st Stamper, enc Encoder, opts ...Option) CertificateService {
	s := &certificateService{
		repo:    repo,
		store:   store,
		stamper: st,
		encoder: enc,
		events:  events.Noop{},
		logger:  slog.Default(),
		loc:     time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *certificateService) Payload(d string) string {
	if s.baseURL == "" {
		return d
	}
	return s.baseURL + "/verify?hash=" + url.QueryEscape(d)
}

func (s *certificateService) Issue(ctx context.Context, r io.Reader, name string) (*IssueResult, error) {
	ctx, span := tracer.Start(ctx, "CertificateService.Issue")
	defer span.End()

	if r == nil {
		return nil, ErrReaderNil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	sum := digest.Sum(doc)
	span.SetAttributes(
		attribute.String("certificate.digest", sum),
		attribute.Int("document.size", len(doc)),
	)

	png, err := s.encoder.Encode(s.Payload(sum))
	if err != nil {
		span.SetStatus(codes.Error, "qr encode failed")
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	stamped, err := s.stamper.Stamp(doc, png, stamper.HashText(sum))
	if err != nil {
		span.SetStatus(codes.Error, "stamp failed")
		return nil, fmt.Errorf("stamp document: %w", err)
	}

	res := &IssueResult{Document: stamped, Digest: sum}
	res.Certificate, res.LogErr = s.record(ctx, name, sum, png)
	if res.LogErr != nil {
		span.RecordError(res.LogErr)
		s.logger.WarnContext(ctx, "certificate.issue.log_failed",
			"name", name,
			"digest", sum,
			"err", res.LogErr,
		)
	} else {
		s.logger.InfoContext(ctx, "certificate.issue.ok",
			"id", res.Certificate.ID,
			"name", name,
			"digest", sum,
		)
	}
	return res, nil
}

// record persists the QR image, appends the log record and publishes the
// issue event. The image is removed again when the append fails.
func (s *certificateService) record(ctx context.Context, name, sum string, png []byte) (*model.Certificate, error) {
	var errs []error

	key := qrKey()
	if _, err := s.store.Put(ctx, key, bytes.NewReader(png), storage.PutObjectOptions{
		Size:        int64(len(png)),
		ContentType: "image/png",
		Metadata:    map[string]string{"digest": sum},
	}); err != nil {
		errs = append(errs, fmt.Errorf("store qr image: %w", err))
		key = ""
	}

	cert, err := s.repo.Append(ctx, &model.Certificate{Name: name, Digest: sum, QRCode: key}, png)
	if err != nil {
		errs = append(errs, fmt.Errorf("append log: %w", err))
		if key != "" {
			if delErr := s.store.Delete(ctx, key); delErr != nil {
				errs = append(errs, fmt.Errorf("rollback delete failed: %w", delErr))
			}
		}
		return nil, errors.Join(errs...)
	}

	if err := s.events.PublishIssued(ctx, events.NewIssuedEvent(cert, s.verifyURL(sum))); err != nil {
		errs = append(errs, fmt.Errorf("publish event: %w", err))
	}
	return cert, errors.Join(errs...)
}

func (s *certificateService) verifyURL(sum string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.Payload(sum)
}

func (s *certificateService) Verify(ctx context.Context, hash string) (*model.VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "CertificateService.Verify")
	defer span.End()

	h := digest.Normalize(hash)
	res := &model.VerifyResult{Hash: h}
	if h == "" {
		return res, nil
	}

	cert, err := s.repo.FindByDigest(ctx, h)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log lookup failed")
		return nil, fmt.Errorf("verify: %w", err)
	}
	span.SetAttributes(attribute.Bool("certificate.found", cert != nil))
	if cert == nil {
		return res, nil
	}

	name := cert.Name
	date := cert.CreatedAt.In(s.loc).Format(model.DateLayout)
	res.Found = true
	res.Name = &name
	res.Date = &date
	return res, nil
}

// List returns paginated certificates without exposing repository types.
// CreatedAt is converted to the service location, as in Verify.
func (s *certificateService) List(ctx context.Context, limit, offset int) (*CertificateListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	items := make([]model.Certificate, len(res.Items))
	for i, c := range res.Items {
		c.CreatedAt = c.CreatedAt.In(s.loc)
		items[i] = c
	}
	return &CertificateListResult{Items: items, Total: res.Total}, nil
}

func (s *certificateService) QRCode(ctx context.Context, hash string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "CertificateService.QRCode")
	defer span.End()

	h := digest.Normalize(hash)
	if h == "" {
		return nil, ErrNotFound
	}
	cert, err := s.repo.FindByDigest(ctx, h)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, ErrNotFound
	}

	if cert.QRCode != "" {
		b, err := s.readObject(ctx, cert.QRCode)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "certificate.qr.read_failed", "key", cert.QRCode, "err", err)
		}
	}
	// The image is derived data; rebuild it when the stored copy is gone.
	return s.encoder.Encode(s.Payload(cert.Digest))
}

func (s *certificateService) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *certificateService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// qrKey names a QR image object: qr/qr_<8 hex>.png.
func qrKey() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "qr/qr_" + id[:8] + ".png"
}
