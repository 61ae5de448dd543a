package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"certstamp/internal/model"
)

var (
	// ErrStoreLocked means the log could not be opened or written, e.g. it is
	// held by another process or the file is not writable.
	ErrStoreLocked = errors.New("certificate log is locked or not writable")
	// ErrStoreCorrupt means the persisted log could not be parsed.
	ErrStoreCorrupt = errors.New("certificate log is corrupt")
)

// CertificateRepository is the append-only certificate log.
// No business logic here; implementations only persist and scan records.
type CertificateRepository interface {
	// Append stores one record. ID and CreatedAt are generated when empty.
	// qrImage is the PNG referenced by cert.QRCode; backends that can embed
	// it (the xlsx log) do so, others ignore it.
	Append(ctx context.Context, cert *model.Certificate, qrImage []byte) (*model.Certificate, error)

	// FindByDigest returns the first record, in insertion order, whose digest
	// equals digest exactly. It returns (nil, nil) when nothing matches or the
	// log does not exist yet.
	FindByDigest(ctx context.Context, digest string) (*model.Certificate, error)

	// List returns records in insertion order with a total count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Certificate], error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}

// Fill returns a copy of cert with a fresh ID and a creation time when they
// are missing. Times are truncated to whole seconds, the log's resolution.
func Fill(cert *model.Certificate, now time.Time) model.Certificate {
	rec := *cert
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.Truncate(time.Second)
	return rec
}

// Page slices items according to pq. A non-positive limit returns everything
// after the offset.
func Page[T any](items []T, pq PageQuery) []T {
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	if pq.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if pq.Limit > 0 && pq.Offset+pq.Limit < end {
		end = pq.Offset + pq.Limit
	}
	out := make([]T, end-pq.Offset)
	copy(out, items[pq.Offset:end])
	return out
}
