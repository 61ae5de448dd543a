package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"certstamp/internal/model"
	"certstamp/internal/repository"
)

// CertificateSQLite keeps the certificate log in a single-file SQLite database.
// created_at is stored as RFC3339 text; seq gives insertion order.
type CertificateSQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewCertificateSQLite wraps an open database that already has the
// certificates table (see migration.EnsureMigrated).
func NewCertificateSQLite(db *sql.DB) *CertificateSQLite {
	return &CertificateSQLite{db: db, now: time.Now}
}

var _ repository.CertificateRepository = (*CertificateSQLite)(nil)

func (r *CertificateSQLite) Append(ctx context.Context, cert *model.Certificate, _ []byte) (*model.Certificate, error) {
	rec := repository.Fill(cert, r.now().UTC())
	const q = `INSERT INTO certificates (id, name, digest, qr_code, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.Name,
		rec.Digest,
		rec.QRCode,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert certificate: %w", classify(err))
	}
	return &rec, nil
}

// classify turns busy, locked and read-only results into ErrStoreLocked.
func classify(err error) error {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_READONLY:
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	return err
}

func (r *CertificateSQLite) FindByDigest(ctx context.Context, digest string) (*model.Certificate, error) {
	const q = `
		SELECT id, name, digest, qr_code, created_at
		FROM certificates
		WHERE digest = ?
		ORDER BY seq ASC
		LIMIT 1
	`
	c, err := scan(r.db.QueryRowContext(ctx, q, digest))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *CertificateSQLite) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Certificate], error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&total); err != nil {
		return nil, err
	}

	limit := pq.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	const q = `
		SELECT id, name, digest, qr_code, created_at
		FROM certificates
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, q, limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Certificate, 0)
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Certificate]{Items: items, Total: total}, nil
}

func (r *CertificateSQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*model.Certificate, error) {
	var (
		c       model.Certificate
		created string
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Digest, &c.QRCode, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at %q", repository.ErrStoreCorrupt, created)
	}
	c.CreatedAt = t
	return &c, nil
}
