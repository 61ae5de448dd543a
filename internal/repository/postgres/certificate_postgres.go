package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"certstamp/internal/model"
	"certstamp/internal/repository"
)

// CertificatePostgres is a PostgreSQL implementation of repository.CertificateRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// Insertion order is the seq column.
type CertificatePostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewCertificatePostgres creates a new CertificatePostgres repository.
func NewCertificatePostgres(db *sql.DB) *CertificatePostgres {
	return &CertificatePostgres{db: db, now: time.Now}
}

var _ repository.CertificateRepository = (*CertificatePostgres)(nil)

// Append inserts a certificate row and returns the stored record. The QR image
// lives in object storage; only its key is stored here.
func (r *CertificatePostgres) Append(ctx context.Context, cert *model.Certificate, _ []byte) (*model.Certificate, error) {
	rec := repository.Fill(cert, r.now().UTC())
	const q = `
		INSERT INTO certificates (id, name, digest, qr_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, digest, qr_code, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.Name,
		rec.Digest,
		rec.QRCode,
		rec.CreatedAt,
	)
	var out model.Certificate
	if err := row.Scan(
		&out.ID,
		&out.Name,
		&out.Digest,
		&out.QRCode,
		&out.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert certificate: %w", classify(err))
	}
	return &out, nil
}

// SQLSTATE codes reported when the table cannot be written right now.
var lockedStates = map[string]bool{
	"55P03": true, // lock_not_available
	"40P01": true, // deadlock_detected
	"25006": true, // read_only_sql_transaction
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && lockedStates[pgErr.Code] {
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	return err
}

// FindByDigest returns the earliest certificate with the given digest.
func (r *CertificatePostgres) FindByDigest(ctx context.Context, digest string) (*model.Certificate, error) {
	const q = `
		SELECT id, name, digest, qr_code, created_at
		FROM certificates
		WHERE digest = $1
		ORDER BY seq ASC
		LIMIT 1
	`
	var c model.Certificate
	err := r.db.QueryRowContext(ctx, q, digest).Scan(
		&c.ID,
		&c.Name,
		&c.Digest,
		&c.QRCode,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List returns certificates using LIMIT/OFFSET pagination and a total count.
func (r *CertificatePostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Certificate], error) {
	const qCount = `SELECT COUNT(*) FROM certificates`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, name, digest, qr_code, created_at
		FROM certificates
		ORDER BY seq ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Certificate, 0)
	for rows.Next() {
		var c model.Certificate
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Digest,
			&c.QRCode,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Certificate]{
		Items: items,
		Total: total,
	}, nil
}

// Ping checks database connectivity.
func (r *CertificatePostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
