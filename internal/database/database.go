// Package database opens the SQL log stores. Every driver is wrapped with
// otelsql so queries show up as spans under the calling request.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
)

// pingTimeout bounds the connectivity check done on open.
const pingTimeout = 5 * time.Second

var sqlOpen = sql.Open

// pool holds database/sql pool limits. Zero values keep the driver default.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func (p pool) apply(db *sql.DB) {
	if p.maxOpen > 0 {
		db.SetMaxOpenConns(p.maxOpen)
	}
	if p.maxIdle > 0 {
		db.SetMaxIdleConns(p.maxIdle)
	}
	if p.maxLifetime > 0 {
		db.SetConnMaxLifetime(p.maxLifetime)
	}
}

// open registers an otelsql wrapper around driver, opens dsn through it and
// pings. The handle is closed again when the ping fails.
func open(ctx context.Context, driver, dsn string, p pool, opts ...otelsql.Option) (*sql.DB, error) {
	name, err := otelsql.Register(driver, opts...)
	if err != nil {
		return nil, fmt.Errorf("register otelsql %s: %w", driver, err)
	}

	db, err := sqlOpen(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	p.apply(db)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func system(name string) otelsql.Option {
	return otelsql.WithAttributes(attribute.String("db.system", name))
}
