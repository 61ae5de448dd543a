package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"certstamp/internal/database/migration"
	"certstamp/internal/model"
	"certstamp/internal/repository"
)

func newRepo(t *testing.T) (*CertificateSQLite, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.EnsureMigrated(context.Background(), db, migration.SQLite, nil))

	repo := NewCertificateSQLite(db)
	clock := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return repo, db
}

func TestCertificateSQLite_AppendAndFind(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	got, err := repo.FindByDigest(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, got)

	first, err := repo.Append(ctx, &model.Certificate{Name: "a.pdf", Digest: "h1", QRCode: "qr/qr_a.png"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = repo.Append(ctx, &model.Certificate{Name: "b.pdf", Digest: "h1"}, nil)
	require.NoError(t, err)

	got, err = repo.FindByDigest(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "a.pdf", got.Name)
	assert.Equal(t, "qr/qr_a.png", got.QRCode)
	assert.Equal(t, "2026-05-04 12:01:00", got.Date())

	got, err = repo.FindByDigest(ctx, "H1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCertificateSQLite_List(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		_, err := repo.Append(ctx, &model.Certificate{Name: n, Digest: n}, nil)
		require.NoError(t, err)
	}

	res, err := repo.List(ctx, repository.PageQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "b", res.Items[0].Name)
	assert.Equal(t, "c", res.Items[1].Name)

	res, err = repo.List(ctx, repository.PageQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
}

func TestCertificateSQLite_CorruptTimestamp(t *testing.T) {
	repo, db := newRepo(t)
	_, err := db.Exec(`INSERT INTO certificates (id, name, digest, created_at) VALUES ('x', 'n', 'h9', 'yesterday')`)
	require.NoError(t, err)

	_, err = repo.FindByDigest(context.Background(), "h9")
	assert.ErrorIs(t, err, repository.ErrStoreCorrupt)
}

func TestCertificateSQLite_Ping(t *testing.T) {
	repo, db := newRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
	db.Close()
	assert.Error(t, repo.Ping(context.Background()))
}

func TestCertificateSQLite_AppendWhileLocked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "certs.db")

	holder, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { holder.Close() })
	require.NoError(t, migration.EnsureMigrated(ctx, holder, migration.SQLite, nil))

	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.ExecContext(ctx, "BEGIN EXCLUSIVE")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = conn.ExecContext(ctx, "ROLLBACK") })

	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewCertificateSQLite(db).Append(ctx, &model.Certificate{Name: "a.pdf", Digest: "h1"}, nil)
	assert.ErrorIs(t, err, repository.ErrStoreLocked)
}

func TestClassify(t *testing.T) {
	plain := errors.New("constraint failed")
	assert.Equal(t, plain, classify(plain))
	assert.Nil(t, classify(nil))
}
