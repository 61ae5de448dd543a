package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certstamp/internal/model"
	"certstamp/internal/repository"
)

func TestCertificateMemory(t *testing.T) {
	ctx := context.Background()
	repo := NewCertificateMemory()

	got, err := repo.FindByDigest(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, got)

	first, err := repo.Append(ctx, &model.Certificate{Name: "a.pdf", Digest: "h1"}, nil)
	require.NoError(t, err)
	second, err := repo.Append(ctx, &model.Certificate{Name: "b.pdf", Digest: "h1"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err = repo.FindByDigest(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "a.pdf", got.Name)

	page, err := repo.List(ctx, repository.PageQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)
}

func TestCertificateMemory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCertificateMemory().Append(ctx, &model.Certificate{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
