package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := st.Put(ctx, "qr/qr_1a2b3c4d.png", bytes.NewReader([]byte("png-bytes")), PutObjectOptions{Size: 9, ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "image/png", info.ContentType)
	assert.FileExists(t, filepath.Join(dir, "qr", "qr_1a2b3c4d.png"))

	rc, got, err := st.Get(ctx, "qr/qr_1a2b3c4d.png")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, int64(9), got.Size)

	require.NoError(t, st.Delete(ctx, "qr/qr_1a2b3c4d.png"))
	_, err = os.Stat(filepath.Join(dir, "qr", "qr_1a2b3c4d.png"))
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, st.Delete(ctx, "qr/qr_1a2b3c4d.png"))
}

func TestLocalStorage_Missing(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, _, err = st.Get(context.Background(), "qr/none.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../evil.png", "qr/../../evil.png"} {
		_, err := st.Put(ctx, key, bytes.NewReader(nil), PutObjectOptions{})
		assert.Error(t, err, key)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = st.Put(ctx, "qr/a.png", bytes.NewReader([]byte("x")), PutObjectOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
