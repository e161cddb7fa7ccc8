package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/store"
	"github.com/nexfin/pesitd/pkg/store/local"
)

func TestWriterTruncateThenAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.dat")
	s := local.New()
	ctx := context.Background()

	w, err := s.Writer(ctx, path, false)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello "))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = s.Writer(ctx, path, true)
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestReaderAtOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.dat")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	s := local.New()
	r, err := s.Reader(context.Background(), path, 5)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "56789", string(data))
}

func TestExistsAndNotFound(t *testing.T) {
	dir := t.TempDir()
	s := local.New()
	ctx := context.Background()

	ok, err := s.Exists(ctx, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Size(ctx, filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestJoinUnderRootRejectsTraversal(t *testing.T) {
	_, err := local.JoinUnderRoot("/data/in", "../../etc/passwd")
	require.Error(t, err)

	p, err := local.JoinUnderRoot("/data/in", "invoices/2026.dat")
	require.NoError(t, err)
	require.Equal(t, "/data/in/invoices/2026.dat", p)
}

func TestMkdirAllAndDeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := local.New()
	ctx := context.Background()

	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, s.MkdirAll(ctx, nested))

	path := filepath.Join(nested, "file.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, s.Delete(ctx, path))
	require.NoError(t, s.Delete(ctx, path)) // idempotent
}
