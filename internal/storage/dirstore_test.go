package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.PutObject(ctx, SampleKey(7, "a"), []byte("one"), "image/png"))
	require.NoError(t, s.PutObject(ctx, SampleKey(7, "b"), []byte("two"), "image/png"))
	require.NoError(t, s.PutObject(ctx, "models/CURRENT", []byte("x"), "text/plain"))

	data, err := s.GetObject(ctx, "samples/7/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	keys, err := s.ListObjects(ctx, "samples/7/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"samples/7/a.png", "samples/7/b.png"}, keys)

	require.NoError(t, s.DeleteObject(ctx, "samples/7/a.png"))
	require.NoError(t, s.DeleteObject(ctx, "samples/7/a.png"))
	_, err = s.GetObject(ctx, "samples/7/a.png")
	require.ErrorIs(t, err, ErrObjectNotFound)

	_, err = s.GetObject(ctx, "../escape")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrObjectNotFound)
	require.ErrorIs(t, err, ErrInvalidKey)
}
