package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	for in, want := range map[string]string{
		"samples/7/a.png":       "samples/7/a.png",
		"samples//7/./a.png":    "samples/7/a.png",
		"models/../models/CUR":  "models/CUR",
		"models/model-1.gob.gz": "models/model-1.gob.gz",
	} {
		got, err := cleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "/etc/passwd", "..", "../escape", "samples/../../escape", "."} {
		_, err := cleanKey(bad)
		require.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", contentTypeFor("models/CURRENT", "text/plain"))
	assert.Equal(t, "image/png", contentTypeFor(SampleKey(3, "x"), ""))
	assert.Equal(t, "image/jpeg", contentTypeFor("frames/a.jpg", ""))
	assert.Equal(t, "application/gzip", contentTypeFor("models/model-1.gob.gz", ""))
	assert.Equal(t, "application/octet-stream", contentTypeFor("models/CURRENT", ""))
}

func TestSampleKey(t *testing.T) {
	assert.Equal(t, "samples/12/abc.png", SampleKey(12, "abc"))
}
