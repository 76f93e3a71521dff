package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Narrow band of intensities so equalisation has work to do.
			img.Pix[y*img.Stride+x] = uint8(100 + (x+y)%40)
		}
	}
	return img
}

func TestPreprocessDeterministic(t *testing.T) {
	p := NewPreprocessor(200, 5)
	src := gradient(137, 211)

	a, err := p.Process(src)
	require.NoError(t, err)
	b, err := p.Process(src)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 200, 200), a.Bounds())
	assert.Equal(t, a.Pix, b.Pix)
}

func TestPreprocessEqualisesContrast(t *testing.T) {
	out, err := NewPreprocessor(200, 1).Process(gradient(200, 200))
	require.NoError(t, err)

	lo, hi := uint8(255), uint8(0)
	for _, v := range out.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	assert.Equal(t, uint8(0), lo)
	assert.Equal(t, uint8(255), hi)
}

func TestPreprocessRejectsEmpty(t *testing.T) {
	_, err := NewPreprocessor(200, 5).Process(image.NewGray(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestPreprocessorEvenKernelRoundsUp(t *testing.T) {
	assert.Equal(t, 5, NewPreprocessor(0, 4).Kernel)
	assert.Equal(t, 200, NewPreprocessor(0, 4).Size)
}

func TestGaussianKernelSumsToOne(t *testing.T) {
	var sum float64
	for _, w := range gaussianKernel(5) {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestBlurKeepsFlatImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 77
	}
	out := gaussianBlur(img, 5)
	for _, v := range out.Pix {
		require.Equal(t, uint8(77), v)
	}
}
