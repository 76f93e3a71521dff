package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseFaceLargest(t *testing.T) {
	r, ok := ChooseFace(StaticLocator{
		image.Rect(0, 0, 40, 40),
		image.Rect(50, 50, 130, 130),
		image.Rect(10, 10, 70, 70),
	}.Locate(nil))
	require.True(t, ok)
	assert.Equal(t, image.Rect(50, 50, 130, 130), r)
}

func TestChooseFaceTieBreak(t *testing.T) {
	r, ok := ChooseFace(StaticLocator{
		image.Rect(60, 20, 100, 60),
		image.Rect(10, 20, 50, 60),
		image.Rect(0, 40, 40, 80),
	}.Locate(nil))
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 20, 50, 60), r)
}

func TestChooseFaceNone(t *testing.T) {
	_, ok := ChooseFace(StaticLocator{}.Locate(nil))
	assert.False(t, ok)

	_, ok = ChooseFace(StaticLocator{image.Rect(5, 5, 5, 9)}.Locate(nil))
	assert.False(t, ok)
}

func TestLocateFaceCrops(t *testing.T) {
	img := gradient(120, 120)
	face, r, err := LocateFace(StaticLocator{image.Rect(100, 100, 160, 160)}, img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(100, 100, 160, 160), r)
	assert.Equal(t, image.Rect(0, 0, 20, 20), face.Bounds())
	assert.Equal(t, img.GrayAt(105, 110).Y, face.GrayAt(5, 10).Y)

	_, _, err = LocateFace(StaticLocator{}, img)
	require.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestToGrayReanchors(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 30))
	g := ToGray(src)
	assert.Equal(t, image.Rect(0, 0, 10, 20), g.Bounds())

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.Same(t, gray, ToGray(gray))
}
