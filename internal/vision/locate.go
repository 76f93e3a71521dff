package vision

import (
	"errors"
	"image"
	"iter"
)

var ErrNoFaceDetected = errors.New("no face detected")

// Locator yields face candidates for one image. The sequence is single-pass.
type Locator interface {
	Locate(img *image.Gray) iter.Seq[image.Rectangle]
}

// ChooseFace consumes candidates and keeps the largest box. Equal areas fall
// back to the top-most, then left-most box so the choice never depends on
// detection order.
func ChooseFace(candidates iter.Seq[image.Rectangle]) (image.Rectangle, bool) {
	var best image.Rectangle
	found := false
	for r := range candidates {
		if r.Empty() {
			continue
		}
		if !found || betterFace(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func betterFace(a, b image.Rectangle) bool {
	aa, ab := a.Dx()*a.Dy(), b.Dx()*b.Dy()
	if aa != ab {
		return aa > ab
	}
	if a.Min.Y != b.Min.Y {
		return a.Min.Y < b.Min.Y
	}
	return a.Min.X < b.Min.X
}

// LocateFace runs loc over img and crops the chosen face.
func LocateFace(loc Locator, img *image.Gray) (*image.Gray, image.Rectangle, error) {
	r, ok := ChooseFace(loc.Locate(img))
	if !ok {
		return nil, image.Rectangle{}, ErrNoFaceDetected
	}
	return Crop(img, r), r, nil
}

// StaticLocator replays a fixed list of rectangles. It is used for
// pre-cropped inputs and in tests.
type StaticLocator []image.Rectangle

func (s StaticLocator) Locate(*image.Gray) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		for _, r := range s {
			if !yield(r) {
				return
			}
		}
	}
}

// WholeImage treats the entire input as the face region.
type WholeImage struct{}

func (WholeImage) Locate(img *image.Gray) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		if !img.Bounds().Empty() {
			yield(img.Bounds())
		}
	}
}
