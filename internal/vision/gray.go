package vision

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// ToGray converts any raster to an 8-bit grayscale image anchored at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Crop copies r out of img, clamped to its bounds. The result is anchored at (0,0).
func Crop(img *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := img.Pix[img.PixOffset(r.Min.X, r.Min.Y+y):]
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], src[:r.Dx()])
	}
	return dst
}
