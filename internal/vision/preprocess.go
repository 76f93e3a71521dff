package vision

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

var ErrEmptyImage = errors.New("empty image")

// Preprocessor maps a face crop of any size to the canonical form used by
// both training and matching: Size×Size, histogram-equalised, Gaussian-blurred.
type Preprocessor struct {
	Size   int
	Kernel int // odd, 1 disables the blur
}

func NewPreprocessor(size, kernel int) *Preprocessor {
	if size <= 0 {
		size = 200
	}
	if kernel <= 0 {
		kernel = 5
	}
	if kernel%2 == 0 {
		kernel++
	}
	return &Preprocessor{Size: size, Kernel: kernel}
}

func (p *Preprocessor) Process(src *image.Gray) (*image.Gray, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	dst := image.NewGray(image.Rect(0, 0, p.Size, p.Size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	equalize(dst)
	if p.Kernel > 1 {
		dst = gaussianBlur(dst, p.Kernel)
	}
	return dst, nil
}

// equalize flattens the intensity histogram in place.
func equalize(img *image.Gray) {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)

	cdfMin, cum := 0, 0
	var cdf [256]int
	for i, n := range hist {
		cum += n
		cdf[i] = cum
		if cdfMin == 0 && cum > 0 {
			cdfMin = cum
		}
	}
	denom := total - cdfMin
	if denom <= 0 {
		return
	}

	var lut [256]uint8
	for i := range lut {
		v := float64(cdf[i]-cdfMin) * 255 / float64(denom)
		lut[i] = uint8(math.Round(math.Max(0, v)))
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
}

// gaussianKernel uses the same sigma heuristic as OpenCV for a zero sigma.
func gaussianKernel(k int) []float64 {
	sigma := 0.3*(float64(k-1)*0.5-1) + 0.8
	w := make([]float64, k)
	half := k / 2
	sum := 0.0
	for i := range w {
		x := float64(i - half)
		w[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// reflect101 mirrors out-of-range indices without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func gaussianBlur(src *image.Gray, k int) *image.Gray {
	w := gaussianKernel(k)
	half := k / 2
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()

	tmp := make([]float64, width*height)
	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < width; x++ {
			acc := 0.0
			for i, wi := range w {
				acc += wi * float64(row[reflect101(x+i-half, width)])
			}
			tmp[y*width+x] = acc
		}
	}

	dst := image.NewGray(b)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for i, wi := range w {
				acc += wi * tmp[reflect101(y+i-half, height)*width+x]
			}
			dst.Pix[y*dst.Stride+x] = uint8(math.Min(255, math.Round(acc)))
		}
	}
	return dst
}
