package recognition

import "image"

const lbpBins = 256

// lbpCodes computes the 3×3 local binary pattern of every interior pixel.
// Neighbours are visited clockwise from the top-left; a neighbour at least
// as bright as the centre sets its bit.
func lbpCodes(img *image.Gray) (codes []uint8, w, h int) {
	b := img.Bounds()
	w, h = b.Dx()-2, b.Dy()-2
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	codes = make([]uint8, w*h)
	px := func(x, y int) uint8 { return img.Pix[(y)*img.Stride+x] }

	for y := 1; y <= h; y++ {
		for x := 1; x <= w; x++ {
			c := px(x, y)
			var code uint8
			if px(x-1, y-1) >= c {
				code |= 1 << 7
			}
			if px(x, y-1) >= c {
				code |= 1 << 6
			}
			if px(x+1, y-1) >= c {
				code |= 1 << 5
			}
			if px(x+1, y) >= c {
				code |= 1 << 4
			}
			if px(x+1, y+1) >= c {
				code |= 1 << 3
			}
			if px(x, y+1) >= c {
				code |= 1 << 2
			}
			if px(x-1, y+1) >= c {
				code |= 1 << 1
			}
			if px(x-1, y) >= c {
				code |= 1
			}
			codes[(y-1)*w+(x-1)] = code
		}
	}
	return codes, w, h
}

// spatialHistogram concatenates per-cell LBP histograms over a gridX×gridY
// partition. Each cell histogram sums to 1.
func spatialHistogram(img *image.Gray, gridX, gridY int) []float32 {
	codes, w, h := lbpCodes(img)
	out := make([]float32, gridX*gridY*lbpBins)
	if w == 0 {
		return out
	}
	cellW, cellH := w/gridX, h/gridY
	if cellW == 0 || cellH == 0 {
		return out
	}

	for gy := 0; gy < gridY; gy++ {
		for gx := 0; gx < gridX; gx++ {
			hist := out[(gy*gridX+gx)*lbpBins : (gy*gridX+gx+1)*lbpBins]
			for y := gy * cellH; y < (gy+1)*cellH; y++ {
				row := codes[y*w:]
				for x := gx * cellW; x < (gx+1)*cellW; x++ {
					hist[row[x]]++
				}
			}
			n := float32(cellW * cellH)
			for i := range hist {
				hist[i] /= n
			}
		}
	}
	return out
}

// chiSquare is the symmetric chi-square distance 2·Σ(a−b)²/(a+b).
func chiSquare(a, b []float32) float64 {
	var sum float64
	for i := range a {
		s := float64(a[i]) + float64(b[i])
		if s == 0 {
			continue
		}
		d := float64(a[i]) - float64(b[i])
		sum += d * d / s
	}
	return 2 * sum
}
