package recognition

import (
	"context"
	"image"
	"math"
	"math/rand"
	"sync"

	"github.com/your-org/attendance/internal/storage"
)

// texture renders a deterministic per-label pattern with a little seeded noise.
func texture(label int64, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 160, 160))
	fx := 0.09 + 0.06*float64(label)
	fy := 0.04 * float64(label%3+1)
	fr := 0.05 + 0.03*float64(label)
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			r := math.Hypot(float64(x-80), float64(y-80))
			v := 128 +
				55*math.Sin(fx*float64(x)+fy*float64(y)) +
				35*math.Cos(fr*r) +
				float64(rng.Intn(5)-2)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return img
}

type staticSource struct {
	mu      sync.Mutex
	samples []LabeledImage
	err     error
}

func (s *staticSource) set(samples []LabeledImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = samples
}

func (s *staticSource) LoadSamples(context.Context) ([]LabeledImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples, s.err
}

func corpus(labels []int64, perLabel int) []LabeledImage {
	var out []LabeledImage
	for _, l := range labels {
		for i := 0; i < perLabel; i++ {
			out = append(out, LabeledImage{Label: l, Image: texture(l, l*100+int64(i))})
		}
	}
	return out
}

type memObjects struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objs: map[string][]byte{}}
}

func (m *memObjects) PutObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}
