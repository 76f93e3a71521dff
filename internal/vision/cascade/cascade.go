// Package cascade binds the Haar cascade face locator and the webcam frame
// source to OpenCV through gocv. It is kept apart from package vision so
// that everything else builds and tests without cgo.
package cascade

import (
	"context"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/your-org/attendance/internal/config"
)

// Locator runs a multi-scale sliding-window Haar cascade.
type Locator struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

func NewLocator(cfg config.VisionConfig) (*Locator, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s", cfg.CascadePath)
	}
	return &Locator{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinFaceSize, cfg.MinFaceSize),
	}, nil
}

// Locate defers detection until the sequence is first ranged over.
func (l *Locator) Locate(img *image.Gray) iter.Seq[image.Rectangle] {
	return func(yield func(image.Rectangle) bool) {
		for _, r := range l.detect(img) {
			if !yield(r) {
				return
			}
		}
	}
}

func (l *Locator) detect(img *image.Gray) []image.Rectangle {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		slog.Warn("convert frame to mat", "error", err)
		return nil
	}
	defer mat.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classifier.DetectMultiScaleWithParams(mat, l.scaleFactor, l.minNeighbors, 0, l.minSize, image.Point{})
}

func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classifier.Close()
}

// Webcam reads frames from a local capture device.
type Webcam struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

func OpenWebcam(device int) (*Webcam, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	return &Webcam{capture: capture, frame: gocv.NewMat()}, nil
}

func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := w.capture.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("camera returned no frame")
	}
	img, err := w.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("decode camera frame: %w", err)
	}
	return img, nil
}

func (w *Webcam) Close() error {
	_ = w.frame.Close()
	return w.capture.Close()
}
