package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrImageTooLarge   = errors.New("image exceeds size limit")
	ErrImageTooSmall   = errors.New("image below minimum dimensions")
	ErrImageUnreadable = errors.New("image could not be decoded")
)

// ImageSource is anything a raster can be read from: raw bytes, a file path or a stored object.
type ImageSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// BytesSource serves an in-memory upload.
type BytesSource []byte

func (b BytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b BytesSource) String() string { return fmt.Sprintf("bytes(%d)", len(b)) }

// FileSource reads from a path on local disk.
type FileSource string

func (f FileSource) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f FileSource) String() string { return string(f) }

// ObjectGetter is satisfied by storage.MinIOStore.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ObjectSource reads a stored object by key.
type ObjectSource struct {
	Store ObjectGetter
	Key   string
}

func (o ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := o.Store.GetObject(ctx, o.Key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o ObjectSource) String() string { return "object:" + o.Key }

// Intake decodes and validates incoming images.
type Intake struct {
	MinSize  int   // minimum width and height in pixels, 0 disables
	MaxBytes int64 // maximum encoded size, 0 disables
}

// Load reads src fully and decodes it to grayscale.
func (in Intake) Load(ctx context.Context, src ImageSource) (*image.Gray, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if in.MaxBytes > 0 {
		r = io.LimitReader(rc, in.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	return in.Decode(data)
}

// Decode checks the byte and dimension limits before decoding the full raster.
func (in Intake) Decode(data []byte) (*image.Gray, error) {
	if in.MaxBytes > 0 && int64(len(data)) > in.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrImageTooLarge, len(data), in.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	if cfg.Width < in.MinSize || cfg.Height < in.MinSize {
		return nil, fmt.Errorf("%w: %dx%d < %dx%d", ErrImageTooSmall, cfg.Width, cfg.Height, in.MinSize, in.MinSize)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	return ToGray(img), nil
}
