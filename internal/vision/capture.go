package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
)

// FrameSource is a live camera or stream. Close releases the device.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

type CaptureResult struct {
	Frame  *image.Gray
	Face   image.Rectangle
	Frames int
}

// CaptureFace reads frames until one contains a face, the source ends,
// maxFrames is reached (0 means unbounded) or ctx is cancelled.
// src is closed on every return path.
func CaptureFace(ctx context.Context, src FrameSource, loc Locator, maxFrames int) (res CaptureResult, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Warn("release frame source", "error", cerr)
		}
	}()

	for maxFrames <= 0 || res.Frames < maxFrames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frame, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return res, ErrNoFaceDetected
		}
		if err != nil {
			return res, fmt.Errorf("read frame: %w", err)
		}
		res.Frames++

		gray := ToGray(frame)
		if r, ok := ChooseFace(loc.Locate(gray)); ok {
			res.Frame = gray
			res.Face = r
			return res, nil
		}
	}
	return res, ErrNoFaceDetected
}
