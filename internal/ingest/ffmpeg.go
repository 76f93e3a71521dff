// Package ingest turns a network camera or video URL into a vision.FrameSource by
// piping it through ffmpeg as a stream of JPEG images.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const maxFrameBytes = 10 * 1024 * 1024

// StreamSource yields decoded frames from an ffmpeg child process.
type StreamSource struct {
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// OpenStream starts ffmpeg against streamURL, sampling fps frames per second
// scaled to width pixels. The process lives until Close or ctx ends.
func OpenStream(ctx context.Context, streamURL string, fps, width int) (*StreamSource, error) {
	if fps <= 0 {
		fps = 5
	}
	if width <= 0 {
		width = 640
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(streamURL, fps, width)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	return newReaderSource(ctx, cancel, stdout, cmd.Wait), nil
}

func ffmpegArgs(streamURL string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(streamURL, "rtsp://"), strings.HasPrefix(streamURL, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	case strings.HasPrefix(streamURL, "http://"), strings.HasPrefix(streamURL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	return append(args,
		"-i", streamURL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// newReaderSource pumps JPEG frames from r. wait, when set, reaps the producer.
func newReaderSource(ctx context.Context, cancel context.CancelFunc, r io.Reader, wait func() error) *StreamSource {
	s := &StreamSource{
		cancel: cancel,
		frames: make(chan []byte),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.frames)
		err := readJPEGFrames(ctx, r, func(frame []byte) error {
			select {
			case s.frames <- frame:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if wait != nil {
			cancel()
			_ = wait()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Read blocks for the next frame. io.EOF marks a clean end of stream.
func (s *StreamSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-s.frames:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		return img, nil
	}
}

// Close stops ffmpeg and waits for the reader goroutine.
func (s *StreamSource) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// readJPEGFrames splits a concatenated MJPEG stream. An initial EOF is
// tolerated for up to 5s while ffmpeg is still connecting.
func readJPEGFrames(ctx context.Context, r io.Reader, emit func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50
	startupRetries := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := findJPEGStart(reader); err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil
			}
			return err
		}

		framesRead++
		if err := emit(frame); err != nil {
			return err
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
