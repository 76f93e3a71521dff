package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ingest"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/internal/vision/cascade"
)

var (
	captureDevice    int
	captureURL       string
	captureFPS       int
	captureMaxFrames int
	captureOperator  string
	captureLoop      bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Mark attendance from a webcam or network stream",
	Long: `Reads frames until one contains a face, recognises it and marks attendance.
Frames come from the local camera (--device) or, with --url, from an RTSP/HTTP
stream decoded by ffmpeg. Ctrl+C stops the loop and releases the device.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureDevice, "device", -1, "camera index (default vision.camera_device)")
	captureCmd.Flags().StringVar(&captureURL, "url", "", "stream URL to read through ffmpeg instead of a camera")
	captureCmd.Flags().IntVar(&captureFPS, "fps", 5, "frames per second sampled from --url")
	captureCmd.Flags().IntVar(&captureMaxFrames, "max-frames", 0, "give up after this many frames (0 = until cancelled)")
	captureCmd.Flags().StringVar(&captureOperator, "operator", "", "recorded-by value for marks")
	captureCmd.Flags().BoolVar(&captureLoop, "loop", false, "keep capturing after each attempt")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.holder.Current(); err != nil {
		return err
	}

	locator, err := cascade.NewLocator(rt.cfg.Vision)
	if err != nil {
		return err
	}
	defer locator.Close()

	l, err := rt.ledger()
	if err != nil {
		return err
	}
	recognizer := recognition.NewRecognizer(rt.holder, app.NewPreprocessor(rt.cfg.Vision), recognition.NewPolicy(rt.cfg.Recognition))
	gw := gateway.New(app.NewIntake(rt.cfg.Vision), locator, recognizer, l)

	device := captureDevice
	if device < 0 {
		device = rt.cfg.Vision.CameraDevice
	}

	for {
		var src vision.FrameSource
		if captureURL != "" {
			src, err = ingest.OpenStream(ctx, captureURL, captureFPS, 640)
		} else {
			src, err = cascade.OpenWebcam(device)
		}
		if err != nil {
			return err
		}

		res, err := vision.CaptureFace(ctx, src, locator, captureMaxFrames)
		switch {
		case errors.Is(err, vision.ErrNoFaceDetected):
			fmt.Fprintf(cmd.OutOrStdout(), "%s after %d frames\n", gateway.StatusNoFace, res.Frames)
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		default:
			out, err := gw.RecognizeCapture(ctx, res, captureOperator)
			if err != nil {
				return err
			}
			printOutcome(cmd, out)
		}

		if !captureLoop {
			return nil
		}
	}
}

func printOutcome(cmd *cobra.Command, out gateway.Outcome) {
	w := cmd.OutOrStdout()
	switch {
	case out.Record != nil && out.Identity != nil:
		fmt.Fprintf(w, "%s: %s (%s) %s at %s\n", out.Status, out.Identity.Name, out.Identity.ExternalKey,
			out.Record.Status, out.Record.MarkedAt.Format("15:04:05"))
	case out.Match != nil:
		fmt.Fprintf(w, "%s: distance %.2f confidence %.1f%%\n", out.Status, out.Match.Distance, out.Match.Confidence)
	default:
		fmt.Fprintln(w, out.Status)
	}
}
