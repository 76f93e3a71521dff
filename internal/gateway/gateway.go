// Package gateway is the single entry point that turns a face image or an
// identity claim into a ledger mark.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/vision"
)

// SelfRecorder tags marks made through a self-asserted claim.
const SelfRecorder = "Self"

type Status string

const (
	StatusMarked          Status = "marked"
	StatusAlreadyMarked   Status = "already_marked"
	StatusNoFace          Status = "no_face_detected"
	StatusLowConfidence   Status = "below_confidence_threshold"
	StatusUnknownIdentity Status = "unknown_identity"
	StatusMalformedClaim  Status = "malformed_claim"
	StatusInvalidImage    Status = "invalid_image"
)

// Outcome is the structured result of one attempt. Match is set on the face
// path once the classifier ran; Record is set for marked and already-marked.
type Outcome struct {
	Status   Status
	Identity *models.Identity
	Record   *models.AttendanceRecord
	Match    *recognition.MatchResult
	Face     image.Rectangle
	Detail   string
}

type Gateway struct {
	intake     vision.Intake
	locator    vision.Locator
	recognizer *recognition.Recognizer
	ledger     *ledger.Ledger
}

func New(intake vision.Intake, locator vision.Locator, recognizer *recognition.Recognizer, l *ledger.Ledger) *Gateway {
	return &Gateway{intake: intake, locator: locator, recognizer: recognizer, ledger: l}
}

func isImageRejection(err error) bool {
	return errors.Is(err, vision.ErrImageTooLarge) ||
		errors.Is(err, vision.ErrImageTooSmall) ||
		errors.Is(err, vision.ErrImageUnreadable)
}

// RecognizeAndMark runs the face path on an image. Only ErrModelNotTrained
// and storage failures come back as errors.
func (g *Gateway) RecognizeAndMark(ctx context.Context, src vision.ImageSource, operator string) (Outcome, error) {
	img, err := g.intake.Load(ctx, src)
	if isImageRejection(err) {
		observability.RecognitionOutcomes.WithLabelValues(string(StatusInvalidImage)).Inc()
		return Outcome{Status: StatusInvalidImage, Detail: err.Error()}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load image: %w", err)
	}
	return g.RecognizeFrame(ctx, img, operator)
}

// RecognizeFrame runs the face path on an already decoded frame.
func (g *Gateway) RecognizeFrame(ctx context.Context, img *image.Gray, operator string) (Outcome, error) {
	out, err := g.recognizeFrame(ctx, img, operator)
	if err == nil {
		observability.RecognitionOutcomes.WithLabelValues(string(out.Status)).Inc()
	}
	return out, err
}

func (g *Gateway) recognizeFrame(ctx context.Context, img *image.Gray, operator string) (Outcome, error) {
	start := time.Now()
	face, rect, err := vision.LocateFace(g.locator, img)
	observability.StageDuration.WithLabelValues("locate").Observe(time.Since(start).Seconds())
	if errors.Is(err, vision.ErrNoFaceDetected) {
		return Outcome{Status: StatusNoFace}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return g.recognizeFace(ctx, face, rect, operator)
}

// RecognizeCapture runs the face path on a face already located by a capture loop.
func (g *Gateway) RecognizeCapture(ctx context.Context, res vision.CaptureResult, operator string) (Outcome, error) {
	if res.Frame == nil || res.Face.Empty() {
		observability.RecognitionOutcomes.WithLabelValues(string(StatusNoFace)).Inc()
		return Outcome{Status: StatusNoFace}, nil
	}
	out, err := g.recognizeFace(ctx, vision.Crop(res.Frame, res.Face), res.Face, operator)
	if err == nil {
		observability.RecognitionOutcomes.WithLabelValues(string(out.Status)).Inc()
	}
	return out, err
}

func (g *Gateway) recognizeFace(ctx context.Context, face *image.Gray, rect image.Rectangle, operator string) (Outcome, error) {
	res, err := g.recognizer.Recognize(face)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Match: &res, Face: rect}
	if !res.Accepted {
		slog.Debug("face rejected", "distance", res.Distance, "tier", res.Tier)
		out.Status = StatusLowConfidence
		return out, nil
	}

	mr, err := g.ledger.Mark(ctx, ledger.ByID(res.Label), models.MethodFace, operator, g.ledger.Now())
	if err != nil {
		return Outcome{}, err
	}
	return merge(out, mr), nil
}

// MarkByClaim runs the token path. The classifier is bypassed and the mark
// is recorded as Token by "Self".
func (g *Gateway) MarkByClaim(ctx context.Context, payload []byte) (Outcome, error) {
	claim, err := ParseClaim(payload)
	if err != nil {
		observability.RecognitionOutcomes.WithLabelValues(string(StatusMalformedClaim)).Inc()
		return Outcome{Status: StatusMalformedClaim, Detail: err.Error()}, nil
	}
	mr, err := g.ledger.Mark(ctx, ledger.ByKey(claim.ExternalKey), models.MethodToken, SelfRecorder, g.ledger.Now())
	if err != nil {
		return Outcome{}, err
	}
	return merge(Outcome{}, mr), nil
}

// MarkManual records an operator's explicit mark.
func (g *Gateway) MarkManual(ctx context.Context, externalKey, operator string) (Outcome, error) {
	mr, err := g.ledger.Mark(ctx, ledger.ByKey(externalKey), models.MethodManual, operator, g.ledger.Now())
	if err != nil {
		return Outcome{}, err
	}
	return merge(Outcome{}, mr), nil
}

func merge(out Outcome, mr ledger.MarkResult) Outcome {
	out.Identity = mr.Identity
	out.Record = mr.Record
	switch mr.Outcome {
	case ledger.Created:
		out.Status = StatusMarked
	case ledger.AlreadyMarked:
		out.Status = StatusAlreadyMarked
	default:
		out.Status = StatusUnknownIdentity
	}
	return out
}
