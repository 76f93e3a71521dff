package handlers

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/pkg/dto"
)

// OperatorHeader names the person or device recording a mark.
const OperatorHeader = "X-Operator"

func operator(c *gin.Context) string {
	if op := strings.TrimSpace(c.GetHeader(OperatorHeader)); op != "" {
		return op
	}
	return ledger.DefaultRecorder
}

// uploadSource adapts a multipart upload to vision.ImageSource.
type uploadSource struct {
	fh *multipart.FileHeader
}

func (u uploadSource) Open(context.Context) (io.ReadCloser, error) {
	return u.fh.Open()
}

func (u uploadSource) String() string { return "upload:" + u.fh.Filename }

func internalError(c *gin.Context, err error) {
	slog.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// statusCode maps a gateway outcome to the HTTP response code.
func statusCode(s gateway.Status) int {
	switch s {
	case gateway.StatusMarked:
		return http.StatusCreated
	case gateway.StatusAlreadyMarked:
		return http.StatusOK
	case gateway.StatusUnknownIdentity:
		return http.StatusNotFound
	case gateway.StatusMalformedClaim, gateway.StatusInvalidImage:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeOutcome(c *gin.Context, out gateway.Outcome, loc *time.Location) {
	resp := dto.MarkResponse{Status: string(out.Status), Detail: out.Detail}
	if out.Identity != nil {
		resp.ExternalKey = out.Identity.ExternalKey
		resp.Name = out.Identity.Name
	}
	if out.Record != nil {
		r := recordResponse(*out.Record, loc)
		resp.Record = &r
	}
	if out.Match != nil {
		resp.Match = &dto.MatchResponse{
			Label:        out.Match.Label,
			Distance:     out.Match.Distance,
			Confidence:   out.Match.Confidence,
			Tier:         string(out.Match.Tier),
			ModelVersion: out.Match.ModelVersion,
		}
	}
	if !out.Face.Empty() {
		resp.Face = boxResponse(out.Face)
	}
	c.JSON(statusCode(out.Status), resp)
}

func boxResponse(r image.Rectangle) *dto.BoxResponse {
	return &dto.BoxResponse{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func recordResponse(r models.AttendanceRecord, loc *time.Location) dto.RecordResponse {
	return dto.RecordResponse{
		ID:         r.ID,
		Date:       r.DateString(),
		Time:       r.MarkedAt.In(loc).Format(time.TimeOnly),
		Status:     string(r.Status),
		Method:     string(r.Method),
		RecordedBy: r.RecordedBy,
	}
}

func identityResponse(id *models.Identity, samples int) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:          id.ID,
		ExternalKey: id.ExternalKey,
		Name:        id.Name,
		Email:       id.Email,
		Phone:       id.Phone,
		Department:  id.Department,
		SampleCount: samples,
		CreatedAt:   id.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// imageRejected reports whether err is a client-side image problem.
func imageRejected(err error) bool {
	return errors.Is(err, vision.ErrImageTooLarge) ||
		errors.Is(err, vision.ErrImageTooSmall) ||
		errors.Is(err, vision.ErrImageUnreadable) ||
		errors.Is(err, vision.ErrNoFaceDetected)
}

func modelStatus(h *recognition.Holder) dto.ModelStatusResponse {
	m, err := h.Current()
	if err != nil {
		return dto.ModelStatusResponse{}
	}
	return dto.ModelStatusResponse{
		Trained:   true,
		Version:   m.Version,
		Labels:    m.LabelCount(),
		Samples:   m.SampleCount(),
		TrainedAt: m.TrainedAt.UTC().Format(time.RFC3339),
	}
}

func scheduleLoc(l *ledger.Ledger) *time.Location {
	if loc := l.Schedule().Location; loc != nil {
		return loc
	}
	return time.Local
}
