package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/pkg/dto"
)

const maxClaimBytes = 4 << 10

type AttendanceHandler struct {
	gw     *gateway.Gateway
	ledger *ledger.Ledger
	stats  *cache.Cache
}

// NewAttendanceHandler caches statistics for statsTTL; zero disables caching.
func NewAttendanceHandler(gw *gateway.Gateway, l *ledger.Ledger, statsTTL time.Duration) *AttendanceHandler {
	h := &AttendanceHandler{gw: gw, ledger: l}
	if statsTTL > 0 {
		h.stats = cache.New(statsTTL, 2*statsTTL)
	}
	return h
}

func (h *AttendanceHandler) loc() *time.Location {
	return scheduleLoc(h.ledger)
}

// Recognize accepts a multipart "image" upload and runs the face path.
func (h *AttendanceHandler) Recognize(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	out, err := h.gw.RecognizeAndMark(c.Request.Context(), uploadSource{fh: fh}, operator(c))
	if errors.Is(err, recognition.ErrModelNotTrained) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	writeOutcome(c, out, h.loc())
}

// Claim marks attendance from a scanned QR payload (the raw request body).
func (h *AttendanceHandler) Claim(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxClaimBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read claim"})
		return
	}
	out, err := h.gw.MarkByClaim(c.Request.Context(), payload)
	if err != nil {
		internalError(c, err)
		return
	}
	writeOutcome(c, out, h.loc())
}

func (h *AttendanceHandler) Manual(c *gin.Context) {
	var req dto.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.gw.MarkManual(c.Request.Context(), req.ExternalKey, operator(c))
	if err != nil {
		internalError(c, err)
		return
	}
	writeOutcome(c, out, h.loc())
}

func (h *AttendanceHandler) History(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	ident, recs, err := h.ledger.History(c.Request.Context(), c.Param("key"), limit)
	if errors.Is(err, ledger.ErrUnknownIdentity) {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	resp := dto.HistoryResponse{
		ExternalKey: ident.ExternalKey,
		Name:        ident.Name,
		Records:     make([]dto.RecordResponse, 0, len(recs)),
	}
	for _, r := range recs {
		resp.Records = append(resp.Records, recordResponse(r, h.loc()))
	}
	resp.Total = len(resp.Records)
	c.JSON(http.StatusOK, resp)
}

// parseDay reads a YYYY-MM-DD query value as a civil date. Empty yields zero.
func parseDay(c *gin.Context, name string) (time.Time, error) {
	s := c.Query(name)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want YYYY-MM-DD", name)
	}
	return d, nil
}

// report resolves the from/to query range, defaulting to today, and loads it.
// It writes the error response itself and returns ok=false on failure.
func (h *AttendanceHandler) report(c *gin.Context) (rows []models.ReportRow, from, to time.Time, ok bool) {
	from, err := parseDay(c, "from")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, from, to, false
	}
	to, err = parseDay(c, "to")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, from, to, false
	}

	today := h.ledger.Schedule().Date(h.ledger.Now())
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = today
	}
	if to.Before(from) {
		from, to = to, from
	}

	rows, err = h.ledger.Report(c.Request.Context(), from, to)
	if err != nil {
		internalError(c, err)
		return nil, from, to, false
	}
	return rows, from, to, true
}

func (h *AttendanceHandler) Report(c *gin.Context) {
	rows, from, to, ok := h.report(c)
	if !ok {
		return
	}
	resp := dto.ReportResponse{
		From: from.Format(time.DateOnly),
		To:   to.Format(time.DateOnly),
		Rows: make([]dto.ReportRowResponse, 0, len(rows)),
	}
	for _, r := range rows {
		resp.Rows = append(resp.Rows, dto.ReportRowResponse{
			ExternalKey: r.ExternalKey,
			Name:        r.Name,
			Date:        r.Date.Format(time.DateOnly),
			Time:        r.MarkedAt.In(h.loc()).Format(time.TimeOnly),
			Status:      string(r.Status),
			Method:      string(r.Method),
		})
	}
	resp.Total = len(resp.Rows)
	c.JSON(http.StatusOK, resp)
}

// Export streams the report as CSV.
func (h *AttendanceHandler) Export(c *gin.Context) {
	rows, from, to, ok := h.report(c)
	if !ok {
		return
	}
	name := fmt.Sprintf("attendance_%s_%s.csv", from.Format("20060102"), to.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := ledger.WriteCSV(c.Writer, rows, h.loc()); err != nil {
		// Headers are already sent.
		_ = c.Error(err)
	}
}

func (h *AttendanceHandler) Stats(c *gin.Context) {
	asOf := h.ledger.Now()
	if s := c.Query("date"); s != "" {
		d, err := time.ParseInLocation(time.DateOnly, s, h.loc())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date: want YYYY-MM-DD"})
			return
		}
		asOf = d.Add(12 * time.Hour)
	}
	day := h.ledger.Schedule().Date(asOf).Format(time.DateOnly)

	if h.stats != nil {
		if v, ok := h.stats.Get(day); ok {
			c.JSON(http.StatusOK, v)
			return
		}
	}

	st, err := h.ledger.Statistics(c.Request.Context(), asOf)
	if err != nil {
		internalError(c, err)
		return
	}
	resp := dto.StatsResponse{
		Date:                  day,
		TotalIdentities:       st.TotalIdentities,
		PresentToday:          st.PresentToday,
		AbsentToday:           st.AbsentToday,
		AttendanceRatePercent: st.AttendanceRatePercent,
		PresentThisWeek:       st.PresentThisWeek,
	}
	if h.stats != nil {
		h.stats.SetDefault(day, resp)
	}
	c.JSON(http.StatusOK, resp)
}
