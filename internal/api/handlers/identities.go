package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

type IdentityReader interface {
	GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	CountSamples(ctx context.Context, identityID int64) (int, error)
}

type IdentityHandler struct {
	store    IdentityReader
	enroller *gateway.Enroller
	ledger   *ledger.Ledger
}

func NewIdentityHandler(store IdentityReader, enroller *gateway.Enroller, l *ledger.Ledger) *IdentityHandler {
	return &IdentityHandler{store: store, enroller: enroller, ledger: l}
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req dto.CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := &models.Identity{
		ExternalKey: req.ExternalKey,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Department:  req.Department,
	}
	err := h.enroller.Enroll(c.Request.Context(), ident)
	switch {
	case errors.Is(err, gateway.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, storage.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": "external key already enrolled"})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, identityResponse(ident, 0))
}

func (h *IdentityHandler) List(c *gin.Context) {
	idents, err := h.store.ListIdentities(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(idents))
	for i := range idents {
		n, _ := h.store.CountSamples(c.Request.Context(), idents[i].ID)
		resp = append(resp, identityResponse(&idents[i], n))
	}
	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) lookup(c *gin.Context) (*models.Identity, int, bool) {
	ident, err := h.store.GetIdentityByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		internalError(c, err)
		return nil, 0, false
	}
	if ident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return nil, 0, false
	}
	n, err := h.store.CountSamples(c.Request.Context(), ident.ID)
	if err != nil {
		internalError(c, err)
		return nil, 0, false
	}
	return ident, n, true
}

func (h *IdentityHandler) Get(c *gin.Context) {
	ident, n, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, identityResponse(ident, n))
}

// Info returns the identity with its recent attendance.
func (h *IdentityHandler) Info(c *gin.Context) {
	ident, n, ok := h.lookup(c)
	if !ok {
		return
	}
	_, recs, err := h.ledger.History(c.Request.Context(), ident.ExternalKey, 0)
	if err != nil {
		internalError(c, err)
		return
	}

	loc := scheduleLoc(h.ledger)
	resp := dto.IdentityInfoResponse{
		Identity: identityResponse(ident, n),
		History:  make([]dto.RecordResponse, 0, len(recs)),
	}
	for _, r := range recs {
		resp.History = append(resp.History, recordResponse(r, loc))
	}
	c.JSON(http.StatusOK, resp)
}

// AddSample accepts a multipart "image" upload, stores the face crop and
// requests a retrain.
func (h *IdentityHandler) AddSample(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	ctx := c.Request.Context()
	smp, err := h.enroller.AddSample(ctx, c.Param("key"), uploadSource{fh: fh})
	switch {
	case errors.Is(err, ledger.ErrUnknownIdentity):
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	case imageRejected(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	queued := true
	if err := h.enroller.RequestRetrain(ctx, "sample added", smp.IdentityID); err != nil {
		// The sample is stored; the next retrain will include it.
		slog.Warn("request retrain", "identity_id", smp.IdentityID, "error", err)
		queued = false
	}
	n, _ := h.enroller.SampleCount(ctx, smp.IdentityID)

	c.JSON(http.StatusCreated, dto.SampleResponse{
		ID:            smp.ID.String(),
		IdentityID:    smp.IdentityID,
		ObjectKey:     smp.ObjectKey,
		Width:         smp.Width,
		Height:        smp.Height,
		SampleCount:   n,
		RetrainQueued: queued,
	})
}
