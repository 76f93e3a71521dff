package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/pkg/dto"
)

type ModelHandler struct {
	holder    *recognition.Holder
	requester gateway.TrainingRequester
	trainer   *recognition.Trainer
}

// NewModelHandler trains inline when trainer is set, otherwise it hands the
// request to requester.
func NewModelHandler(holder *recognition.Holder, requester gateway.TrainingRequester, trainer *recognition.Trainer) *ModelHandler {
	return &ModelHandler{holder: holder, requester: requester, trainer: trainer}
}

func (h *ModelHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, modelStatus(h.holder))
}

func (h *ModelHandler) Train(c *gin.Context) {
	ctx := c.Request.Context()
	if h.trainer != nil {
		_, err := h.trainer.Train(ctx)
		if errors.Is(err, recognition.ErrInsufficientTrainingData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		st := modelStatus(h.holder)
		c.JSON(http.StatusOK, dto.TrainResponse{Model: &st})
		return
	}

	if h.requester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "training is not available"})
		return
	}
	job := models.TrainingJob{
		JobID:       uuid.New(),
		Reason:      "manual",
		RequestedAt: time.Now().UTC(),
	}
	if err := h.requester.RequestTraining(ctx, job); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.TrainResponse{JobID: job.JobID.String()})
}
