package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"meal-photo-backend/internal/middleware"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/services"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CancelHandler struct {
	cancellation *services.Cancellation
	logger       *slog.Logger
}

func NewCancelHandler(cancellation *services.Cancellation, logger *slog.Logger) *CancelHandler {
	return &CancelHandler{
		cancellation: cancellation,
		logger:       logger,
	}
}

// Cancel godoc
// @Summary     Cancel recognition
// @Description Cancels every non-terminal photo named by photo_ids, meal_ids or task_ids.
// @Description The idempotency key comes from the Idempotency-Key header, or from the
// @Description idempotency_key field when the header is absent. Repeating a key returns
// @Description the first outcome unchanged.
// @Tags        cancel
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       Idempotency-Key header string false "Idempotency key"
// @Param       request body models.CancelRequest true "Cancel targets"
// @Success     200 {object} models.CancelResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /cancel [post]
func (h *CancelHandler) Cancel(c *gin.Context) {
	var req models.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	token := c.GetHeader(IdempotencyKeyHeader)
	if token == "" {
		token = req.IdempotencyKey
	}

	in := services.CancelInput{
		Token:   token,
		OwnerID: middleware.UserID(c),
		Reason:  req.Reason,
	}
	var err error
	if in.PhotoIDs, err = parseIDs("photo id", req.PhotoIDs); err == nil {
		if in.MealIDs, err = parseIDs("meal id", req.MealIDs); err == nil {
			in.TaskIDs, err = parseIDs("task id", req.TaskIDs)
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	outcome, err := h.cancellation.Cancel(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.CancelResponse{
		Noop:           outcome.Noop,
		CancelledTasks: outcome.CancelledTasks,
		UpdatedPhotos:  outcome.UpdatedPhotos,
	})
}
