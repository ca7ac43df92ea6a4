package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meal-photo-backend/internal/middleware"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/services"
)

type TasksHandler struct {
	status *services.StatusService
	logger *slog.Logger
}

func NewTasksHandler(status *services.StatusService, logger *slog.Logger) *TasksHandler {
	return &TasksHandler{
		status: status,
		logger: logger,
	}
}

// GetTask godoc
// @Summary     Get recognition status
// @Description Returns the status of a submitted photo. Status is PENDING, PROCESSING,
// @Description SUCCESS or FAILED; result is only present for SUCCESS. Cancelled photos
// @Description are reported as FAILED with error_code CANCELLED.
// @Tags        tasks
// @Produce     json
// @Security    Bearer
// @Param       task_id path string true "Task ID or photo ID (UUID)"
// @Success     200 {object} models.TaskStatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /tasks/{task_id} [get]
func (h *TasksHandler) GetTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}

	status, err := h.status.TaskStatus(c.Request.Context(), middleware.UserID(c), taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
