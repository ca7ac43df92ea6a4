package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/services"
)

// respondError maps service errors to HTTP responses. Unclassified errors are
// logged and reported as 500 without detail.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, services.ErrMealNotFound), errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrMealClosed), errors.Is(err, services.ErrTokenConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrForbiddenTarget):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, models.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

func parseIDs(field string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("invalid " + field + ": " + s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
