package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meal-photo-backend/internal/middleware"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/services"
)

// multipart overhead allowed on top of the image itself
const formOverhead = 1 << 20

type MealsHandler struct {
	submission     *services.Submission
	listing        *services.Listing
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewMealsHandler(submission *services.Submission, listing *services.Listing, maxUploadBytes int64, logger *slog.Logger) *MealsHandler {
	return &MealsHandler{
		submission:     submission,
		listing:        listing,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// SubmitPhoto godoc
// @Summary     Submit a meal photo
// @Description Stores the photo and queues it for recognition. Returns immediately;
// @Description poll /tasks/{task_id} or listen on /ws for the result.
// @Description Without meal_id a new DRAFT meal is created.
// @Tags        meals
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       image formData file true "Meal photo"
// @Param       date formData string true "Diary date (YYYY-MM-DD)"
// @Param       meal_type formData string true "breakfast, lunch, dinner or snack"
// @Param       meal_id formData string false "Existing DRAFT meal to add the photo to"
// @Param       hint formData string false "Free-text description passed to recognition"
// @Success     202 {object} models.SubmitResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /meals/photos [post]
func (h *MealsHandler) SubmitPhoto(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)
	}

	file, err := c.FormFile("image")
	if maxErr := new(http.MaxBytesError); errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error:   "image too large",
			Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "image file is required",
			Message: err.Error(),
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read image", Message: err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read image", Message: err.Error()})
		return
	}

	var mealID uuid.UUID
	if raw := c.PostForm("meal_id"); raw != "" {
		mealID, err = uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid meal id"})
			return
		}
	}

	res, err := h.submission.Submit(c.Request.Context(), services.SubmitInput{
		OwnerID:  middleware.UserID(c),
		Image:    data,
		Date:     c.PostForm("date"),
		MealType: c.PostForm("meal_type"),
		MealID:   mealID,
		Hint:     c.PostForm("hint"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, models.SubmitResponse{
		TaskID:  res.TaskID.String(),
		MealID:  res.MealID.String(),
		PhotoID: res.PhotoID.String(),
		Status:  "processing",
	})
}

// ListMeals godoc
// @Summary     List meals
// @Description Lists the caller's meals, optionally for one date. Meals still being
// @Description recognized are returned with processing=true and no items. Failed
// @Description meals are never listed.
// @Tags        meals
// @Produce     json
// @Security    Bearer
// @Param       date query string false "Diary date (YYYY-MM-DD)"
// @Success     200 {object} models.MealListResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /meals [get]
func (h *MealsHandler) ListMeals(c *gin.Context) {
	meals, err := h.listing.ListMeals(c.Request.Context(), middleware.UserID(c), c.Query("date"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.MealListResponse{Meals: meals})
}

// GetMeal godoc
// @Summary     Get a meal
// @Tags        meals
// @Produce     json
// @Security    Bearer
// @Param       meal_id path string true "Meal ID (UUID)"
// @Success     200 {object} models.MealResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /meals/{meal_id} [get]
func (h *MealsHandler) GetMeal(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("meal_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid meal id"})
		return
	}

	meal, err := h.listing.GetMeal(c.Request.Context(), middleware.UserID(c), mealID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, meal)
}
