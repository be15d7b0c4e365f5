package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parkride-insights-backend/internal/model"
)

// sampleResponse is one raw observation in a history response.
type sampleResponse struct {
	Timestamp      time.Time `json:"timestamp"`
	AvailableSpots *int      `json:"available_spots"`
}

// GetFacilityHistory handles GET /api/facilities/{facility_id}/history.
// The required "date" query parameter selects one local calendar day of
// raw samples.
func (h *Handler) GetFacilityHistory(c *gin.Context) {
	facilityID := c.Param("facility_id")

	dateParam := c.Query("date")
	if dateParam == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateParam, h.loc)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use YYYY-MM-DD."})
		return
	}
	next := day.AddDate(0, 0, 1)

	response := make([]sampleResponse, 0, 128)
	err = h.samples.ReadAll(c.Request.Context(), facilityID, func(sample model.Sample) error {
		local := sample.Timestamp.In(h.loc)
		if local.Before(day) || !local.Before(next) {
			return nil
		}
		response = append(response, sampleResponse{
			Timestamp:      local,
			AvailableSpots: sample.Available,
		})
		return nil
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to read sample history"})
		return
	}

	c.JSON(http.StatusOK, response)
}
