package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parkride-insights-backend/internal/model"
)

// facilityResponse is the flattened structure for the facility list
// response.
type facilityResponse struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Spots          int                  `json:"spots,omitempty"`
	Suburb         string               `json:"suburb,omitempty"`
	Latitude       float64              `json:"latitude,omitempty"`
	Longitude      float64              `json:"longitude,omitempty"`
	Status         model.FacilityStatus `json:"status"`
	AvailableSpots *int                 `json:"available_spots"`
	ObservedAt     *time.Time           `json:"observed_at"`
}

// GetFacilities handles GET /api/facilities: reference data plus the most
// recently stored observation per facility.
func (h *Handler) GetFacilities(c *gin.Context) {
	var facilities []model.Facility
	if err := h.db.Order("id").Find(&facilities).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve facilities"})
		return
	}

	response := make([]facilityResponse, 0, len(facilities))
	for _, facility := range facilities {
		resp := facilityResponse{
			ID:        facility.ID,
			Name:      facility.Name,
			Spots:     facility.Spots,
			Suburb:    facility.Suburb,
			Latitude:  facility.Latitude,
			Longitude: facility.Longitude,
			Status:    model.StatusUnknown,
		}

		last, ok, err := h.samples.Last(c.Request.Context(), facility.ID)
		if err == nil && ok {
			observed := last.Timestamp
			resp.ObservedAt = &observed
			resp.AvailableSpots = last.Available
			resp.Status = model.ClassifyStatus(last.Available, facility.Spots)
		}

		response = append(response, resp)
	}
	c.JSON(http.StatusOK, response)
}
