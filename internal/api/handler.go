package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parkride-insights-backend/internal/insights"
	"parkride-insights-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db       *gorm.DB
	samples  store.SampleStore
	insights *insights.Writer
	webpush  *webpush.Options
	loc      *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, samples store.SampleStore, insightsWriter *insights.Writer, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	return &Handler{
		db:       db,
		samples:  samples,
		insights: insightsWriter,
		webpush:  webpushOptions,
		loc:      loc,
	}
}
