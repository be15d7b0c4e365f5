package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"parkride-insights-backend/config"
	"parkride-insights-backend/internal/model"
)

// Init opens the relational database holding facility reference data and
// push subscriptions, and runs migrations. The sample time series lives in
// the file-based store, not here.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info().Str("driver", cfg.Driver).Msg("running database migrations")
	if err := db.AutoMigrate(
		&model.Facility{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	return db, nil
}

// SyncFacilities upserts the configured facility reference data. The
// pipeline itself never mutates facilities; configuration is the single
// source of truth.
func SyncFacilities(db *gorm.DB, facilities []config.FacilityConfig) error {
	if len(facilities) == 0 {
		return nil
	}

	rows := make([]model.Facility, 0, len(facilities))
	for _, f := range facilities {
		rows = append(rows, model.Facility{
			ID:        f.ID,
			Name:      f.Name,
			Spots:     f.Spots,
			Suburb:    f.Suburb,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
		})
	}

	log.Info().Int("facilities", len(rows)).Msg("syncing facility reference data")
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "spots", "suburb", "latitude", "longitude", "updated_at"}),
	}).Create(&rows).Error
}
