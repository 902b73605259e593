package database

import (
	"log"

	"palette_backend/internal/config"
	"palette_backend/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the embedded SQLite store and migrates the schema. Foreign
// keys are enforced so assessment rows cannot outlive their rubric rows.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := cfg.Path + "?_foreign_keys=on&_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Every pooled connection to a plain :memory: DSN gets its own empty
	// database, so pin in-memory stores to a single connection.
	if cfg.Path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.RubricTemplate{},
		&model.RubricCriterion{},
		&model.RubricRating{},
		&model.Course{},
		&model.Assignment{},
		&model.Student{},
		&model.Submission{},
		&model.AssignmentRubric{},
		&model.RubricAssessment{},
		&model.CriterionAssessment{},
		&model.Comment{},
		&model.SyncQueueItem{},
	)
}
