package database

import (
	"fmt"
	"log"

	"clauth/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established successfully")
	return nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs automatic migrations against the given handle.
// Shared with the standalone migration runner and the test helpers.
func Migrate(db *gorm.DB) error {
	// Identity and challenge models first; ledger tables reference them
	challengeModels := []interface{}{
		&models.User{},
		&models.Challenge{},
		&models.CompetitionRoom{},
		&models.CompetitionParticipant{},
		&models.ChallengeSubmission{},
		&models.SubmissionUpvote{},
		&models.ChallengeWinner{},
	}

	for _, model := range challengeModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	// Commerce models
	commerceModels := []interface{}{
		&models.PlushieItem{},
		&models.PaymentIntent{},
		&models.Preorder{},
		&models.WebhookEvent{},
	}

	for _, model := range commerceModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
