package database

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	err := DB.AutoMigrate(
		&Organization{},
		&Alert{},
		&AlertEvent{},
		&Incident{},
		&MaintenanceWindow{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	// Create a default organization on first boot so single-tenant
	// installs work without any provisioning step.
	var count int64
	DB.Model(&Organization{}).Count(&count)
	if count == 0 {
		key, err := GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate API key: %w", err)
		}
		org := &Organization{
			Name:   "default",
			APIKey: key,
		}
		if err := DB.Create(org).Error; err != nil {
			return fmt.Errorf("failed to create default organization: %w", err)
		}
		log.Printf("Created default organization (api key: %s)", key)
	}

	return nil
}

// GenerateAPIKey returns a random 32-byte hex key for webhook authentication
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
