package database

import (
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gridbook/gridbook-api/internal/auth"
	"github.com/gridbook/gridbook-api/internal/engine"
	"github.com/gridbook/gridbook-api/internal/pairs"
	"github.com/gridbook/gridbook-api/internal/settlement"
	"github.com/gridbook/gridbook-api/internal/strategy"
)

// NewDatabase opens the GORM DB connection and migrates every schema. The
// database path comes from GRIDBOOK_DB_PATH, defaulting to gridbook.db.
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("GRIDBOOK_DB_PATH")
	if path == "" {
		path = "gridbook.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the services use.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&engine.GridConfig{},
		&engine.GridOrder{},
		&engine.GridCounter{},
		&engine.IdempotencyRecord{},
		&strategy.SideParams{},
		&pairs.TradingPair{},
		&settlement.AccountBalance{},
		&settlement.FillSettlement{},
		&settlement.ProtocolFeeAccrual{},
		&auth.APICredential{},
	)
}
