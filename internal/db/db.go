package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vissharm/ecommerce-app-user-service/internal/model"
)

// Open returns a connected GORM DB for the given driver ("mysql" or "postgres").
// Driver errors are translated so unique-index violations surface as
// gorm.ErrDuplicatedKey on both backends.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the schema. With reset the accounts table is
// dropped first.
func Migrate(db *gorm.DB, reset bool) error {
	if reset {
		if err := db.Migrator().DropTable(&model.Account{}); err != nil {
			return fmt.Errorf("drop accounts: %w", err)
		}
	}
	if err := db.AutoMigrate(&model.Account{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
