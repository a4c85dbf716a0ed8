// Package db opens the datastore and keeps the schema current.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/chat"
	"github.com/first-seller/ozon-assist/internal/models"
)

// Connect opens a gorm handle for the configured driver.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	// TranslateError maps driver unique-violation errors to
	// gorm.ErrDuplicatedKey for both dialects.
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&billing.Transaction{},
		&chat.Session{},
		&chat.Message{},
		&chat.TurnReceipt{},
	)
}
