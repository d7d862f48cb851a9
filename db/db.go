package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPSQLStorage(cfg *config.Config) (*gorm.DB, error) {
	if err := cfg.ValidateDB(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{
		Logger: newLogger(cfg.DBLogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	return db, nil
}

func newLogger(level string) logger.Interface {
	var lvl logger.LogLevel
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	default:
		lvl = logger.Warn
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// Close releases the pool behind db.
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying *sql.DB to close: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
		return
	}
	log.Println("Database connection closed")
}

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Group{},
		&models.Post{},
		&models.Comment{},
		&models.Follow{},
	}
}

func Migrate(db *gorm.DB) error {
	for _, model := range Models() {
		name := fmt.Sprintf("%T", model)
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}
	return nil
}

// DropTables drops the given tables, or every table when none are given.
func DropTables(db *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		all := Models()
		for i := len(all) - 1; i >= 0; i-- {
			tables = append(tables, all[i])
		}
	}
	for _, table := range tables {
		if err := db.Migrator().DropTable(table); err != nil {
			return fmt.Errorf("dropping table %T: %w", table, err)
		}
		log.Printf("Table %T dropped", table)
	}
	return nil
}

// ModelByName resolves a table name as typed on the command line.
func ModelByName(name string) (interface{}, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "user", "users":
		return &models.User{}, true
	case "group", "groups":
		return &models.Group{}, true
	case "post", "posts":
		return &models.Post{}, true
	case "comment", "comments":
		return &models.Comment{}, true
	case "follow", "follows":
		return &models.Follow{}, true
	}
	return nil, false
}
