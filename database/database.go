package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hkl-restful/config"
	"hkl-restful/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured database and migrates the schema.
func InitDB(cfg config.DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// GORM logger configuration, routed through zap
	newLogger := logger.New(
		zap.NewStdLog(zl.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true, // Keep personal data out of SQL logs
			Colorful:                  false,
		},
	)

	db, err := Open(dialector, newLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}

	zl.Info("Database connection successful and migrations complete", zap.String("driver", cfg.Driver))
	return db, nil
}

// Open connects with the settings every repository relies on.
func Open(dialector gorm.Dialector, l logger.Interface) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         l,
		TranslateError: true, // Surface unique violations as gorm.ErrDuplicatedKey
	})
}

// Migrate creates or updates the tables for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Event{}, &models.Signup{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := backfillCityKeys(db); err != nil {
		return fmt.Errorf("failed to backfill city keys: %w", err)
	}
	return nil
}

// backfillCityKeys fills city_key for rows written before the column existed.
// Folding happens in Go because SQL LOWER() is ASCII-only on some drivers.
func backfillCityKeys(db *gorm.DB) error {
	var events []models.Event
	if err := db.Where("city_key IS NULL OR city_key = ''").Find(&events).Error; err != nil {
		return err
	}
	for _, e := range events {
		key := models.CityKey(e.City)
		if key == "" {
			continue
		}
		if err := db.Model(&models.Event{}).Where("id = ?", e.ID).Update("city_key", key).Error; err != nil {
			return err
		}
	}

	var signups []models.Signup
	if err := db.Where("city IS NOT NULL AND (city_key IS NULL OR city_key = '')").Find(&signups).Error; err != nil {
		return err
	}
	for _, s := range signups {
		key := models.CityKey(*s.City)
		if key == "" {
			continue
		}
		if err := db.Model(&models.Signup{}).Where("id = ?", s.ID).Update("city_key", key).Error; err != nil {
			return err
		}
	}
	return nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return sqlite.Open(cfg.URL), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.URL), nil
	case "mysql":
		return mysql.Open(cfg.URL), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

// SeedInitialData creates the configured super admin if it does not exist yet.
func SeedInitialData(db *gorm.DB, seed config.SeedConfig, zl *zap.Logger) error {
	admin := seed.SuperAdmin
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" || admin.Password == "" {
		zl.Debug("No super admin seed configured")
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		zl.Debug("Super admin already present", zap.String("email", email))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error checking for super admin %s: %w", email, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("could not hash super admin password: %w", err)
	}
	name := admin.Name
	if name == "" {
		name = "Super Admin"
	}
	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         models.RoleSuperAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create initial super admin: %w", err)
	}

	zl.Info("Created initial super admin", zap.String("email", email))
	return nil
}
