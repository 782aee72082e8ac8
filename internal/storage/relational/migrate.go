package relational

import (
	"fmt"

	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/joshu-sajeev/promptrelay/migrations"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// Migrate brings the schema up to date. Postgres runs the versioned goose
// migrations, which also upgrade databases created with an older, narrower
// jobs table. SQLite is migrated from the model.
func Migrate(db *gorm.DB) error {
	if !isPostgres(db) {
		if err := db.AutoMigrate(&models.Job{}); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
