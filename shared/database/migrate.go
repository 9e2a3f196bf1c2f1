package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations применяет все доступные миграции из sourceURL
// (например, "file://shared/database/migrations") к базе по DSN.
// Отсутствие новых миграций не считается ошибкой.
func RunMigrations(sourceURL, dsn string, logger *zap.Logger) error {
	// Драйвер migrate для pgx/v5 регистрируется под схемой pgx5.
	dsn = strings.Replace(dsn, "postgres://", "pgx5://", 1)

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("ошибка инициализации мигратора: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	logger.Info("Database migrations applied successfully")
	return nil
}
