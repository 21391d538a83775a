package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewService opens the database named by DATABASE_URL. A postgres:// or
// postgresql:// URL selects the postgres driver; anything else is treated as
// a sqlite path, which is also the default for local runs.
func NewService(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	dsn := envutil.String("DATABASE_URL", "sqlite://./autosem.db")

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		serviceLog.Info("Connecting to postgres...")
		dialector = postgres.Open(dsn)
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		path = strings.TrimPrefix(path, "sqlite:")
		serviceLog.Info("Opening sqlite database...", "path", path)
		dialector = sqlite.Open(path)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Service{db: gdb, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Campaign{},
		&types.ABTest{},
		&types.Setting{},
		&types.ActivityLog{},
		&types.PlatformToken{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
