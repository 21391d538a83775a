package app

import (
	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
)

type Repos struct {
	Campaign      repos.CampaignRepo
	ABTest        repos.ABTestRepo
	Setting       repos.SettingRepo
	ActivityLog   repos.ActivityLogRepo
	PlatformToken repos.PlatformTokenRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Campaign:      repos.NewCampaignRepo(db, log),
		ABTest:        repos.NewABTestRepo(db, log),
		Setting:       repos.NewSettingRepo(db, log),
		ActivityLog:   repos.NewActivityLogRepo(db, log),
		PlatformToken: repos.NewPlatformTokenRepo(db, log),
	}
}
