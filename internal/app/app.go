package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/adplatform"
	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/db"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/scheduler"
)

// App is the headless composition root used by the auxiliary binaries. The
// HTTP server in cmd/main.go wires itself inline; everything that only needs
// the engine goes through here.
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Registry *adplatform.Registry
	Repos    Repos
	Services Services

	bus    redisclient.EventBus
	lock   redisclient.RunLock
	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbService, err := db.NewService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	reposet := wireRepos(theDB, log)
	registry := wirePlatforms(log, reposet)
	bus, lock := wireRedis(log)
	serviceset := wireServices(log, reposet, registry, bus, lock)

	return &App{
		Log:      log,
		DB:       theDB,
		Registry: registry,
		Repos:    reposet,
		Services: serviceset,
		bus:      bus,
		lock:     lock,
	}, nil
}

// Start launches the job scheduler. One-shot binaries never call this.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	sched := scheduler.New(a.Services.Automation, a.Services.PerfSync, a.Services.ABTests, a.Log)
	sched.Start(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.lock != nil {
		_ = a.lock.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
