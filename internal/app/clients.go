package app

import (
	"errors"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/adplatform/googleads"
	"github.com/autosem/autosem-backend/internal/adplatform/meta"
	"github.com/autosem/autosem-backend/internal/adplatform/tiktok"
	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
)

// wirePlatforms registers every ad-platform client whose credentials are
// present. A missing credential set skips that platform, it is not fatal.
func wirePlatforms(log *logger.Logger, reposet Repos) *adplatform.Registry {
	log.Info("Wiring platform clients...")
	registry := adplatform.NewRegistry()

	builders := []func(*logger.Logger, repos.PlatformTokenRepo) (adplatform.Client, error){
		meta.NewFromEnv,
		googleads.NewFromEnv,
		tiktok.NewFromEnv,
	}
	for _, build := range builders {
		client, err := build(log, reposet.PlatformToken)
		if errors.Is(err, errs.ErrNotConfigured) {
			log.Warn("Platform not configured; skipping", "error", err)
			continue
		}
		if err != nil {
			log.Error("Platform client init failed; skipping", "error", err)
			continue
		}
		if err := registry.Register(client); err != nil {
			log.Error("Platform client registration failed", "error", err)
			continue
		}
	}
	return registry
}

// wireRedis builds the optional redis pieces. Either may be nil; callers get
// a no-op notifier and an in-process run guard instead.
func wireRedis(log *logger.Logger) (redisclient.EventBus, redisclient.RunLock) {
	var bus redisclient.EventBus
	if b, err := redisclient.NewEventBus(log); err != nil {
		log.Warn("Redis event bus unavailable", "error", err)
	} else {
		bus = b
	}

	var lock redisclient.RunLock
	if l, err := redisclient.NewRunLock(log); err != nil {
		log.Warn("Redis run lock unavailable", "error", err)
	} else {
		lock = l
	}
	return bus, lock
}
