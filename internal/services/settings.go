package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

// SettingsService exposes the operator-tunable engine limits stored as
// key/value rows. A snapshot is loaded once per optimization pass so a
// mid-pass settings change cannot produce a mixed reading.
type SettingsService interface {
	Snapshot(ctx context.Context) (types.OptimizerSettings, error)
	All(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, values map[string]string) error
}

type settingsService struct {
	settingRepo repos.SettingRepo
	log         *logger.Logger
}

func NewSettingsService(settingRepo repos.SettingRepo, baseLog *logger.Logger) SettingsService {
	return &settingsService{
		settingRepo: settingRepo,
		log:         baseLog.With("service", "SettingsService"),
	}
}

func (s *settingsService) Snapshot(ctx context.Context) (types.OptimizerSettings, error) {
	snapshot := types.DefaultOptimizerSettings()

	rows, err := s.settingRepo.List(ctx, nil)
	if err != nil {
		return snapshot, fmt.Errorf("load settings: %w", err)
	}

	for _, row := range rows {
		val, perr := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
		if perr != nil {
			// A garbled row falls back to the default for that key only.
			s.log.Warn("unparseable setting, using default", "key", row.Key, "value", row.Value)
			continue
		}
		switch row.Key {
		case types.SettingDailySpendLimit:
			snapshot.DailySpendLimit = val
		case types.SettingMonthlySpendLimit:
			snapshot.MonthlySpendLimit = val
		case types.SettingMinROASThreshold:
			snapshot.MinROASThreshold = val
		case types.SettingEmergencyPauseLoss:
			snapshot.EmergencyPauseLoss = val
		}
	}

	return snapshot, nil
}

func (s *settingsService) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.settingRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	// Defaults first so absent keys still show up with their effective values.
	defaults := types.DefaultOptimizerSettings()
	out := map[string]string{
		types.SettingDailySpendLimit:    formatFloat(defaults.DailySpendLimit),
		types.SettingMonthlySpendLimit:  formatFloat(defaults.MonthlySpendLimit),
		types.SettingMinROASThreshold:   formatFloat(defaults.MinROASThreshold),
		types.SettingEmergencyPauseLoss: formatFloat(defaults.EmergencyPauseLoss),
	}
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (s *settingsService) Update(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if err := s.settingRepo.Upsert(ctx, nil, key, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("upsert setting %s: %w", key, err)
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
