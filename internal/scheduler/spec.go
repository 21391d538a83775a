package scheduler

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
)

const specPathEnv = "SCHEDULER_SPEC_PATH"

//go:embed schedule.yaml
var specFS embed.FS

// Job names the scheduler knows how to dispatch.
const (
	JobOptimizationCycle = "optimization_cycle"
	JobPerformanceSync   = "performance_sync"
	JobABTestEvaluate    = "ab_test_evaluate"
)

// Anything tighter than this hammers the ad platform APIs for no gain.
const minInterval = time.Minute

// fallback schedule used when the YAML is missing or invalid
var fallbackEntries = []Entry{
	{Name: JobOptimizationCycle, Interval: 6 * time.Hour, Enabled: true},
	{Name: JobPerformanceSync, Interval: 2 * time.Hour, Enabled: true},
	{Name: JobABTestEvaluate, Interval: 6 * time.Hour, Enabled: true},
}

// Entry is one periodic job with its effective interval.
type Entry struct {
	Name     string
	Interval time.Duration
	Enabled  bool
}

type yamlSchedule struct {
	Schedule string      `yaml:"schedule"`
	Version  int         `yaml:"version"`
	Jobs     []yamlEntry `yaml:"jobs"`
}

type yamlEntry struct {
	Name     string `yaml:"name"`
	Interval string `yaml:"interval"`
	Enabled  *bool  `yaml:"enabled"`
}

var (
	entriesOnce  sync.Once
	entriesCache []Entry
	entriesErr   error
)

// Entries returns the schedule: the file named by SCHEDULER_SPEC_PATH when
// set, otherwise the embedded schedule.yaml, otherwise the built-in fallback.
func Entries(log *logger.Logger) []Entry {
	entriesOnce.Do(func() {
		entriesCache, entriesErr = loadEntries()
	})
	if entriesErr != nil {
		if log != nil {
			log.Warn("schedule spec load failed; using fallback", "error", entriesErr)
		}
		return fallbackEntries
	}
	return entriesCache
}

func loadEntries() ([]Entry, error) {
	data, err := readSpec()
	if err != nil {
		return nil, err
	}
	var spec yamlSchedule
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return parseSchedule(&spec)
}

func readSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(specPathEnv)); path != "" {
		return os.ReadFile(path)
	}
	return specFS.ReadFile("schedule.yaml")
}

func parseSchedule(spec *yamlSchedule) ([]Entry, error) {
	if spec == nil {
		return nil, errors.New("missing schedule")
	}
	if strings.TrimSpace(spec.Schedule) != "engine" {
		return nil, fmt.Errorf("unexpected schedule: %s", spec.Schedule)
	}
	if len(spec.Jobs) == 0 {
		return nil, errors.New("no jobs defined")
	}

	known := map[string]bool{
		JobOptimizationCycle: true,
		JobPerformanceSync:   true,
		JobABTestEvaluate:    true,
	}
	seen := map[string]bool{}
	entries := make([]Entry, 0, len(spec.Jobs))
	for _, job := range spec.Jobs {
		name := strings.TrimSpace(job.Name)
		if name == "" {
			return nil, errors.New("job name is required")
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown job: %s", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate job: %s", name)
		}
		seen[name] = true

		interval, err := time.ParseDuration(strings.TrimSpace(job.Interval))
		if err != nil {
			return nil, fmt.Errorf("job %s: bad interval %q", name, job.Interval)
		}
		if interval < minInterval {
			interval = minInterval
		}
		enabled := true
		if job.Enabled != nil {
			enabled = *job.Enabled
		}
		entries = append(entries, Entry{Name: name, Interval: interval, Enabled: enabled})
	}
	return entries, nil
}
