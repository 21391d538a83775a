package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/autosem/autosem-backend/internal/app"
	"github.com/autosem/autosem-backend/internal/services"
)

// Runs one automation cycle and exits. Meant for cron or manual invocation
// when the long-lived server is not running.
func main() {
	var skipSync bool
	var skipOptimize bool
	var skipABTests bool
	var asJSON bool
	flag.BoolVar(&skipSync, "skip-sync", false, "skip the performance sync step")
	flag.BoolVar(&skipOptimize, "skip-optimize", false, "skip the optimization pass")
	flag.BoolVar(&skipABTests, "skip-abtests", false, "skip A/B test auto-optimization")
	flag.BoolVar(&asJSON, "json", false, "print the full cycle result as JSON")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	res := &services.CycleResult{Errors: map[string]string{}}

	if !skipSync {
		syncRes, err := application.Services.PerfSync.SyncAll(ctx)
		if err != nil {
			res.Errors["sync"] = err.Error()
		} else {
			res.Sync = syncRes
			fmt.Printf("sync: updated=%d skipped=%d\n", syncRes.Updated, syncRes.Skipped)
		}
	}
	if !skipOptimize {
		optRes, err := application.Services.Optimizer.OptimizeAll(ctx)
		if err != nil {
			res.Errors["optimize"] = err.Error()
		} else {
			res.Optimize = optRes
			fmt.Printf("optimize: campaigns=%d actions=%d\n", optRes.Optimized, len(optRes.Actions))
		}
	}
	if !skipABTests {
		abRes, err := application.Services.ABTests.AutoOptimize(ctx)
		if err != nil {
			res.Errors["ab_tests"] = err.Error()
		} else {
			res.ABTests = abRes
			fmt.Printf("abtests: concluded=%d skipped=%d\n", abRes.Optimized, len(abRes.Skipped))
		}
	}

	if asJSON {
		raw, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Printf("marshal result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(raw))
	}

	if len(res.Errors) > 0 {
		for step, msg := range res.Errors {
			fmt.Printf("step %s failed: %s\n", step, msg)
		}
		os.Exit(1)
	}
	fmt.Println("cycle complete")
}
