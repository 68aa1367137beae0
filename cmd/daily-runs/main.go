// daily-runs generates the day's check runs for every active business and,
// when AUTO_ISSUE_DAILY_LINKS is enabled, issues assignment links for them.
// Intended to be run once per day from cron; rerunning is safe because
// generation is idempotent per location and day.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME_2=... go run ./cmd/daily-runs
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	report, err := models.GenerateDailyRunsAcrossBusinesses(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daily run generation failed: %v\n", err)
		os.Exit(1)
	}

	for _, failure := range report.Failures {
		fmt.Fprintf(os.Stderr, "warning: %v\n", failure)
	}
	fmt.Printf("Daily runs complete: businesses=%d runs=%d issued=%d failures=%d\n",
		report.Businesses, report.Runs, report.Issued, len(report.Failures))
	if len(report.Failures) > 0 {
		os.Exit(2)
	}
}
