// expire-sweep closes out overdue check runs and deletes evidence objects
// whose retention window has passed. Intended to be run hourly from cron;
// each pass only touches rows that are already past their deadline, so the
// schedule can be as coarse or as fine as the deployment wants.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME_2=... go run ./cmd/expire-sweep
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
)

func main() {
	skipMedia := flag.Bool("skip-media", false, "Only expire runs; leave evidence retention alone")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	asOf := time.Now().UTC()

	expired, failures := models.ExpireOverdueRunsAcrossBusinesses(ctx, asOf)
	for _, failure := range failures {
		fmt.Fprintf(os.Stderr, "warning: %v\n", failure)
	}
	fmt.Printf("Expired runs: %d\n", expired)

	pruned := 0
	if !*skipMedia {
		var err error
		pruned, err = models.PruneExpiredMediaAssets(ctx, asOf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "media retention sweep failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned media assets: %d\n", pruned)
	}

	if len(failures) > 0 {
		os.Exit(2)
	}
}
