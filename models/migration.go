package models

import (
	"log"

	"github.com/opsfocus/checks_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Location{}, &User{},
		&CheckTemplate{},
		&CheckRun{}, &CheckRunItem{},
		&CheckAssignment{},
		&CheckResponse{},
		&CorrectiveAction{},
		&CheckStreak{}, &CheckCoverage{},
		&MediaAsset{},
		&History{},
		&WorkflowEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
