package models

import (
	"context"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckCoverage is the derived per-lineage usage record at one location. The
// run generator reads it to bias rotation; evidence policies FT and AF read
// it to decide whether a photo is due. Rows are recomputed, never trusted as
// incrementally correct.
type CheckCoverage struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null;uniqueIndex:uq_coverage" json:"business_id"`
	LocationId      int             `gorm:"not null;uniqueIndex:uq_coverage" json:"location_id"`
	TemplateRootId  int             `gorm:"not null;uniqueIndex:uq_coverage" json:"template_root_id"`
	UseCount        int             `gorm:"not null;default:0" json:"use_count"`
	LastUsedDate    *time.Time      `json:"last_used_date"`
	LastOutcome     *ResponseStatus `gorm:"type:enum('PASS', 'FAIL', 'SKIPPED')" json:"last_outcome"`
	ConsecutivePass int             `gorm:"not null;default:0" json:"consecutive_pass"`
	ConsecutiveFail int             `gorm:"not null;default:0" json:"consecutive_fail"`
	PassCount       int             `gorm:"not null;default:0" json:"pass_count"`
	FailCount       int             `gorm:"not null;default:0" json:"fail_count"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OutcomeFold is the aggregate state after folding an ordered outcome
// history.
type OutcomeFold struct {
	LastOutcome     *ResponseStatus
	ConsecutivePass int
	ConsecutiveFail int
	PassCount       int
	FailCount       int
	SkipCount       int
}

// FoldOutcomes replays outcomes oldest first. A pass breaks a fail streak
// and vice versa; a skip moves the last outcome but leaves both streak
// counters where they were.
func FoldOutcomes(outcomes []ResponseStatus) OutcomeFold {
	var fold OutcomeFold
	for i := range outcomes {
		outcome := outcomes[i]
		switch outcome {
		case ResponseStatusPass:
			fold.PassCount++
			fold.ConsecutivePass++
			fold.ConsecutiveFail = 0
		case ResponseStatusFail:
			fold.FailCount++
			fold.ConsecutiveFail++
			fold.ConsecutivePass = 0
		case ResponseStatusSkipped:
			fold.SkipCount++
		}
		fold.LastOutcome = &outcomes[i]
	}
	return fold
}

// RecomputeCoverage recounts one (location, lineage) pair from run history
// inside the caller's transaction. Safe to replay: the same history always
// lands the same row.
func RecomputeCoverage(ctx context.Context, tx *gorm.DB, businessId string, locationId int, templateRootId int) error {

	// use count and last-used come from run item presence, not responses, so
	// unanswered runs still count as "used" for rotation recency
	type usage struct {
		UseCount int
		LastUsed *time.Time
	}
	var used usage
	err := tx.WithContext(ctx).Model(&CheckRunItem{}).
		Select("COUNT(check_run_items.id) AS use_count, MAX(check_runs.scheduled_date) AS last_used").
		Joins("JOIN check_runs ON check_runs.id = check_run_items.run_id").
		Where("check_run_items.business_id = ?", businessId).
		Where("check_runs.location_id = ?", locationId).
		Where("check_run_items.template_root_id = ?", templateRootId).
		Scan(&used).Error
	if err != nil {
		return err
	}

	var outcomes []ResponseStatus
	err = tx.WithContext(ctx).Model(&CheckResponse{}).
		Select("check_responses.status").
		Joins("JOIN check_runs ON check_runs.id = check_responses.run_id").
		Joins("JOIN check_run_items ON check_run_items.id = check_responses.run_item_id").
		Where("check_responses.business_id = ?", businessId).
		Where("check_runs.location_id = ?", locationId).
		Where("check_run_items.template_root_id = ?", templateRootId).
		Order("check_runs.scheduled_date, check_responses.completed_at, check_responses.id").
		Pluck("check_responses.status", &outcomes).Error
	if err != nil {
		return err
	}

	fold := FoldOutcomes(outcomes)

	coverage := CheckCoverage{
		BusinessId:      businessId,
		LocationId:      locationId,
		TemplateRootId:  templateRootId,
		UseCount:        used.UseCount,
		LastUsedDate:    used.LastUsed,
		LastOutcome:     fold.LastOutcome,
		ConsecutivePass: fold.ConsecutivePass,
		ConsecutiveFail: fold.ConsecutiveFail,
		PassCount:       fold.PassCount,
		FailCount:       fold.FailCount,
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}, {Name: "location_id"}, {Name: "template_root_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"use_count", "last_used_date", "last_outcome",
			"consecutive_pass", "consecutive_fail", "pass_count", "fail_count", "updated_at",
		}),
	}).Create(&coverage).Error
}

// GetCoverageMap loads every coverage row of one location keyed by lineage.
func GetCoverageMap(ctx context.Context, tx *gorm.DB, businessId string, locationId int) (map[int]*CheckCoverage, error) {
	var rows []*CheckCoverage
	err := tx.WithContext(ctx).
		Where("business_id = ? AND location_id = ?", businessId, locationId).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	coverageMap := make(map[int]*CheckCoverage, len(rows))
	for _, row := range rows {
		coverageMap[row.TemplateRootId] = row
	}
	return coverageMap, nil
}

func GetCoverageRows(ctx context.Context, businessId string, locationId int) ([]*CheckCoverage, error) {
	db := config.GetDB()
	var rows []*CheckCoverage
	err := db.WithContext(ctx).
		Where("business_id = ? AND location_id = ?", businessId, locationId).
		Order("template_root_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
