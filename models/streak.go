package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckStreak is the derived completion streak for a location, or for one
// manager at a location when ManagerId > 0. A calendar day counts once no
// matter how many runs completed on it.
type CheckStreak struct {
	ID                int        `gorm:"primary_key" json:"id"`
	BusinessId        string     `gorm:"index;not null;uniqueIndex:uq_streak" json:"business_id"`
	LocationId        int        `gorm:"not null;uniqueIndex:uq_streak" json:"location_id"`
	ManagerId         int        `gorm:"not null;default:0;uniqueIndex:uq_streak" json:"manager_id"`
	CurrentStreak     int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak     int        `gorm:"not null;default:0" json:"longest_streak"`
	LastCompletedDate *time.Time `json:"last_completed_date"`
	TotalPass         int        `gorm:"not null;default:0" json:"total_pass"`
	TotalFail         int        `gorm:"not null;default:0" json:"total_fail"`
	TotalSkip         int        `gorm:"not null;default:0" json:"total_skip"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// StreakFold is the result of replaying completion dates.
type StreakFold struct {
	Current  int
	Longest  int
	LastDate *time.Time
}

// ComputeStreak folds calendar days into streaks. Input days may arrive
// unsorted and with duplicates; each is a local calendar date pinned to UTC
// midnight. A one day step extends the chain, anything wider starts a new
// one. Current is the chain ending at the most recent day.
func ComputeStreak(days []time.Time) StreakFold {
	if len(days) == 0 {
		return StreakFold{}
	}

	uniq := make(map[time.Time]bool, len(days))
	for _, d := range days {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		uniq[day] = true
	}
	sorted := make([]time.Time, 0, len(uniq))
	for day := range uniq {
		sorted = append(sorted, day)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	chain := 1
	longest := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].AddDate(0, 0, 1).Equal(sorted[i]) {
			chain++
		} else {
			chain = 1
		}
		if chain > longest {
			longest = chain
		}
	}

	last := sorted[len(sorted)-1]
	return StreakFold{Current: chain, Longest: longest, LastDate: &last}
}

// RecomputeStreak recounts one streak row from run history inside the
// caller's transaction. managerId 0 recomputes the location-level streak;
// otherwise the manager is credited for completed runs where they authored
// at least one response.
func RecomputeStreak(ctx context.Context, tx *gorm.DB, businessId string, locationId int, managerId int) error {

	dayQuery := tx.WithContext(ctx).Model(&CheckRun{}).
		Distinct("check_runs.completed_date").
		Where("check_runs.business_id = ?", businessId).
		Where("check_runs.location_id = ?", locationId).
		Where("check_runs.current_status = ?", CheckRunStatusCompleted).
		Where("check_runs.completed_date IS NOT NULL")
	if managerId > 0 {
		dayQuery = dayQuery.
			Joins("JOIN check_responses ON check_responses.run_id = check_runs.id").
			Where("check_responses.completed_by_id = ?", managerId)
	}
	var days []time.Time
	if err := dayQuery.Pluck("check_runs.completed_date", &days).Error; err != nil {
		return err
	}

	fold := ComputeStreak(days)

	// lifetime outcome totals ride along for the dashboard
	type totals struct {
		TotalPass int
		TotalFail int
		TotalSkip int
	}
	totalQuery := tx.WithContext(ctx).Model(&CheckResponse{}).
		Select(
			"SUM(CASE WHEN check_responses.status = 'PASS' THEN 1 ELSE 0 END) AS total_pass, " +
				"SUM(CASE WHEN check_responses.status = 'FAIL' THEN 1 ELSE 0 END) AS total_fail, " +
				"SUM(CASE WHEN check_responses.status = 'SKIPPED' THEN 1 ELSE 0 END) AS total_skip").
		Where("check_responses.business_id = ?", businessId).
		Where("check_responses.location_id = ?", locationId)
	if managerId > 0 {
		totalQuery = totalQuery.Where("check_responses.completed_by_id = ?", managerId)
	}
	var sums totals
	if err := totalQuery.Scan(&sums).Error; err != nil {
		return err
	}

	streak := CheckStreak{
		BusinessId:        businessId,
		LocationId:        locationId,
		ManagerId:         managerId,
		CurrentStreak:     fold.Current,
		LongestStreak:     fold.Longest,
		LastCompletedDate: fold.LastDate,
		TotalPass:         sums.TotalPass,
		TotalFail:         sums.TotalFail,
		TotalSkip:         sums.TotalSkip,
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}, {Name: "location_id"}, {Name: "manager_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_streak", "longest_streak", "last_completed_date",
			"total_pass", "total_fail", "total_skip", "updated_at",
		}),
	}).Create(&streak).Error
}

func GetLocationStreak(ctx context.Context, locationId int) (*CheckStreak, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var streak CheckStreak
	err := db.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND manager_id = 0", businessId, locationId).
		Take(&streak).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// nothing completed yet reads as a zero streak, not an error
			return &CheckStreak{BusinessId: businessId, LocationId: locationId}, nil
		}
		return nil, err
	}
	return &streak, nil
}

