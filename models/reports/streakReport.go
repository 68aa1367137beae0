package reports

import (
	"context"
	"errors"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
)

type ManagerStreakRow struct {
	ManagerId         int        `json:"manager_id"`
	ManagerName       *string    `json:"manager_name,omitempty"`
	CurrentStreak     int        `json:"current_streak"`
	LongestStreak     int        `json:"longest_streak"`
	LastCompletedDate *time.Time `json:"last_completed_date"`
	TotalPass         int        `json:"total_pass"`
	TotalFail         int        `json:"total_fail"`
	TotalSkip         int        `json:"total_skip"`
}

type StreakReportResponse struct {
	Location *models.CheckStreak `json:"location"`
	Managers []*ManagerStreakRow `json:"managers"`
}

// GetStreakReport returns the location streak plus every manager streak at
// the location, manager names resolved for the dashboard.
func GetStreakReport(ctx context.Context, locationId int) (*StreakReportResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "streak_report", start, map[string]any{
		"location_id": locationId,
	})

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if reportCacheEnabled() {
		key := streakReportKey(businessId, locationId)
		var cached StreakReportResponse
		if ok, err := cacheGet(key, &cached); err == nil && ok && cached.Location != nil {
			return &cached, nil
		}
		response, err := getStreakReport(ctx, businessId, locationId)
		if err != nil {
			return nil, err
		}
		_ = cacheSet(key, response, reportCacheTTL())
		return response, nil
	}

	return getStreakReport(ctx, businessId, locationId)
}

func getStreakReport(ctx context.Context, businessId string, locationId int) (*StreakReportResponse, error) {

	locationStreak, err := models.GetLocationStreak(ctx, locationId)
	if err != nil {
		return nil, err
	}

	sql := `
SELECT
    cs.manager_id,
    u.name AS manager_name,
    cs.current_streak,
    cs.longest_streak,
    cs.last_completed_date,
    cs.total_pass,
    cs.total_fail,
    cs.total_skip
FROM
    check_streaks cs
        LEFT JOIN
    users u ON u.id = cs.manager_id
WHERE
    cs.business_id = ?
        AND cs.location_id = ?
        AND cs.manager_id > 0
ORDER BY cs.current_streak DESC , cs.manager_id;
`

	var managers []*ManagerStreakRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, businessId, locationId).Scan(&managers).Error; err != nil {
		return nil, err
	}

	return &StreakReportResponse{Location: locationStreak, Managers: managers}, nil
}

func (r ManagerStreakRow) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.ManagerName, ""),
		r.CurrentStreak,
		r.LongestStreak,
		r.TotalPass,
		r.TotalFail,
		r.TotalSkip,
	}
}
