package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/shopspring/decimal"
)

type CompletionReportResponse struct {
	LocationId     int             `json:"location_id"`
	LocationName   *string         `json:"location_name,omitempty"`
	TotalRuns      int             `json:"total_runs"`
	CompletedRuns  int             `json:"completed_runs"`
	ExpiredRuns    int             `json:"expired_runs"`
	PendingRuns    int             `json:"pending_runs"`
	CompletionRate decimal.Decimal `json:"completion_rate"`
}

// GetCompletionReport counts runs by status per location over a scheduled
// date range and derives the completion percentage. Cached on TTL only; the
// key space is date-parameterized so the aggregator cannot enumerate it.
func GetCompletionReport(ctx context.Context, locationId *int, fromDate models.MyDateString, toDate models.MyDateString) ([]*CompletionReportResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "completion_report", start, map[string]any{
		"from": fmt.Sprintf("%v", time.Time(fromDate).UTC()),
		"to":   fmt.Sprintf("%v", time.Time(toDate).UTC()),
	})

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// scheduled dates are calendar days pinned to UTC midnight, so the range
	// bounds pin the same way instead of shifting through the timezone
	from := time.Time(fromDate)
	to := time.Time(toDate)
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	if toDay.Before(fromDay) {
		return nil, errors.New("to date must not be before from date")
	}

	if locationId != nil && *locationId != 0 {
		if err := utils.ValidateResourceId[models.Location](ctx, businessId, locationId); err != nil {
			return nil, errors.New("location not found")
		}
	}

	if reportCacheEnabled() {
		key := fmt.Sprintf("report:completion:%s:%d:%s:%s",
			businessId, utils.DereferencePtr(locationId),
			fromDay.Format("2006-01-02"), toDay.Format("2006-01-02"))
		var cached []*CompletionReportResponse
		if ok, err := cacheGet(key, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
		rows, err := getCompletionReport(ctx, businessId, locationId, fromDay, toDay)
		if err != nil {
			return nil, err
		}
		_ = cacheSet(key, rows, reportCacheTTL())
		return rows, nil
	}

	return getCompletionReport(ctx, businessId, locationId, fromDay, toDay)
}

func getCompletionReport(ctx context.Context, businessId string, locationId *int, fromDay time.Time, toDay time.Time) ([]*CompletionReportResponse, error) {

	sqlT := `
SELECT
    runs.location_id,
    locations.name AS location_name,
    runs.total_runs,
    runs.completed_runs,
    runs.expired_runs,
    runs.pending_runs
FROM
    (SELECT
        location_id,
            COUNT(check_runs.id) AS total_runs,
            SUM(CASE
                WHEN current_status = 'COMPLETED' THEN 1
                ELSE 0
            END) AS completed_runs,
            SUM(CASE
                WHEN current_status = 'EXPIRED' THEN 1
                ELSE 0
            END) AS expired_runs,
            SUM(CASE
                WHEN current_status = 'PENDING' THEN 1
                ELSE 0
            END) AS pending_runs
    FROM
        check_runs
    WHERE
        business_id = @businessId
            AND scheduled_date BETWEEN @fromDay AND @toDay
	{{- if .locationId }} AND location_id = @locationId {{- end }}
    GROUP BY location_id) AS runs
        LEFT JOIN
    locations ON locations.id = runs.location_id
ORDER BY runs.location_id;
`

	// generating sql from template
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"locationId": utils.DereferencePtr(locationId),
	})
	if err != nil {
		return nil, err
	}

	var rows []*CompletionReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"fromDay":    fromDay,
		"toDay":      toDay,
		"locationId": locationId,
	}).Scan(&rows).Error; err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	for _, row := range rows {
		if row.TotalRuns > 0 {
			row.CompletionRate = decimal.NewFromInt(int64(row.CompletedRuns)).
				Div(decimal.NewFromInt(int64(row.TotalRuns))).
				Mul(hundred).Round(2)
		}
	}

	return rows, nil
}

func (r CompletionReportResponse) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.LocationName, ""),
		r.TotalRuns,
		r.CompletedRuns,
		r.ExpiredRuns,
		r.PendingRuns,
		r.CompletionRate,
	}
}
