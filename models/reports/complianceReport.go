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
	"github.com/xuri/excelize/v2"
)

const (
	complianceSummarySheet = "Summary"
	actionBacklogSheet     = "Corrective Actions"
)

type ComplianceSummaryRow struct {
	LocationId     int             `json:"location_id"`
	LocationName   *string         `json:"location_name,omitempty"`
	TotalRuns      int             `json:"total_runs"`
	CompletedRuns  int             `json:"completed_runs"`
	ExpiredRuns    int             `json:"expired_runs"`
	PendingRuns    int             `json:"pending_runs"`
	CompletionRate decimal.Decimal `json:"completion_rate"`
	PassCount      int             `json:"pass_count"`
	FailCount      int             `json:"fail_count"`
	SkipCount      int             `json:"skip_count"`
	CurrentStreak  int             `json:"current_streak"`
	LongestStreak  int             `json:"longest_streak"`
}

type ActionBacklogRow struct {
	ActionId      int        `json:"action_id"`
	LocationName  *string    `json:"location_name,omitempty"`
	Title         string     `json:"title"`
	Severity      string     `json:"severity"`
	CurrentStatus string     `json:"current_status"`
	DueAt         time.Time  `json:"due_at"`
	AssigneeName  *string    `json:"assignee_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	Overdue       bool       `json:"overdue" gorm:"-"`
}

// GetComplianceSummary merges the per-location run counts over the range
// with response outcome counts and the lifetime location streaks. Streak
// columns are not range-bound; the streak is whatever it is today.
func GetComplianceSummary(ctx context.Context, fromDate models.MyDateString, toDate models.MyDateString) ([]*ComplianceSummaryRow, error) {
	start := time.Now()
	defer logSlowReport(ctx, "compliance_summary", start, map[string]any{
		"from": fmt.Sprintf("%v", time.Time(fromDate).UTC()),
		"to":   fmt.Sprintf("%v", time.Time(toDate).UTC()),
	})

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	completion, err := GetCompletionReport(ctx, nil, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	from := time.Time(fromDate)
	to := time.Time(toDate)
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	outcomeSql := `
SELECT
    check_runs.location_id,
    SUM(CASE
        WHEN check_responses.status = 'PASS' THEN 1
        ELSE 0
    END) AS pass_count,
    SUM(CASE
        WHEN check_responses.status = 'FAIL' THEN 1
        ELSE 0
    END) AS fail_count,
    SUM(CASE
        WHEN check_responses.status = 'SKIPPED' THEN 1
        ELSE 0
    END) AS skip_count
FROM
    check_responses
        JOIN
    check_runs ON check_runs.id = check_responses.run_id
WHERE
    check_responses.business_id = ?
        AND check_runs.scheduled_date BETWEEN ? AND ?
GROUP BY check_runs.location_id;
`

	type outcomeRow struct {
		LocationId int
		PassCount  int
		FailCount  int
		SkipCount  int
	}
	var outcomes []outcomeRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(outcomeSql, businessId, fromDay, toDay).Scan(&outcomes).Error; err != nil {
		return nil, err
	}
	outcomeByLocation := make(map[int]outcomeRow, len(outcomes))
	for _, o := range outcomes {
		outcomeByLocation[o.LocationId] = o
	}

	type streakRow struct {
		LocationId    int
		CurrentStreak int
		LongestStreak int
	}
	var streaks []streakRow
	err = db.WithContext(ctx).Model(&models.CheckStreak{}).
		Select("location_id, current_streak, longest_streak").
		Where("business_id = ? AND manager_id = 0", businessId).
		Scan(&streaks).Error
	if err != nil {
		return nil, err
	}
	streakByLocation := make(map[int]streakRow, len(streaks))
	for _, s := range streaks {
		streakByLocation[s.LocationId] = s
	}

	rows := make([]*ComplianceSummaryRow, 0, len(completion))
	for _, c := range completion {
		row := ComplianceSummaryRow{
			LocationId:     c.LocationId,
			LocationName:   c.LocationName,
			TotalRuns:      c.TotalRuns,
			CompletedRuns:  c.CompletedRuns,
			ExpiredRuns:    c.ExpiredRuns,
			PendingRuns:    c.PendingRuns,
			CompletionRate: c.CompletionRate,
		}
		if o, ok := outcomeByLocation[c.LocationId]; ok {
			row.PassCount = o.PassCount
			row.FailCount = o.FailCount
			row.SkipCount = o.SkipCount
		}
		if s, ok := streakByLocation[c.LocationId]; ok {
			row.CurrentStreak = s.CurrentStreak
			row.LongestStreak = s.LongestStreak
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

// GetActionBacklog lists the corrective actions opened within the range,
// unresolved ones first. Range bounds follow the business timezone because
// actions are stamped with real open times, not calendar slots.
func GetActionBacklog(ctx context.Context, fromDate models.MyDateString, toDate models.MyDateString) ([]*ActionBacklogRow, error) {
	start := time.Now()
	defer logSlowReport(ctx, "action_backlog", start, map[string]any{
		"from": fmt.Sprintf("%v", time.Time(fromDate).UTC()),
		"to":   fmt.Sprintf("%v", time.Time(toDate).UTC()),
	})

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := models.GetBusiness(ctx)
	if err != nil {
		return nil, errors.New("business id is required")
	}
	if err := fromDate.StartOfDayUTCTime(business.Timezone); err != nil {
		return nil, err
	}
	if err := toDate.EndOfDayUTCTime(business.Timezone); err != nil {
		return nil, err
	}

	sql := `
SELECT
    ca.id AS action_id,
    locations.name AS location_name,
    ca.title,
    ca.severity,
    ca.current_status,
    ca.due_at,
    u.name AS assignee_name,
    ca.created_at,
    ca.resolved_at
FROM
    corrective_actions ca
        LEFT JOIN
    locations ON locations.id = ca.location_id
        LEFT JOIN
    users u ON u.id = ca.assignee_id
WHERE
    ca.business_id = @businessId
        AND ca.created_at BETWEEN @fromDate AND @toDate
ORDER BY FIELD(ca.current_status,
        'OPEN',
        'IN_PROGRESS',
        'RESOLVED',
        'VERIFIED',
        'DISMISSED'),
    ca.due_at,
    ca.id;
`

	var rows []*ActionBacklogRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"fromDate":   fromDate,
		"toDate":     toDate,
	}).Scan(&rows).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	for _, row := range rows {
		stillOpen := row.CurrentStatus == string(models.CorrectiveActionStatusOpen) ||
			row.CurrentStatus == string(models.CorrectiveActionStatusInProgress)
		row.Overdue = stillOpen && row.DueAt.Before(now)
	}

	return rows, nil
}

// BuildComplianceWorkbook assembles the download the dashboard offers: one
// summary sheet per location over the range plus the corrective action
// backlog opened in the same window.
func BuildComplianceWorkbook(ctx context.Context, fromDate models.MyDateString, toDate models.MyDateString) (*excelize.File, error) {

	summary, err := GetComplianceSummary(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	backlog, err := GetActionBacklog(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", complianceSummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(actionBacklogSheet); err != nil {
		return nil, err
	}

	summaryRows := make([]ExcelExporter, 0, len(summary))
	for _, r := range summary {
		summaryRows = append(summaryRows, r)
	}
	writeSheet(f, complianceSummarySheet, []string{
		"Location", "Total Runs", "Completed", "Expired", "Pending",
		"Completion %", "Pass", "Fail", "Skip", "Current Streak", "Longest Streak",
	}, summaryRows)

	backlogRows := make([]ExcelExporter, 0, len(backlog))
	for _, r := range backlog {
		backlogRows = append(backlogRows, r)
	}
	writeSheet(f, actionBacklogSheet, []string{
		"Location", "Check", "Severity", "Status", "Due", "Overdue",
		"Assignee", "Opened", "Resolved",
	}, backlogRows)

	return f, nil
}

func (r ComplianceSummaryRow) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.LocationName, ""),
		r.TotalRuns,
		r.CompletedRuns,
		r.ExpiredRuns,
		r.PendingRuns,
		r.CompletionRate,
		r.PassCount,
		r.FailCount,
		r.SkipCount,
		r.CurrentStreak,
		r.LongestStreak,
	}
}

func (r ActionBacklogRow) GetCellValues() []interface{} {
	resolved := ""
	if r.ResolvedAt != nil {
		resolved = r.ResolvedAt.UTC().Format("2006-01-02")
	}
	overdue := ""
	if r.Overdue {
		overdue = "YES"
	}
	return []interface{}{
		utils.DereferencePtr(r.LocationName, ""),
		r.Title,
		r.Severity,
		r.CurrentStatus,
		r.DueAt.UTC().Format("2006-01-02"),
		overdue,
		utils.DereferencePtr(r.AssigneeName, ""),
		r.CreatedAt.UTC().Format("2006-01-02"),
		resolved,
	}
}
