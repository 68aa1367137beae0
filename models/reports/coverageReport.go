package reports

import (
	"context"
	"errors"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
)

type CoverageReportResponse struct {
	TemplateRootId  int        `json:"template_root_id"`
	Title           *string    `json:"title,omitempty"`
	Category        *string    `json:"category,omitempty"`
	Severity        *string    `json:"severity,omitempty"`
	UseCount        int        `json:"use_count"`
	LastUsedDate    *time.Time `json:"last_used_date"`
	LastOutcome     *string    `json:"last_outcome"`
	ConsecutivePass int        `json:"consecutive_pass"`
	ConsecutiveFail int        `json:"consecutive_fail"`
	PassCount       int        `json:"pass_count"`
	FailCount       int        `json:"fail_count"`
}

// GetCoverageReport returns the coverage rows of one location with the
// newest template title of each lineage joined in. A lineage whose every
// version was deleted still shows its counters, just without a title.
func GetCoverageReport(ctx context.Context, locationId int) ([]*CoverageReportResponse, error) {
	start := time.Now()
	defer logSlowReport(ctx, "coverage_report", start, map[string]any{
		"location_id": locationId,
	})

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if reportCacheEnabled() {
		key := coverageReportKey(businessId, locationId)
		var cached []*CoverageReportResponse
		if ok, err := cacheGet(key, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
		rows, err := getCoverageReport(ctx, businessId, locationId)
		if err != nil {
			return nil, err
		}
		_ = cacheSet(key, rows, reportCacheTTL())
		return rows, nil
	}

	return getCoverageReport(ctx, businessId, locationId)
}

func getCoverageReport(ctx context.Context, businessId string, locationId int) ([]*CoverageReportResponse, error) {

	sql := `
SELECT
    cc.template_root_id,
    t.title,
    t.category,
    t.severity,
    cc.use_count,
    cc.last_used_date,
    cc.last_outcome,
    cc.consecutive_pass,
    cc.consecutive_fail,
    cc.pass_count,
    cc.fail_count
FROM
    check_coverages cc
        LEFT JOIN
    (SELECT
        business_id, root_id, MAX(version) AS max_version
    FROM
        check_templates
    WHERE
        business_id = @businessId
    GROUP BY business_id , root_id) latest ON latest.business_id = cc.business_id
        AND latest.root_id = cc.template_root_id
        LEFT JOIN
    check_templates t ON t.business_id = latest.business_id
        AND t.root_id = latest.root_id
        AND t.version = latest.max_version
WHERE
    cc.business_id = @businessId
        AND cc.location_id = @locationId
ORDER BY cc.template_root_id;
`

	var rows []*CoverageReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"locationId": locationId,
	}).Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

func (r CoverageReportResponse) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.Title, ""),
		utils.DereferencePtr(r.Category, ""),
		utils.DereferencePtr(r.Severity, ""),
		r.UseCount,
		utils.DereferencePtr(r.LastOutcome, ""),
		r.ConsecutivePass,
		r.ConsecutiveFail,
		r.PassCount,
		r.FailCount,
	}
}
