package models

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// CheckRun is one issued set of micro-checks for a location on a calendar
// day. Sequence 0 is the scheduled daily slot; instant and trial runs take
// the next free sequence so they never collide with it.
type CheckRun struct {
	ID            int            `gorm:"primary_key" json:"id"`
	BusinessId    string         `gorm:"index;not null;uniqueIndex:uq_run" json:"business_id"`
	LocationId    int            `gorm:"not null;uniqueIndex:uq_run" json:"location_id"`
	ScheduledDate time.Time      `gorm:"not null;uniqueIndex:uq_run" json:"scheduled_date"`
	SequenceNo    int            `gorm:"not null;default:0;uniqueIndex:uq_run" json:"sequence_no"`
	Timezone      string         `gorm:"size:50" json:"timezone"`
	RetentionDays int            `gorm:"not null;default:0" json:"retention_days"`
	RunType       CheckRunType   `gorm:"type:enum('SCHEDULED', 'INSTANT', 'TRIAL');default:SCHEDULED" json:"run_type"`
	CurrentStatus CheckRunStatus `gorm:"type:enum('PENDING', 'COMPLETED', 'EXPIRED');default:PENDING" json:"current_status"`
	ExpiresAt     time.Time      `gorm:"not null" json:"expires_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	CompletedDate *time.Time     `json:"completed_date"`
	Items         []CheckRunItem `gorm:"foreignKey:RunId" json:"items,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckRunItem is the frozen copy of a template taken at generation time.
// Rows are never updated; template edits after generation cannot reshape a
// run that is already in someone's hands.
type CheckRunItem struct {
	ID               int            `gorm:"primary_key" json:"id"`
	BusinessId       string         `gorm:"index;not null" json:"business_id"`
	RunId            int            `gorm:"index;not null" json:"run_id"`
	Position         int            `gorm:"not null;default:0" json:"position"`
	TemplateId       int            `gorm:"index;not null" json:"template_id"`
	TemplateRootId   int            `gorm:"index;not null" json:"template_root_id"`
	TemplateVersion  int            `gorm:"not null;default:1" json:"template_version"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Category         CheckCategory  `gorm:"type:enum('FS', 'CL', 'EQ', 'SF', 'BR', 'DC');not null" json:"category"`
	Severity         CheckSeverity  `gorm:"type:enum('C', 'H', 'M', 'L');not null" json:"severity"`
	PassCriteria     string         `gorm:"type:text" json:"pass_criteria"`
	EvidenceRequired *bool          `gorm:"not null" json:"evidence_required"`
	EvidenceReason   EvidenceReason `gorm:"type:enum('NONE', 'ALW', 'FT', 'AF', 'RS');default:NONE" json:"evidence_reason"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCheckRun struct {
	LocationId int           `json:"location_id" binding:"required"`
	Date       *MyDateString `json:"date"`
}

func (run CheckRun) GetBusinessId() string {
	return run.BusinessId
}

// RunItemView pairs a frozen item with its current response, if any.
type RunItemView struct {
	CheckRunItem
	Response *CheckResponse `json:"response"`
}

// RunView is what a link recipient (or the dashboard) sees for one run.
type RunView struct {
	Run            *CheckRun      `json:"run"`
	LocationName   string         `json:"location_name"`
	Items          []*RunItemView `json:"items"`
	RespondedCount int            `json:"responded_count"`
	RunCompleted   bool           `json:"run_completed"`
}

/* selection */

// selectionScore weighs one candidate against the current pick state. Kept
// pure so the ranking can be unit tested without a database.
func selectionScore(template *CheckTemplate, coverage *CheckCoverage, pickedPerCategory map[CheckCategory]int, previousSingleCategory *CheckCategory, asOf time.Time) int {
	score := template.RotationPriority * 10

	// recency: never-used lineages dominate so new checks surface fast
	if coverage == nil || coverage.UseCount == 0 || coverage.LastUsedDate == nil {
		score += 1000
	} else {
		days := int(asOf.Sub(*coverage.LastUsedDate).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if days > 365 {
			days = 365
		}
		score += days
	}

	// failing checks come back sooner
	if coverage != nil && coverage.ConsecutiveFail > 0 {
		boost := 25 * coverage.ConsecutiveFail
		if boost > 100 {
			boost = 100
		}
		score += boost
	}

	// keep one run from collapsing into a single category
	score -= 150 * pickedPerCategory[template.Category]
	if previousSingleCategory != nil && template.Category == *previousSingleCategory {
		score -= 100
	}

	return score
}

// SelectRunTemplates picks up to n templates for a run. Deterministic for a
// given input: scores decide, ties fall to the older (or never) used lineage
// and then the lower id.
func SelectRunTemplates(candidates []*CheckTemplate, coverage map[int]*CheckCoverage, previousCategories []CheckCategory, asOf time.Time, n int) []*CheckTemplate {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	var previousSingleCategory *CheckCategory
	if len(previousCategories) > 0 {
		single := true
		for _, c := range previousCategories[1:] {
			if c != previousCategories[0] {
				single = false
				break
			}
		}
		if single {
			previousSingleCategory = &previousCategories[0]
		}
	}

	remaining := make([]*CheckTemplate, len(candidates))
	copy(remaining, candidates)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].ID < remaining[j].ID })

	pickedPerCategory := make(map[CheckCategory]int)
	var picked []*CheckTemplate

	for len(picked) < n && len(remaining) > 0 {
		bestIdx := 0
		bestScore := selectionScore(remaining[0], coverage[remaining[0].RootId], pickedPerCategory, previousSingleCategory, asOf)
		for i := 1; i < len(remaining); i++ {
			score := selectionScore(remaining[i], coverage[remaining[i].RootId], pickedPerCategory, previousSingleCategory, asOf)
			if score > bestScore || (score == bestScore && usedBefore(coverage[remaining[i].RootId], coverage[remaining[bestIdx].RootId])) {
				bestIdx = i
				bestScore = score
			}
		}
		best := remaining[bestIdx]
		picked = append(picked, best)
		pickedPerCategory[best.Category]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return picked
}

// usedBefore reports whether a's last use predates b's. Never-used sorts
// before any real date.
func usedBefore(a *CheckCoverage, b *CheckCoverage) bool {
	aLast := lastUsedOf(a)
	bLast := lastUsedOf(b)
	if aLast == nil && bLast == nil {
		return false
	}
	if aLast == nil {
		return true
	}
	if bLast == nil {
		return false
	}
	return aLast.Before(*bLast)
}

func lastUsedOf(c *CheckCoverage) *time.Time {
	if c == nil || c.UseCount == 0 {
		return nil
	}
	return c.LastUsedDate
}

/* evidence */

func evidenceSamplePct() int {
	if v := os.Getenv("EVIDENCE_SAMPLE_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			return n
		}
	}
	return 20
}

// EvidenceSampleSeed builds the deterministic seed for the random-sample
// policy, so regenerating the same run slot samples the same items.
func EvidenceSampleSeed(businessId string, locationId int, scheduledDate time.Time, sequenceNo int, templateRootId int) string {
	return fmt.Sprintf("%s|%d|%s|%d|%d", businessId, locationId, scheduledDate.Format("2006-01-02"), sequenceNo, templateRootId)
}

// SampledForEvidence hashes the seed and compares against the sample
// percentage. fnv64a keeps it stable across processes and restarts.
func SampledForEvidence(seed string, samplePct int) bool {
	if samplePct <= 0 {
		return false
	}
	if samplePct >= 100 {
		return true
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int(h.Sum64()%100) < samplePct
}

// DecideEvidence resolves a template's evidence policy against the
// location's coverage for that lineage.
func DecideEvidence(policy EvidencePolicy, coverage *CheckCoverage, sampleSeed string, samplePct int) (bool, EvidenceReason) {
	switch policy {
	case EvidencePolicyAlways:
		return true, EvidenceReasonAlways
	case EvidencePolicyNever:
		return false, EvidenceReasonNone
	case EvidencePolicyFirstTime:
		if coverage == nil || coverage.UseCount == 0 {
			return true, EvidenceReasonFirstTime
		}
		return false, EvidenceReasonNone
	case EvidencePolicyAfterFail:
		if coverage != nil && coverage.ConsecutiveFail > 0 {
			return true, EvidenceReasonAfterFail
		}
		return false, EvidenceReasonNone
	case EvidencePolicyRandomSample:
		if SampledForEvidence(sampleSeed, samplePct) {
			return true, EvidenceReasonRandomSample
		}
		return false, EvidenceReasonNone
	default:
		return false, EvidenceReasonNone
	}
}

/* generation */

// GenerateRun creates (or returns) the scheduled run for a location and
// calendar date. Re-invoking the same slot is idempotent: the unique
// (business, location, date, 0) key makes the second caller adopt the first
// caller's run.
func GenerateRun(ctx context.Context, locationId int, date *MyDateString) (*CheckRun, error) {

	var day time.Time
	if date != nil {
		d := time.Time(*date)
		// the Y/M/D fields name the location-local day; pin to UTC midnight
		day = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return generateRun(ctx, locationId, day, CheckRunTypeScheduled)
}

// GenerateInstantRun opens an extra on-demand run for today.
func GenerateInstantRun(ctx context.Context, locationId int) (*CheckRun, error) {
	return generateRun(ctx, locationId, time.Time{}, CheckRunTypeInstant)
}

// GenerateTrialRun opens a practice run for today. Same mechanics as
// instant; the type lets dashboards exclude it from compliance stats.
func GenerateTrialRun(ctx context.Context, locationId int) (*CheckRun, error) {
	return generateRun(ctx, locationId, time.Time{}, CheckRunTypeTrial)
}

func generateRun(ctx context.Context, locationId int, day time.Time, runType CheckRunType) (*CheckRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	location, err := GetLocation(ctx, locationId)
	if err != nil {
		return nil, err
	}
	if location.IsActive == nil || !*location.IsActive {
		return nil, errors.New("location is not active")
	}
	timezone := location.ResolveTimezone(ctx)

	if day.IsZero() {
		day, err = localCalendarDate(time.Now(), timezone)
		if err != nil {
			return nil, err
		}
	}
	dayStr := day.Format("2006-01-02")

	// the daily slot short-circuits before any locking
	if runType == CheckRunTypeScheduled {
		if existing, err := findRunBySlot(ctx, businessId, locationId, day, 0); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	lock, err := utils.ObtainScopedLock(ctx, fmt.Sprintf("rungen:%d:%s", locationId, dayStr), 30*time.Second)
	if err == nil && lock != nil {
		defer lock.Release(context.Background())
	}

	expiresAt, err := horizonFromCalendarDay(day, timezone, runGraceDays())
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	candidates, err := ListRotationCandidates(ctx, tx, businessId, locationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(candidates) == 0 {
		tx.Rollback()
		return nil, ErrNoTemplatesAvailable
	}

	coverage, err := GetCoverageMap(ctx, tx, businessId, locationId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	previousCategories, err := previousRunCategories(ctx, tx, businessId, locationId, day)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	picked := SelectRunTemplates(candidates, coverage, previousCategories, day, location.DailyCount())

	sequenceNo := 0
	if runType != CheckRunTypeScheduled {
		scopeKey := fmt.Sprintf("%d:%s", locationId, dayStr)
		sequenceNo, err = utils.NextScopedSequence[CheckRun](ctx, businessId, scopeKey, "location_id = ? AND scheduled_date = ?", locationId, day)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	run := CheckRun{
		BusinessId:    businessId,
		LocationId:    locationId,
		ScheduledDate: day,
		SequenceNo:    sequenceNo,
		Timezone:      timezone,
		RetentionDays: location.RetentionDays,
		RunType:       runType,
		CurrentStatus: CheckRunStatusPending,
		ExpiresAt:     expiresAt,
	}

	samplePct := evidenceSamplePct()
	for i, template := range picked {
		required, reason := DecideEvidence(
			template.EvidencePolicy,
			coverage[template.RootId],
			EvidenceSampleSeed(businessId, locationId, day, sequenceNo, template.RootId),
			samplePct,
		)
		run.Items = append(run.Items, CheckRunItem{
			BusinessId:       businessId,
			Position:         i + 1,
			TemplateId:       template.ID,
			TemplateRootId:   template.RootId,
			TemplateVersion:  template.Version,
			Title:            template.Title,
			Category:         template.Category,
			Severity:         template.Severity,
			PassCriteria:     template.PassCriteria,
			EvidenceRequired: &required,
			EvidenceReason:   reason,
		})
	}

	if err := tx.WithContext(ctx).Create(&run).Error; err != nil {
		tx.Rollback()
		// lost the daily-slot race: the winner's run is the run
		if isDuplicateKeyErr(err) && runType == CheckRunTypeScheduled {
			return findExistingRunAfterRace(ctx, businessId, locationId, day)
		}
		return nil, err
	}

	// recount rather than increment so replays cannot double-count
	for _, template := range picked {
		if err := RecomputeCoverage(ctx, tx, businessId, locationId, template.RootId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func findRunBySlot(ctx context.Context, businessId string, locationId int, day time.Time, sequenceNo int) (*CheckRun, error) {
	db := config.GetDB()
	var run CheckRun
	err := db.WithContext(ctx).Preload("Items").
		Where("business_id = ? AND location_id = ? AND scheduled_date = ? AND sequence_no = ?",
			businessId, locationId, day, sequenceNo).
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func findExistingRunAfterRace(ctx context.Context, businessId string, locationId int, day time.Time) (*CheckRun, error) {
	existing, err := findRunBySlot(ctx, businessId, locationId, day, 0)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("run creation collided but the winning run cannot be found")
	}
	return existing, nil
}

func previousRunCategories(ctx context.Context, tx *gorm.DB, businessId string, locationId int, before time.Time) ([]CheckCategory, error) {
	var previous CheckRun
	err := tx.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND scheduled_date < ?", businessId, locationId, before).
		Order("scheduled_date DESC, sequence_no DESC").
		Take(&previous).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var categories []CheckCategory
	err = tx.WithContext(ctx).Model(&CheckRunItem{}).
		Where("run_id = ?", previous.ID).
		Order("position").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

/* reads */

func GetCheckRun(ctx context.Context, id int) (*CheckRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	run, err := utils.FetchModel[CheckRun](ctx, businessId, id, "Items")
	if err != nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// GetRunView assembles the recipient-facing view: frozen items with their
// current responses and the completion tally.
func GetRunView(ctx context.Context, runId int) (*RunView, error) {

	run, err := GetCheckRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	return buildRunView(ctx, config.GetDB(), run)
}

func buildRunView(ctx context.Context, db *gorm.DB, run *CheckRun) (*RunView, error) {

	var responses []*CheckResponse
	err := db.WithContext(ctx).
		Where("business_id = ? AND run_id = ?", run.BusinessId, run.ID).
		Find(&responses).Error
	if err != nil {
		return nil, err
	}
	byItem := make(map[int]*CheckResponse, len(responses))
	for _, response := range responses {
		byItem[response.RunItemId] = response
	}

	var locationName string
	location, err := GetLocation(ctx, run.LocationId)
	if err == nil {
		locationName = location.Name
	}

	view := RunView{
		Run:          run,
		LocationName: locationName,
		RunCompleted: run.CurrentStatus == CheckRunStatusCompleted,
	}
	sort.Slice(run.Items, func(i, j int) bool { return run.Items[i].Position < run.Items[j].Position })
	for i := range run.Items {
		item := run.Items[i]
		itemView := RunItemView{CheckRunItem: item, Response: byItem[item.ID]}
		if itemView.Response != nil {
			view.RespondedCount++
		}
		view.Items = append(view.Items, &itemView)
	}
	return &view, nil
}

func GetCheckRuns(ctx context.Context, locationId *int, status *CheckRunStatus, fromDate *MyDateString, toDate *MyDateString) ([]*CheckRun, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CheckRun

	// listings carry counts, not the frozen items; detail views preload them
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", locationId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", status)
	}
	if fromDate != nil {
		from := time.Time(*fromDate)
		dbCtx = dbCtx.Where("scheduled_date >= ?", time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC))
	}
	if toDate != nil {
		to := time.Time(*toDate)
		dbCtx = dbCtx.Where("scheduled_date <= ?", time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC))
	}
	if err := dbCtx.Order("scheduled_date DESC, sequence_no DESC").Limit(200).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

/* expiry */

// runExpiredNow reports whether a still-pending run has passed its horizon.
func runExpiredNow(run *CheckRun, now time.Time) bool {
	return run.CurrentStatus == CheckRunStatusPending && now.After(run.ExpiresAt)
}

// markRunExpired flips a run and its live assignments to EXPIRED inside the
// caller's transaction.
func markRunExpired(ctx context.Context, tx *gorm.DB, run *CheckRun) error {
	if err := tx.WithContext(ctx).Model(&CheckRun{}).
		Where("id = ? AND current_status = ?", run.ID, CheckRunStatusPending).
		UpdateColumn("current_status", CheckRunStatusExpired).Error; err != nil {
		return err
	}
	run.CurrentStatus = CheckRunStatusExpired
	return expireLiveAssignments(ctx, tx, run.ID)
}

// ExpireOverdueRuns sweeps the calling tenant's overdue PENDING runs.
// Correctness never depends on the sweep; resolve and submit check the wall
// clock themselves. Returns how many runs were flipped.
func ExpireOverdueRuns(ctx context.Context, asOf time.Time) (int, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}

	db := config.GetDB()
	var overdue []*CheckRun
	err := db.WithContext(ctx).
		Where("business_id = ? AND current_status = ? AND expires_at <= ?", businessId, CheckRunStatusPending, asOf).
		Order("id").
		Find(&overdue).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, run := range overdue {
		tx := db.Begin()
		if err := markRunExpired(ctx, tx, run); err != nil {
			tx.Rollback()
			return expired, err
		}
		if err := tx.Commit().Error; err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// GenerateDailyRunsForBusiness opens today's scheduled run at every active
// location of the calling tenant. Locations without templates are skipped,
// not fatal; the caller decides how loudly to report them.
func GenerateDailyRunsForBusiness(ctx context.Context) ([]*CheckRun, []error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, []error{errors.New("business id is required")}
	}

	db := config.GetDB()
	locations, err := GetActiveLocationsForBusiness(ctx, db, businessId)
	if err != nil {
		return nil, []error{err}
	}

	var runs []*CheckRun
	var failures []error
	for _, location := range locations {
		run, err := GenerateRun(ctx, location.ID, nil)
		if err != nil {
			failures = append(failures, fmt.Errorf("location %d: %w", location.ID, err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, failures
}

// DailyRunReport sums up one scheduler pass for the ops log.
type DailyRunReport struct {
	Businesses int     `json:"businesses"`
	Runs       int     `json:"runs"`
	Issued     int     `json:"issued"`
	Failures   []error `json:"-"`
}

// GenerateDailyRunsAcrossBusinesses is the clock-trigger entry. It walks every
// active business, opens today's scheduled runs and, when auto-issue is on,
// links each location's active field managers over their preferred channel.
// Re-triggering is safe: existing runs come back as-is and recipients who
// still hold a live link are skipped.
func GenerateDailyRunsAcrossBusinesses(ctx context.Context) (*DailyRunReport, error) {
	db := config.GetDB()
	var businesses []*Business
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&businesses).Error; err != nil {
		return nil, err
	}

	report := &DailyRunReport{}
	for _, business := range businesses {
		bizCtx := utils.SetBusinessIdInContext(ctx, business.ID.String())
		bizCtx = utils.SetUserIdInContext(bizCtx, 0)
		bizCtx = utils.SetUserNameInContext(bizCtx, "Scheduler")

		report.Businesses++
		runs, failures := GenerateDailyRunsForBusiness(bizCtx)
		report.Runs += len(runs)
		for _, failure := range failures {
			report.Failures = append(report.Failures, fmt.Errorf("business %s: %w", business.ID, failure))
		}

		if !config.AutoIssueDailyLinks() {
			continue
		}
		for _, run := range runs {
			issued, issueFailures := autoIssueRunAssignments(bizCtx, db, run)
			report.Issued += issued
			report.Failures = append(report.Failures, issueFailures...)
		}
	}
	return report, nil
}

// autoIssueRunAssignments links every active field manager of the run's
// location, skipping anyone who still holds a live link for it.
func autoIssueRunAssignments(ctx context.Context, db *gorm.DB, run *CheckRun) (int, []error) {
	managers, err := GetActiveFieldManagers(ctx, db, run.BusinessId, run.LocationId)
	if err != nil {
		return 0, []error{fmt.Errorf("run %d: %w", run.ID, err)}
	}

	issued := 0
	var failures []error
	for _, manager := range managers {
		live, err := hasLiveAssignment(ctx, db, run.ID, manager.ID)
		if err != nil {
			failures = append(failures, fmt.Errorf("run %d user %d: %w", run.ID, manager.ID, err))
			continue
		}
		if live {
			continue
		}
		channel := manager.PreferredChannel
		if channel == "" {
			channel = AssignmentChannelEmail
		}
		if _, err := IssueAssignment(ctx, &NewCheckAssignment{
			RunId:       run.ID,
			RecipientId: manager.ID,
			Channel:     channel,
		}); err != nil {
			failures = append(failures, fmt.Errorf("run %d user %d: %w", run.ID, manager.ID, err))
			continue
		}
		issued++
	}
	return issued, failures
}

// hasLiveAssignment reports whether the recipient already holds a usable link
// for the run. A completed, failed or expired link does not block a fresh one.
func hasLiveAssignment(ctx context.Context, db *gorm.DB, runId int, recipientId int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&CheckAssignment{}).
		Where("run_id = ? AND recipient_id = ? AND current_status IN ?", runId, recipientId,
			[]AssignmentStatus{AssignmentStatusPending, AssignmentStatusSent, AssignmentStatusAccessed}).
		Count(&count).Error
	return count > 0, err
}

// ExpireOverdueRunsAcrossBusinesses runs the expiry sweep for every active
// business. Safe at any cadence; resolve and submit never depend on it.
func ExpireOverdueRunsAcrossBusinesses(ctx context.Context, asOf time.Time) (int, []error) {
	db := config.GetDB()
	var businesses []*Business
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&businesses).Error; err != nil {
		return 0, []error{err}
	}

	total := 0
	var failures []error
	for _, business := range businesses {
		bizCtx := utils.SetBusinessIdInContext(ctx, business.ID.String())
		bizCtx = utils.SetUserIdInContext(bizCtx, 0)
		bizCtx = utils.SetUserNameInContext(bizCtx, "Sweeper")
		expired, err := ExpireOverdueRuns(bizCtx, asOf)
		total += expired
		if err != nil {
			failures = append(failures, fmt.Errorf("business %s: %w", business.ID, err))
		}
	}
	return total, failures
}
