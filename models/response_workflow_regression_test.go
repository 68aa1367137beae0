package models_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/opsfocus/checks_backend/workflow"
	"github.com/sirupsen/logrus"
)

func TestSubmitResponse_FailOpensAction_WorkflowRecountsAggregates(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME_2", "linecheck_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     "Night Audit Kitchen",
		Email:    "owner@nightaudit.test",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	locations, err := models.GetLocations(ctx, nil)
	if err != nil {
		t.Fatalf("GetLocations: %v", err)
	}
	loc := locations[0]

	db := config.GetDB()

	// park the starter pack so the run draws from a known two-template pool
	err = db.WithContext(ctx).Model(&models.CheckTemplate{}).
		Where("business_id = ?", businessID).
		Update("in_rotation", false).Error
	if err != nil {
		t.Fatalf("retire starter templates: %v", err)
	}

	cold, err := models.CreateCheckTemplate(ctx, &models.NewCheckTemplate{
		Title:            "Cold holding below 41F",
		Category:         models.CheckCategoryFoodSafety,
		Severity:         models.CheckSeverityCritical,
		EvidencePolicy:   models.EvidencePolicyNever,
		RotationPriority: 5,
		InRotation:       utils.NewTrue(),
		IsActive:         utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateCheckTemplate (cold): %v", err)
	}
	door, err := models.CreateCheckTemplate(ctx, &models.NewCheckTemplate{
		Title:            "Walk-in door seal intact",
		Category:         models.CheckCategoryEquipment,
		Severity:         models.CheckSeverityMedium,
		EvidencePolicy:   models.EvidencePolicyNever,
		RotationPriority: 4,
		InRotation:       utils.NewTrue(),
		IsActive:         utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateCheckTemplate (door): %v", err)
	}

	run, err := models.GenerateRun(ctx, loc.ID, nil)
	if err != nil {
		t.Fatalf("GenerateRun: %v", err)
	}
	if len(run.Items) != 2 {
		t.Fatalf("expected the pool of 2 to cap the run at 2 items, got %d", len(run.Items))
	}
	byRoot := map[int]*models.CheckRunItem{}
	for i := range run.Items {
		byRoot[run.Items[i].TemplateRootId] = &run.Items[i]
	}
	coldItem := byRoot[cold.RootId]
	doorItem := byRoot[door.RootId]
	if coldItem == nil || doorItem == nil {
		t.Fatalf("run items do not cover both lineages: %+v", byRoot)
	}

	// a critical fail opens an action due by end of the local day
	expectedDue, err := utils.EndOfLocalDay(time.Now(), "UTC", 0)
	if err != nil {
		t.Fatalf("EndOfLocalDay: %v", err)
	}
	failResult, err := models.SubmitResponse(ctx, &models.NewCheckResponse{
		RunId:     run.ID,
		RunItemId: coldItem.ID,
		Status:    models.ResponseStatusFail,
	})
	if err != nil {
		t.Fatalf("SubmitResponse (fail): %v", err)
	}
	if failResult.RunCompleted {
		t.Fatalf("one response of two cannot complete the run")
	}
	if failResult.CorrectiveActionId == 0 {
		t.Fatalf("a critical fail must open a corrective action")
	}

	action, err := models.GetCorrectiveAction(ctx, failResult.CorrectiveActionId)
	if err != nil {
		t.Fatalf("GetCorrectiveAction: %v", err)
	}
	if action.CurrentStatus != models.CorrectiveActionStatusOpen {
		t.Fatalf("expected OPEN, got %s", action.CurrentStatus)
	}
	if action.Severity != models.CheckSeverityCritical || action.Title != "Cold holding below 41F" {
		t.Fatalf("the action should carry the failed item's snapshot, got %+v", action)
	}
	if action.ResponseId != failResult.Response.ID {
		t.Fatalf("action points at response %d, want %d", action.ResponseId, failResult.Response.ID)
	}
	if !action.DueAt.Equal(expectedDue) {
		t.Fatalf("critical severity is due same day: want %s, got %s", expectedDue, action.DueAt)
	}
	if action.AssigneeId != failResult.Response.CompletedById {
		t.Fatalf("with no location owner the submitter owns the fix, got assignee %d", action.AssigneeId)
	}

	// the submission left events on the outbox
	var recordedEvents []models.WorkflowEventRecord
	err = db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ?", businessID, models.WorkflowReferenceTypeResponseRecorded).
		Order("id").
		Find(&recordedEvents).Error
	if err != nil {
		t.Fatalf("list response events: %v", err)
	}
	if len(recordedEvents) != 1 {
		t.Fatalf("expected 1 response-recorded event, got %d", len(recordedEvents))
	}
	var actionEventCount int64
	err = db.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("business_id = ? AND reference_type = ?", businessID, models.WorkflowReferenceTypeCorrectiveActionOpened).
		Count(&actionEventCount).Error
	if err != nil {
		t.Fatalf("count action events: %v", err)
	}
	if actionEventCount != 1 {
		t.Fatalf("expected 1 action-opened event, got %d", actionEventCount)
	}

	// replaying the fail event recounts coverage for the failed lineage
	logger := logrus.New()
	tx := db.Begin()
	if err := workflow.ProcessResponseRecordedWorkflow(ctx, tx, logger, models.ConvertToPubSubMessage(recordedEvents[0])); err != nil {
		tx.Rollback()
		t.Fatalf("ProcessResponseRecordedWorkflow: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit workflow tx: %v", err)
	}

	coverage := fetchCoverageByRoot(t, ctx, businessID, loc.ID)
	coldCov := coverage[cold.RootId]
	if coldCov == nil {
		t.Fatalf("no coverage row for the failed lineage")
	}
	if coldCov.UseCount != 1 || coldCov.FailCount != 1 || coldCov.ConsecutiveFail != 1 {
		t.Fatalf("after the fail: use=%d fail=%d consecutiveFail=%d", coldCov.UseCount, coldCov.FailCount, coldCov.ConsecutiveFail)
	}
	if coldCov.LastOutcome == nil || *coldCov.LastOutcome != models.ResponseStatusFail {
		t.Fatalf("expected last outcome FAIL, got %v", coldCov.LastOutcome)
	}
	var processed models.WorkflowEventRecord
	if err := db.WithContext(ctx).First(&processed, recordedEvents[0].ID).Error; err != nil {
		t.Fatalf("refetch event: %v", err)
	}
	if !processed.IsProcessed {
		t.Fatalf("the replayed event should be marked processed")
	}

	// correcting to PASS supersedes the action and stamps the override
	passResult, err := models.SubmitResponse(ctx, &models.NewCheckResponse{
		RunId:        run.ID,
		RunItemId:    coldItem.ID,
		Status:       models.ResponseStatusPass,
		OverrideNote: "manager re-probed at 38F",
	})
	if err != nil {
		t.Fatalf("SubmitResponse (correction): %v", err)
	}
	if passResult.Response.ID != failResult.Response.ID {
		t.Fatalf("the correction must update the row, not add one: %d vs %d", passResult.Response.ID, failResult.Response.ID)
	}
	if passResult.Response.OverriddenAt == nil || passResult.Response.OverrideNote != "manager re-probed at 38F" {
		t.Fatalf("the correction should be stamped: %+v", passResult.Response)
	}
	if passResult.CorrectiveActionId != 0 {
		t.Fatalf("a pass opens nothing, got action %d", passResult.CorrectiveActionId)
	}
	superseded, err := models.GetCorrectiveAction(ctx, failResult.CorrectiveActionId)
	if err != nil {
		t.Fatalf("GetCorrectiveAction (after correction): %v", err)
	}
	if superseded.CurrentStatus != models.CorrectiveActionStatusDismissed {
		t.Fatalf("expected the open action DISMISSED, got %s", superseded.CurrentStatus)
	}
	if superseded.DismissReason != "superseded by corrected response" {
		t.Fatalf("unexpected dismiss reason %q", superseded.DismissReason)
	}

	// the second pass finishes the run
	doneResult, err := models.SubmitResponse(ctx, &models.NewCheckResponse{
		RunId:     run.ID,
		RunItemId: doorItem.ID,
		Status:    models.ResponseStatusPass,
	})
	if err != nil {
		t.Fatalf("SubmitResponse (door): %v", err)
	}
	if !doneResult.RunCompleted {
		t.Fatalf("answering the last item should complete the run")
	}
	completedRun, err := models.GetCheckRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetCheckRun: %v", err)
	}
	if completedRun.CurrentStatus != models.CheckRunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", completedRun.CurrentStatus)
	}
	if completedRun.CompletedAt == nil || completedRun.CompletedDate == nil {
		t.Fatalf("completion should stamp both timestamps: %+v", completedRun)
	}
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !completedRun.CompletedDate.Equal(today) {
		t.Fatalf("completed date should pin today's calendar day: want %s, got %s", today, completedRun.CompletedDate)
	}

	// drain the outbox the way the worker loop does, oldest first
	var pending []models.WorkflowEventRecord
	err = db.WithContext(ctx).
		Where("business_id = ? AND is_processed = false", businessID).
		Order("id").
		Find(&pending).Error
	if err != nil {
		t.Fatalf("list pending events: %v", err)
	}
	for _, event := range pending {
		tx := db.Begin()
		msg := models.ConvertToPubSubMessage(event)
		switch event.ReferenceType {
		case models.WorkflowReferenceTypeResponseRecorded:
			err = workflow.ProcessResponseRecordedWorkflow(ctx, tx, logger, msg)
		case models.WorkflowReferenceTypeRunCompleted:
			err = workflow.ProcessRunCompletedWorkflow(ctx, tx, logger, msg)
		case models.WorkflowReferenceTypeAssignmentIssued:
			err = workflow.ProcessAssignmentIssuedWorkflow(ctx, tx, logger, msg)
		case models.WorkflowReferenceTypeCorrectiveActionOpened:
			err = workflow.ProcessCorrectiveActionOpenedWorkflow(ctx, tx, logger, msg)
		default:
			t.Fatalf("unexpected event type %s", event.ReferenceType)
		}
		if err != nil {
			tx.Rollback()
			t.Fatalf("replay event %d (%s): %v", event.ID, event.ReferenceType, err)
		}
		if err := tx.Commit().Error; err != nil {
			t.Fatalf("commit replay %d: %v", event.ID, err)
		}
	}
	var unprocessed int64
	err = db.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("business_id = ? AND is_processed = false", businessID).
		Count(&unprocessed).Error
	if err != nil {
		t.Fatalf("count unprocessed: %v", err)
	}
	if unprocessed != 0 {
		t.Fatalf("the drain left %d events behind", unprocessed)
	}

	// corrections recount, so the fail leaves no residue in coverage
	coverage = fetchCoverageByRoot(t, ctx, businessID, loc.ID)
	coldCov = coverage[cold.RootId]
	if coldCov.UseCount != 1 || coldCov.PassCount != 1 || coldCov.FailCount != 0 {
		t.Fatalf("corrected lineage: use=%d pass=%d fail=%d", coldCov.UseCount, coldCov.PassCount, coldCov.FailCount)
	}
	if coldCov.ConsecutiveFail != 0 || coldCov.ConsecutivePass != 1 {
		t.Fatalf("corrected lineage streaks: consecutiveFail=%d consecutivePass=%d", coldCov.ConsecutiveFail, coldCov.ConsecutivePass)
	}
	if coldCov.LastOutcome == nil || *coldCov.LastOutcome != models.ResponseStatusPass {
		t.Fatalf("expected last outcome PASS, got %v", coldCov.LastOutcome)
	}
	doorCov := coverage[door.RootId]
	if doorCov == nil || doorCov.UseCount != 1 || doorCov.PassCount != 1 || doorCov.ConsecutivePass != 1 {
		t.Fatalf("door lineage: %+v", doorCov)
	}

	// completion started the location streak; totals see the corrected rows
	streak, err := models.GetLocationStreak(ctx, loc.ID)
	if err != nil {
		t.Fatalf("GetLocationStreak: %v", err)
	}
	if streak.CurrentStreak != 1 || streak.LongestStreak != 1 {
		t.Fatalf("expected a one-day streak, got current=%d longest=%d", streak.CurrentStreak, streak.LongestStreak)
	}
	if streak.LastCompletedDate == nil || !streak.LastCompletedDate.Equal(today) {
		t.Fatalf("expected last completed %s, got %v", today, streak.LastCompletedDate)
	}
	if streak.TotalPass != 2 || streak.TotalFail != 0 {
		t.Fatalf("totals should count current rows only: pass=%d fail=%d", streak.TotalPass, streak.TotalFail)
	}
}

func fetchCoverageByRoot(t *testing.T, ctx context.Context, businessId string, locationId int) map[int]*models.CheckCoverage {
	t.Helper()
	rows, err := models.GetCoverageRows(ctx, businessId, locationId)
	if err != nil {
		t.Fatalf("GetCoverageRows: %v", err)
	}
	byRoot := map[int]*models.CheckCoverage{}
	for _, row := range rows {
		byRoot[row.TemplateRootId] = row
	}
	return byRoot
}
