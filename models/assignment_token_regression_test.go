package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/opsfocus/checks_backend/workflow"
	"github.com/sirupsen/logrus"
)

func TestIssueResolveAndRetireAssignmentLink(t *testing.T) {
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
		Name:     "Curbside Coffee",
		Email:    "owner@curbside.test",
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

	err = db.WithContext(ctx).Model(&models.CheckTemplate{}).
		Where("business_id = ?", businessID).
		Update("in_rotation", false).Error
	if err != nil {
		t.Fatalf("retire starter templates: %v", err)
	}
	for _, title := range []string{"Espresso machine group heads clean", "Pastry case at temperature"} {
		_, err := models.CreateCheckTemplate(ctx, &models.NewCheckTemplate{
			Title:            title,
			Category:         models.CheckCategoryCleaning,
			Severity:         models.CheckSeverityMedium,
			EvidencePolicy:   models.EvidencePolicyNever,
			RotationPriority: 3,
			InRotation:       utils.NewTrue(),
			IsActive:         utils.NewTrue(),
		})
		if err != nil {
			t.Fatalf("CreateCheckTemplate (%s): %v", title, err)
		}
	}

	shiftLead, err := models.CreateUser(ctx, &models.NewUser{
		LocationId:       loc.ID,
		Username:         "dara.lead",
		Name:             "Dara Lead",
		Email:            "dara@curbside.test",
		Password:         "opensesame1",
		Role:             models.UserRoleFieldManager,
		PreferredChannel: models.AssignmentChannelEmail,
		IsActive:         utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateUser (shift lead): %v", err)
	}
	noEmail, err := models.CreateUser(ctx, &models.NewUser{
		LocationId: loc.ID,
		Username:   "pat.opener",
		Name:       "Pat Opener",
		Password:   "opensesame2",
		Role:       models.UserRoleFieldManager,
		IsActive:   utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateUser (no email): %v", err)
	}

	run, err := models.GenerateRun(ctx, loc.ID, nil)
	if err != nil {
		t.Fatalf("GenerateRun: %v", err)
	}
	if len(run.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(run.Items))
	}

	// email delivery needs an email address
	_, err = models.IssueAssignment(ctx, &models.NewCheckAssignment{
		RunId:       run.ID,
		RecipientId: noEmail.ID,
		Channel:     models.AssignmentChannelEmail,
	})
	if err == nil {
		t.Fatalf("issuing an email link to a user without an email must fail")
	}

	issued, err := models.IssueAssignment(ctx, &models.NewCheckAssignment{
		RunId:       run.ID,
		RecipientId: shiftLead.ID,
		Channel:     models.AssignmentChannelEmail,
		SingleUse:   utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("IssueAssignment: %v", err)
	}
	const linkPrefix = "http://localhost:3000/c/"
	if !strings.HasPrefix(issued.LinkUrl, linkPrefix) {
		t.Fatalf("unexpected link url %q", issued.LinkUrl)
	}
	token := strings.TrimPrefix(issued.LinkUrl, linkPrefix)
	if len(token) != 43 {
		t.Fatalf("expected a 43 char token, got %d", len(token))
	}
	if issued.Assignment.TokenHash != utils.HashMagicToken(token) {
		t.Fatalf("the stored hash does not match the issued token")
	}
	if issued.Assignment.CurrentStatus != models.AssignmentStatusPending {
		t.Fatalf("a fresh assignment starts PENDING, got %s", issued.Assignment.CurrentStatus)
	}
	if !issued.Assignment.ExpiresAt.Equal(run.ExpiresAt) {
		t.Fatalf("the link must inherit the run horizon: %s vs %s", issued.Assignment.ExpiresAt, run.ExpiresAt)
	}

	// the issue event drives delivery; without a delivery endpoint configured
	// the send is a recorded no-op and the assignment still flips to SENT
	var issueEvents []models.WorkflowEventRecord
	err = db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ?", businessID, models.WorkflowReferenceTypeAssignmentIssued).
		Order("id").
		Find(&issueEvents).Error
	if err != nil {
		t.Fatalf("list issue events: %v", err)
	}
	if len(issueEvents) != 1 {
		t.Fatalf("expected 1 assignment-issued event, got %d", len(issueEvents))
	}
	logger := logrus.New()
	tx := db.Begin()
	if err := workflow.ProcessAssignmentIssuedWorkflow(ctx, tx, logger, models.ConvertToPubSubMessage(issueEvents[0])); err != nil {
		tx.Rollback()
		t.Fatalf("ProcessAssignmentIssuedWorkflow: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit delivery tx: %v", err)
	}
	sent, err := models.GetAssignment(ctx, issued.Assignment.ID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if sent.CurrentStatus != models.AssignmentStatusSent || sent.SentAt == nil {
		t.Fatalf("expected SENT with a timestamp, got %s sentAt=%v", sent.CurrentStatus, sent.SentAt)
	}

	// first open: the token resolves to a live run view
	resolved, err := models.ResolveAssignmentToken(ctx, token)
	if err != nil {
		t.Fatalf("ResolveAssignmentToken: %v", err)
	}
	if resolved.Assignment.CurrentStatus != models.AssignmentStatusAccessed {
		t.Fatalf("expected ACCESSED, got %s", resolved.Assignment.CurrentStatus)
	}
	if resolved.Assignment.AccessCount != 1 || resolved.Assignment.FirstAccessedAt == nil {
		t.Fatalf("expected the first access recorded, got count=%d firstAt=%v",
			resolved.Assignment.AccessCount, resolved.Assignment.FirstAccessedAt)
	}
	if resolved.ReadOnly {
		t.Fatalf("a live run must not resolve read-only")
	}
	if resolved.View == nil || resolved.View.Run.ID != run.ID {
		t.Fatalf("the view should carry the assigned run, got %+v", resolved.View)
	}
	if len(resolved.View.Items) != 2 || resolved.View.RespondedCount != 0 {
		t.Fatalf("expected 2 unanswered items, got %d answered %d",
			len(resolved.View.Items), resolved.View.RespondedCount)
	}

	// reopening before completion is fine, it just counts
	resolved, err = models.ResolveAssignmentToken(ctx, token)
	if err != nil {
		t.Fatalf("ResolveAssignmentToken (again): %v", err)
	}
	if resolved.Assignment.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", resolved.Assignment.AccessCount)
	}

	// a token nobody issued resolves to nothing
	if _, err := models.ResolveAssignmentToken(ctx, strings.Repeat("A", 43)); !errors.Is(err, models.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	// submissions through the link carry only what the link grants
	linkCtx := utils.SetBusinessIdInContext(context.Background(), businessID)
	linkCtx = utils.SetAssignmentIdInContext(linkCtx, issued.Assignment.ID)

	first, err := models.SubmitResponse(linkCtx, &models.NewCheckResponse{
		RunId:     run.ID,
		RunItemId: run.Items[0].ID,
		Status:    models.ResponseStatusPass,
	})
	if err != nil {
		t.Fatalf("SubmitResponse (link, first): %v", err)
	}
	if first.Response.AssignmentId != issued.Assignment.ID {
		t.Fatalf("the response should credit the link, got assignment %d", first.Response.AssignmentId)
	}
	if first.RunCompleted {
		t.Fatalf("one of two answers cannot complete the run")
	}
	second, err := models.SubmitResponse(linkCtx, &models.NewCheckResponse{
		RunId:     run.ID,
		RunItemId: run.Items[1].ID,
		Status:    models.ResponseStatusPass,
	})
	if err != nil {
		t.Fatalf("SubmitResponse (link, second): %v", err)
	}
	if !second.RunCompleted {
		t.Fatalf("the final answer should complete the run")
	}

	// completing the run retires every live link on it
	completed, err := models.GetAssignment(ctx, issued.Assignment.ID)
	if err != nil {
		t.Fatalf("GetAssignment (after completion): %v", err)
	}
	if completed.CurrentStatus != models.AssignmentStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("expected COMPLETED with a timestamp, got %s completedAt=%v",
			completed.CurrentStatus, completed.CompletedAt)
	}

	// single use means the door shuts behind the completed session
	if _, err := models.ResolveAssignmentToken(ctx, token); !errors.Is(err, models.ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}
