package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
)

func TestGenerateRun_DailySlotIdempotentAndFrozen(t *testing.T) {
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
		Name:     "Rotation Bistro",
		Email:    "owner@rotation.test",
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
	if len(locations) != 1 || locations[0].Name != "Main Location" {
		t.Fatalf("expected the seeded main location, got %+v", locations)
	}
	loc := locations[0]
	if loc.DailyCheckCount != 3 {
		t.Fatalf("expected default daily check count 3, got %d", loc.DailyCheckCount)
	}

	date := models.MyDateString(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	run, err := models.GenerateRun(ctx, loc.ID, &date)
	if err != nil {
		t.Fatalf("GenerateRun: %v", err)
	}
	if run.CurrentStatus != models.CheckRunStatusPending {
		t.Fatalf("expected a pending run, got %s", run.CurrentStatus)
	}
	if run.SequenceNo != 0 || run.RunType != models.CheckRunTypeScheduled {
		t.Fatalf("expected the scheduled slot 0, got seq=%d type=%s", run.SequenceNo, run.RunType)
	}
	if len(run.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(run.Items))
	}
	// one local grace day after the scheduled date, read on the UTC wall clock
	if want := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC); !run.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, run.ExpiresAt)
	}

	positions := map[int]bool{}
	roots := map[int]bool{}
	categories := map[models.CheckCategory]bool{}
	for _, item := range run.Items {
		positions[item.Position] = true
		roots[item.TemplateRootId] = true
		categories[item.Category] = true
		if item.TemplateVersion != 1 {
			t.Fatalf("expected version 1 snapshots from the starter pack, got %d", item.TemplateVersion)
		}
	}
	if !positions[1] || !positions[2] || !positions[3] {
		t.Fatalf("expected positions 1..3, got %v", positions)
	}
	if len(roots) != 3 {
		t.Fatalf("expected 3 distinct lineages, got %v", roots)
	}
	if len(categories) != 3 {
		t.Fatalf("expected the picker to spread categories, got %v", categories)
	}

	// re-invoking the same slot adopts the existing run
	again, err := models.GenerateRun(ctx, loc.ID, &date)
	if err != nil {
		t.Fatalf("GenerateRun (again): %v", err)
	}
	if again.ID != run.ID {
		t.Fatalf("regenerating the daily slot made a second run: %d vs %d", again.ID, run.ID)
	}
	if len(again.Items) != 3 {
		t.Fatalf("adopted run expected 3 items, got %d", len(again.Items))
	}

	// generation recorded coverage for each picked lineage
	coverageRows, err := models.GetCoverageRows(ctx, businessID, loc.ID)
	if err != nil {
		t.Fatalf("GetCoverageRows: %v", err)
	}
	if len(coverageRows) != 3 {
		t.Fatalf("expected 3 coverage rows, got %d", len(coverageRows))
	}
	scheduledDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, row := range coverageRows {
		if !roots[row.TemplateRootId] {
			t.Fatalf("coverage row for a lineage the run never used: %d", row.TemplateRootId)
		}
		if row.UseCount != 1 {
			t.Fatalf("lineage %d expected use count 1, got %d", row.TemplateRootId, row.UseCount)
		}
		if row.LastUsedDate == nil || !row.LastUsedDate.Equal(scheduledDay) {
			t.Fatalf("lineage %d expected last used %s, got %v", row.TemplateRootId, scheduledDay, row.LastUsedDate)
		}
	}

	// editing a snapshotted template forks a new version; the run keeps its copy
	item := run.Items[0]
	original, err := models.GetCheckTemplate(ctx, item.TemplateId)
	if err != nil {
		t.Fatalf("GetCheckTemplate: %v", err)
	}
	updated, err := models.UpdateCheckTemplate(ctx, item.TemplateId, &models.NewCheckTemplate{
		LocationId:       original.LocationId,
		Title:            original.Title + " (rev)",
		Category:         original.Category,
		Severity:         original.Severity,
		PassCriteria:     original.PassCriteria,
		EvidencePolicy:   original.EvidencePolicy,
		RotationPriority: original.RotationPriority,
		InRotation:       original.InRotation,
		IsActive:         utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("UpdateCheckTemplate: %v", err)
	}
	if updated.ID == item.TemplateId || updated.RootId != item.TemplateRootId || updated.Version != 2 {
		t.Fatalf("expected a version 2 fork of lineage %d, got id=%d root=%d version=%d",
			item.TemplateRootId, updated.ID, updated.RootId, updated.Version)
	}

	lineage, err := models.GetTemplateLineage(ctx, item.TemplateRootId)
	if err != nil {
		t.Fatalf("GetTemplateLineage: %v", err)
	}
	if len(lineage) != 2 {
		t.Fatalf("expected 2 versions in the lineage, got %d", len(lineage))
	}
	if lineage[0].Version != 2 || lineage[0].IsActive == nil || !*lineage[0].IsActive {
		t.Fatalf("newest version should lead the lineage and be active, got %+v", lineage[0])
	}
	if lineage[1].Version != 1 || lineage[1].IsActive == nil || *lineage[1].IsActive {
		t.Fatalf("the snapshotted version should be retired, got %+v", lineage[1])
	}

	fetched, err := models.GetCheckRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetCheckRun: %v", err)
	}
	var frozen *models.CheckRunItem
	for i := range fetched.Items {
		if fetched.Items[i].ID == item.ID {
			frozen = &fetched.Items[i]
		}
	}
	if frozen == nil {
		t.Fatalf("the run lost item %d", item.ID)
	}
	if frozen.Title != item.Title || frozen.TemplateVersion != 1 || frozen.TemplateId != item.TemplateId {
		t.Fatalf("the template edit reached into the frozen snapshot: %+v", frozen)
	}

	// an instant run takes the next sequence and never collides with slot 0
	instant, err := models.GenerateInstantRun(ctx, loc.ID)
	if err != nil {
		t.Fatalf("GenerateInstantRun: %v", err)
	}
	if instant.RunType != models.CheckRunTypeInstant || instant.SequenceNo != 1 {
		t.Fatalf("expected instant run at sequence 1, got type=%s seq=%d", instant.RunType, instant.SequenceNo)
	}
	if instant.ID == run.ID {
		t.Fatalf("instant run must be its own row")
	}
}

func TestExpireOverdueRuns_FlipsRunAndLiveAssignments(t *testing.T) {
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
		Name:     "Grace Period Diner",
		Email:    "owner@graceperiod.test",
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

	// a run whose horizon has long passed; it is born pending regardless
	date := models.MyDateString(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	run, err := models.GenerateRun(ctx, loc.ID, &date)
	if err != nil {
		t.Fatalf("GenerateRun: %v", err)
	}
	if run.CurrentStatus != models.CheckRunStatusPending {
		t.Fatalf("expected the overdue run to start pending, got %s", run.CurrentStatus)
	}
	if want := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC); !run.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, run.ExpiresAt)
	}

	users, err := models.GetUsers(ctx, nil, nil)
	if err != nil || len(users) == 0 {
		t.Fatalf("GetUsers: %v (%d users)", err, len(users))
	}
	owner := users[0]

	// a live link on the dead run; issuance refuses expired runs, so the
	// fixture row goes in directly the way a pre-expiry issuance left it
	token, digest, err := utils.NewMagicToken()
	if err != nil {
		t.Fatalf("NewMagicToken: %v", err)
	}
	db := config.GetDB()
	assignment := models.CheckAssignment{
		BusinessId:    businessID,
		RunId:         run.ID,
		RecipientId:   owner.ID,
		Channel:       models.AssignmentChannelEmail,
		TokenHash:     digest,
		SingleUse:     utils.NewFalse(),
		CurrentStatus: models.AssignmentStatusSent,
		ExpiresAt:     run.ExpiresAt,
	}
	if err := db.WithContext(ctx).Create(&assignment).Error; err != nil {
		t.Fatalf("create assignment fixture: %v", err)
	}

	expired, err := models.ExpireOverdueRuns(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireOverdueRuns: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 run to expire, got %d", expired)
	}

	var sweptRun models.CheckRun
	if err := db.WithContext(ctx).First(&sweptRun, run.ID).Error; err != nil {
		t.Fatalf("refetch run: %v", err)
	}
	if sweptRun.CurrentStatus != models.CheckRunStatusExpired {
		t.Fatalf("expected the run EXPIRED, got %s", sweptRun.CurrentStatus)
	}
	var sweptAssignment models.CheckAssignment
	if err := db.WithContext(ctx).First(&sweptAssignment, assignment.ID).Error; err != nil {
		t.Fatalf("refetch assignment: %v", err)
	}
	if sweptAssignment.CurrentStatus != models.AssignmentStatusExpired {
		t.Fatalf("expected the live link EXPIRED, got %s", sweptAssignment.CurrentStatus)
	}

	// the sweep is idempotent
	expired, err = models.ExpireOverdueRuns(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireOverdueRuns (again): %v", err)
	}
	if expired != 0 {
		t.Fatalf("second sweep expected 0, got %d", expired)
	}

	// the dead link reports expiry, not absence
	if _, err := models.ResolveAssignmentToken(ctx, token); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	// and submissions refuse the dead run
	_, err = models.SubmitResponse(ctx, &models.NewCheckResponse{
		RunId:     run.ID,
		RunItemId: run.Items[0].ID,
		Status:    models.ResponseStatusPass,
	})
	if !errors.Is(err, models.ErrRunExpired) {
		t.Fatalf("expected ErrRunExpired, got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("checks-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("checks-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=linecheck_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
