package workflow

import (
	"context"
	"encoding/json"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/models/reports"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessResponseRecordedWorkflow refreshes the aggregates one recorded (or
// corrected) response touches: the coverage row of the item's lineage and
// the streak rows of the location. Recount, never increment, so replays and
// overrides cannot drift the totals.
func ProcessResponseRecordedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var response models.CheckResponse
	if err := json.Unmarshal(msg.NewObj, &response); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessResponseRecordedWorkflow", "Unmarshal NewObj", msg, err)
		return err
	}

	var item models.CheckRunItem
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&item, response.RunItemId).Error; err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessResponseRecordedWorkflow", "Fetch run item", response, err)
		return err
	}

	if err := models.RecomputeCoverage(ctx, tx, msg.BusinessId, response.LocationId, item.TemplateRootId); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessResponseRecordedWorkflow", "Recompute coverage", response, err)
		return err
	}
	if err := recomputeLocationStreaks(ctx, tx, msg.BusinessId, response.LocationId, response.CompletedById); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessResponseRecordedWorkflow", "Recompute streaks", response, err)
		return err
	}

	// stale dashboard keys age out on TTL if the delete fails
	if err := reports.InvalidateDashboard(msg.BusinessId, response.LocationId); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessResponseRecordedWorkflow", "Invalidate dashboard cache", response, err)
	}

	return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"is_processed": true}).Error
}

// ProcessRunCompletedWorkflow refreshes streaks after a run reaches
// COMPLETED. Completion is what extends a day streak; coverage was already
// recounted response by response.
func ProcessRunCompletedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var run models.CheckRun
	if err := json.Unmarshal(msg.NewObj, &run); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessRunCompletedWorkflow", "Unmarshal NewObj", msg, err)
		return err
	}

	if err := recomputeLocationStreaks(ctx, tx, msg.BusinessId, run.LocationId, 0); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessRunCompletedWorkflow", "Recompute streaks", run, err)
		return err
	}

	// stale dashboard keys age out on TTL if the delete fails
	if err := reports.InvalidateDashboard(msg.BusinessId, run.LocationId); err != nil {
		config.LogError(logger, "streakWorkflow.go", "ProcessRunCompletedWorkflow", "Invalidate dashboard cache", run, err)
	}

	return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"is_processed": true}).Error
}

// recomputeLocationStreaks recounts the location streak plus every manager
// row the location has grown. A correction can move authorship between
// managers, so the previous author needs the recount too; walking the
// existing rows covers whoever that was.
func recomputeLocationStreaks(ctx context.Context, tx *gorm.DB, businessId string, locationId int, authorId int) error {

	managerIds := map[int]bool{}
	if authorId > 0 {
		managerIds[authorId] = true
	}
	var existing []int
	if err := tx.WithContext(ctx).Model(&models.CheckStreak{}).
		Where("business_id = ? AND location_id = ? AND manager_id > 0", businessId, locationId).
		Pluck("manager_id", &existing).Error; err != nil {
		return err
	}
	for _, id := range existing {
		managerIds[id] = true
	}

	if err := models.RecomputeStreak(ctx, tx, businessId, locationId, 0); err != nil {
		return err
	}
	for id := range managerIds {
		if err := models.RecomputeStreak(ctx, tx, businessId, locationId, id); err != nil {
			return err
		}
	}
	return nil
}
