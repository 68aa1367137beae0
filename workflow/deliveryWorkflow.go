package workflow

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/delivery"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessAssignmentIssuedWorkflow sends the magic link for a freshly issued
// assignment and records the outcome on the assignment row. A failed send
// does not fail the event: the failure lands on the assignment as FAILED
// with LastError, and re-issuing is the retry path.
func ProcessAssignmentIssuedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var issued models.IssuedAssignment
	if err := json.Unmarshal(msg.NewObj, &issued); err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Unmarshal NewObj", msg, err)
		return err
	}
	if issued.Assignment == nil || issued.LinkUrl == "" {
		err := errors.New("assignment issued event carries no deliverable link")
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Validate payload", msg, err)
		return err
	}

	var assignment models.CheckAssignment
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&assignment, issued.Assignment.ID).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Fetch assignment", issued.Assignment, err)
		return err
	}

	// only a still-pending assignment gets the send; anything else was
	// already delivered, used or closed while the event sat in the queue
	if assignment.CurrentStatus != models.AssignmentStatusPending {
		return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
			Where("id = ?", msg.ID).
			Updates(map[string]interface{}{"is_processed": true}).Error
	}

	var recipient models.User
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&recipient, assignment.RecipientId).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Fetch recipient", assignment, err)
		return err
	}

	var run models.CheckRun
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&run, assignment.RunId).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Fetch run", assignment, err)
		return err
	}
	var location models.Location
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&location, run.LocationId).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Fetch location", run, err)
		return err
	}

	message := delivery.MagicLinkMessage{
		BusinessId:    msg.BusinessId,
		AssignmentId:  assignment.ID,
		Channel:       string(assignment.Channel),
		RecipientName: recipient.Name,
		Phone:         recipient.Phone,
		LocationName:  location.Name,
		LinkUrl:       issued.LinkUrl,
		ExpiresAt:     assignment.ExpiresAt,
	}
	if recipient.Email != nil {
		message.Email = *recipient.Email
	}

	sendErr := delivery.SendMagicLink(ctx, &message)
	if sendErr != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Send magic link", assignment, sendErr)
	}
	if err := models.MarkAssignmentSent(ctx, tx, assignment.ID, sendErr); err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessAssignmentIssuedWorkflow", "Record delivery outcome", assignment, err)
		return err
	}

	return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"is_processed": true}).Error
}

// ProcessCorrectiveActionOpenedWorkflow notifies the assignee that a failed
// check opened an action against them. Actions born RESOLVED (fixed during
// the session) need no notice, nor do unassigned ones.
func ProcessCorrectiveActionOpenedWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {

	var action models.CorrectiveAction
	if err := json.Unmarshal(msg.NewObj, &action); err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessCorrectiveActionOpenedWorkflow", "Unmarshal NewObj", msg, err)
		return err
	}

	if action.CurrentStatus != models.CorrectiveActionStatusOpen || action.AssigneeId == 0 {
		return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
			Where("id = ?", msg.ID).
			Updates(map[string]interface{}{"is_processed": true}).Error
	}

	var assignee models.User
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&assignee, action.AssigneeId).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessCorrectiveActionOpenedWorkflow", "Fetch assignee", action, err)
		return err
	}
	var location models.Location
	if err := tx.WithContext(ctx).
		Where("business_id = ?", msg.BusinessId).
		First(&location, action.LocationId).Error; err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessCorrectiveActionOpenedWorkflow", "Fetch location", action, err)
		return err
	}

	notice := delivery.ActionNoticeMessage{
		BusinessId:   msg.BusinessId,
		ActionId:     action.ID,
		AssigneeName: assignee.Name,
		LocationName: location.Name,
		Title:        action.Title,
		Severity:     string(action.Severity),
		DueAt:        action.DueAt,
	}
	if assignee.Email != nil {
		notice.Email = *assignee.Email
	}
	// the failure photo, when the submitter attached one
	if action.BeforeMediaId > 0 {
		var media models.MediaAsset
		if err := tx.WithContext(ctx).
			Where("business_id = ?", msg.BusinessId).
			First(&media, action.BeforeMediaId).Error; err == nil {
			notice.BeforePhotoUrl = utils.BuildObjectAccessURL(media.StorageKey)
		}
	}

	// the action stands regardless; the dashboard backlog is the fallback
	if err := delivery.SendActionNotice(ctx, &notice); err != nil {
		config.LogError(logger, "deliveryWorkflow.go", "ProcessCorrectiveActionOpenedWorkflow", "Send action notice", action, err)
	}

	return tx.WithContext(ctx).Model(&models.WorkflowEventRecord{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"is_processed": true}).Error
}
