package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// CorrectiveAction tracks the follow-up owed for one failed check. Exactly
// one action per response row; failing the same check again in a later run
// is a new response and opens its own action.
type CorrectiveAction struct {
	ID                 int                    `gorm:"primary_key" json:"id"`
	BusinessId         string                 `gorm:"index;not null;uniqueIndex:uq_action_response" json:"business_id"`
	LocationId         int                    `gorm:"index;not null" json:"location_id"`
	ResponseId         int                    `gorm:"not null;uniqueIndex:uq_action_response" json:"response_id"`
	RunItemId          int                    `gorm:"index;not null" json:"run_item_id"`
	TemplateRootId     int                    `gorm:"index;not null" json:"template_root_id"`
	Title              string                 `gorm:"size:255;not null" json:"title"`
	Severity           CheckSeverity          `gorm:"type:enum('C', 'H', 'M', 'L');not null" json:"severity"`
	CurrentStatus      CorrectiveActionStatus `gorm:"type:enum('OPEN', 'IN_PROGRESS', 'RESOLVED', 'VERIFIED', 'DISMISSED');default:OPEN" json:"current_status"`
	DueAt              time.Time              `gorm:"not null" json:"due_at"`
	AssigneeId         int                    `gorm:"index;not null;default:0" json:"assignee_id"`
	BeforeMediaId      int                    `gorm:"not null;default:0" json:"before_media_id"`
	AfterMediaId       int                    `gorm:"not null;default:0" json:"after_media_id"`
	ResolutionNotes    string                 `gorm:"size:1000" json:"resolution_notes"`
	FixedDuringSession *bool                  `gorm:"not null;default:false" json:"fixed_during_session"`
	StartedAt          *time.Time             `json:"started_at"`
	StartedById        int                    `gorm:"not null;default:0" json:"started_by_id"`
	ResolvedAt         *time.Time             `json:"resolved_at"`
	ResolvedById       int                    `gorm:"not null;default:0" json:"resolved_by_id"`
	VerifiedAt         *time.Time             `json:"verified_at"`
	VerifiedById       int                    `gorm:"not null;default:0" json:"verified_by_id"`
	DismissedAt        *time.Time             `json:"dismissed_at"`
	DismissedById      int                    `gorm:"not null;default:0" json:"dismissed_by_id"`
	DismissReason      string                 `gorm:"size:500" json:"dismiss_reason"`
	CreatedAt          time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

type ResolveCorrectiveActionInput struct {
	Notes             string `json:"notes"`
	AfterMediaAssetId int    `json:"after_media_asset_id"`
}

type DismissCorrectiveActionInput struct {
	Reason string `json:"reason" binding:"required"`
}

func (action CorrectiveAction) GetBusinessId() string {
	return action.BusinessId
}

// canTransition encodes the lifecycle. Every move not listed is illegal.
func (action *CorrectiveAction) canTransition(to CorrectiveActionStatus) bool {
	switch to {
	case CorrectiveActionStatusInProgress:
		return action.CurrentStatus == CorrectiveActionStatusOpen
	case CorrectiveActionStatusResolved:
		return action.CurrentStatus == CorrectiveActionStatusOpen || action.CurrentStatus == CorrectiveActionStatusInProgress
	case CorrectiveActionStatusVerified:
		return action.CurrentStatus == CorrectiveActionStatusResolved
	case CorrectiveActionStatusDismissed:
		return action.CurrentStatus == CorrectiveActionStatusOpen || action.CurrentStatus == CorrectiveActionStatusInProgress
	default:
		return false
	}
}

// ensureCorrectiveAction opens the action for a failed response, or returns
// the one already open when a fail is resubmitted. An after photo at
// submission time means the problem was fixed on the spot: the action is
// born RESOLVED.
func ensureCorrectiveAction(ctx context.Context, tx *gorm.DB, run *CheckRun, item *CheckRunItem, response *CheckResponse, afterMediaId int) (*CorrectiveAction, error) {

	var existing CorrectiveAction
	err := tx.WithContext(ctx).
		Where("business_id = ? AND response_id = ?", run.BusinessId, response.ID).
		Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	dueAt, err := calculateDueDate(now, item.Severity, run.Timezone)
	if err != nil {
		return nil, err
	}

	assigneeId := response.CompletedById
	owner, err := GetLocationOwner(ctx, tx, run.BusinessId, run.LocationId)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		assigneeId = owner.ID
	}

	action := CorrectiveAction{
		BusinessId:         run.BusinessId,
		LocationId:         run.LocationId,
		ResponseId:         response.ID,
		RunItemId:          item.ID,
		TemplateRootId:     item.TemplateRootId,
		Title:              item.Title,
		Severity:           item.Severity,
		CurrentStatus:      CorrectiveActionStatusOpen,
		DueAt:              dueAt,
		AssigneeId:         assigneeId,
		BeforeMediaId:      response.MediaAssetId,
		FixedDuringSession: utils.NewFalse(),
	}
	if afterMediaId > 0 {
		action.CurrentStatus = CorrectiveActionStatusResolved
		action.AfterMediaId = afterMediaId
		action.FixedDuringSession = utils.NewTrue()
		action.ResolvedAt = &now
		action.ResolvedById = response.CompletedById
		action.ResolutionNotes = "fixed during the check session"
	}

	if err := tx.WithContext(ctx).Create(&action).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// concurrent resubmission opened it first
			if err := tx.WithContext(ctx).
				Where("business_id = ? AND response_id = ?", run.BusinessId, response.ID).
				Take(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	if err := PublishWorkflowEvent(ctx, tx, run.BusinessId, now, action.ID,
		WorkflowReferenceTypeCorrectiveActionOpened, &action, nil, PubSubMessageActionCreate); err != nil {
		return nil, err
	}
	return &action, nil
}

// dismissSupersededAction closes a still-untouched action whose fail was
// corrected to a pass or skip. Actions someone already started stay with
// their owner.
func dismissSupersededAction(ctx context.Context, tx *gorm.DB, responseId int) error {

	var action CorrectiveAction
	err := tx.WithContext(ctx).
		Where("response_id = ? AND current_status = ?", responseId, CorrectiveActionStatusOpen).
		Take(&action).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	now := time.Now()
	actorId, _ := utils.GetUserIdFromContext(ctx)
	return tx.WithContext(ctx).Model(&action).Updates(map[string]interface{}{
		"CurrentStatus": CorrectiveActionStatusDismissed,
		"DismissedAt":   now,
		"DismissedById": actorId,
		"DismissReason": "superseded by corrected response",
	}).Error
}

func fetchActionForTransition(ctx context.Context, tx *gorm.DB, id int) (*CorrectiveAction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	var action CorrectiveAction
	err := tx.WithContext(ctx).
		Where("business_id = ?", businessId).
		First(&action, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &action, nil
}

func StartCorrectiveAction(ctx context.Context, id int) (*CorrectiveAction, error) {

	db := config.GetDB()
	tx := db.Begin()

	action, err := fetchActionForTransition(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !action.canTransition(CorrectiveActionStatusInProgress) {
		tx.Rollback()
		return nil, newTransitionError("corrective action", string(action.CurrentStatus), string(CorrectiveActionStatusInProgress))
	}

	now := time.Now()
	actorId, _ := utils.GetUserIdFromContext(ctx)
	err = tx.WithContext(ctx).Model(action).Updates(map[string]interface{}{
		"CurrentStatus": CorrectiveActionStatusInProgress,
		"StartedAt":     now,
		"StartedById":   actorId,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	action.CurrentStatus = CorrectiveActionStatusInProgress
	action.StartedAt = &now
	action.StartedById = actorId
	return action, tx.Commit().Error
}

func ResolveCorrectiveAction(ctx context.Context, id int, input *ResolveCorrectiveActionInput) (*CorrectiveAction, error) {

	db := config.GetDB()
	tx := db.Begin()

	action, err := fetchActionForTransition(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !action.canTransition(CorrectiveActionStatusResolved) {
		tx.Rollback()
		return nil, newTransitionError("corrective action", string(action.CurrentStatus), string(CorrectiveActionStatusResolved))
	}
	if input.AfterMediaAssetId > 0 {
		if err := requireImageAsset(ctx, tx, action.BusinessId, input.AfterMediaAssetId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	actorId, _ := utils.GetUserIdFromContext(ctx)
	if actorId == 0 {
		tx.Rollback()
		return nil, errors.New("a resolver is required")
	}
	err = tx.WithContext(ctx).Model(action).Updates(map[string]interface{}{
		"CurrentStatus":   CorrectiveActionStatusResolved,
		"ResolvedAt":      now,
		"ResolvedById":    actorId,
		"ResolutionNotes": input.Notes,
		"AfterMediaId":    input.AfterMediaAssetId,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	action.CurrentStatus = CorrectiveActionStatusResolved
	action.ResolvedAt = &now
	action.ResolvedById = actorId
	action.ResolutionNotes = input.Notes
	action.AfterMediaId = input.AfterMediaAssetId
	return action, tx.Commit().Error
}

func VerifyCorrectiveAction(ctx context.Context, id int) (*CorrectiveAction, error) {

	db := config.GetDB()
	tx := db.Begin()

	action, err := fetchActionForTransition(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !action.canTransition(CorrectiveActionStatusVerified) {
		tx.Rollback()
		return nil, newTransitionError("corrective action", string(action.CurrentStatus), string(CorrectiveActionStatusVerified))
	}

	now := time.Now()
	actorId, _ := utils.GetUserIdFromContext(ctx)
	err = tx.WithContext(ctx).Model(action).Updates(map[string]interface{}{
		"CurrentStatus": CorrectiveActionStatusVerified,
		"VerifiedAt":    now,
		"VerifiedById":  actorId,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	action.CurrentStatus = CorrectiveActionStatusVerified
	action.VerifiedAt = &now
	action.VerifiedById = actorId
	return action, tx.Commit().Error
}

func DismissCorrectiveAction(ctx context.Context, id int, input *DismissCorrectiveActionInput) (*CorrectiveAction, error) {

	if strings.TrimSpace(input.Reason) == "" {
		return nil, errors.New("a dismiss reason is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	action, err := fetchActionForTransition(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !action.canTransition(CorrectiveActionStatusDismissed) {
		tx.Rollback()
		return nil, newTransitionError("corrective action", string(action.CurrentStatus), string(CorrectiveActionStatusDismissed))
	}

	now := time.Now()
	actorId, _ := utils.GetUserIdFromContext(ctx)
	err = tx.WithContext(ctx).Model(action).Updates(map[string]interface{}{
		"CurrentStatus": CorrectiveActionStatusDismissed,
		"DismissedAt":   now,
		"DismissedById": actorId,
		"DismissReason": input.Reason,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	action.CurrentStatus = CorrectiveActionStatusDismissed
	action.DismissedAt = &now
	action.DismissedById = actorId
	action.DismissReason = input.Reason
	return action, tx.Commit().Error
}

func GetCorrectiveAction(ctx context.Context, id int) (*CorrectiveAction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[CorrectiveAction](ctx, businessId, id)
}

func GetCorrectiveActions(ctx context.Context, locationId *int, status *CorrectiveActionStatus, assigneeId *int, overdueOnly *bool) ([]*CorrectiveAction, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CorrectiveAction

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", locationId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", status)
	}
	if assigneeId != nil && *assigneeId > 0 {
		dbCtx = dbCtx.Where("assignee_id = ?", assigneeId)
	}
	if overdueOnly != nil && *overdueOnly {
		dbCtx = dbCtx.Where("due_at < ? AND current_status IN ?", time.Now(),
			[]CorrectiveActionStatus{CorrectiveActionStatusOpen, CorrectiveActionStatusInProgress})
	}
	if err := dbCtx.Order("due_at, id").Limit(500).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
