package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckResponse is the current answer for one run item. One row per item,
// kept current in place: a correction updates the row and stamps the
// override fields rather than growing a second answer.
type CheckResponse struct {
	ID              int            `gorm:"primary_key" json:"id"`
	BusinessId      string         `gorm:"index;not null;uniqueIndex:uq_response_item" json:"business_id"`
	RunId           int            `gorm:"index;not null" json:"run_id"`
	RunItemId       int            `gorm:"not null;uniqueIndex:uq_response_item" json:"run_item_id"`
	LocationId      int            `gorm:"index;not null" json:"location_id"`
	AssignmentId    int            `gorm:"not null;default:0" json:"assignment_id"`
	Status          ResponseStatus `gorm:"type:enum('PASS', 'FAIL', 'SKIPPED');not null" json:"status"`
	SkipReason      string         `gorm:"size:500" json:"skip_reason"`
	MediaAssetId    int            `gorm:"not null;default:0" json:"media_asset_id"`
	CompletedById   int            `gorm:"not null;default:0" json:"completed_by_id"`
	CompletedByName string         `gorm:"size:100" json:"completed_by_name"`
	CompletedAt     time.Time      `gorm:"not null" json:"completed_at"`
	LocalDate       time.Time      `gorm:"not null" json:"local_date"`
	OverriddenAt    *time.Time     `json:"overridden_at"`
	OverrideNote    string         `gorm:"size:500" json:"override_note"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCheckResponse struct {
	RunId             int            `json:"run_id" binding:"required"`
	RunItemId         int            `json:"run_item_id" binding:"required"`
	Status            ResponseStatus `json:"status" binding:"required"`
	SkipReason        string         `json:"skip_reason"`
	MediaAssetId      int            `json:"media_asset_id"`
	AfterMediaAssetId int            `json:"after_media_asset_id"`
	OverrideNote      string         `json:"override_note"`
}

// SubmitResponseResult tells the caller what the submission caused beyond
// the row itself, so link recipients can be redirected on completion.
type SubmitResponseResult struct {
	Response           *CheckResponse `json:"response"`
	RunCompleted       bool           `json:"run_completed"`
	CorrectiveActionId int            `json:"corrective_action_id"`
}

func (response CheckResponse) GetBusinessId() string {
	return response.BusinessId
}

func (input *NewCheckResponse) validate() error {
	if input.Status == ResponseStatusSkipped && strings.TrimSpace(input.SkipReason) == "" {
		return errors.New("a skip reason is required when skipping a check")
	}
	if input.AfterMediaAssetId > 0 && input.Status != ResponseStatusFail {
		return errors.New("an after photo only makes sense on a fail")
	}
	return nil
}

// SubmitResponse records (or corrects) the answer for one run item. The
// whole decision runs in a single transaction: expiry gate, evidence gate,
// upsert, corrective-action coupling, completion transition and outbox
// events either all land or none do.
func SubmitResponse(ctx context.Context, input *NewCheckResponse) (*SubmitResponseResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	db := config.GetDB()
	tx := db.Begin()

	// the run row is the serialization point for this run's submissions;
	// without it two racing submitters can both miss the completion edge
	var run CheckRun
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&run, input.RunId).Error
	if err != nil {
		tx.Rollback()
		return nil, ErrRunNotFound
	}

	if run.CurrentStatus == CheckRunStatusExpired {
		tx.Rollback()
		return nil, ErrRunExpired
	}
	if runExpiredNow(&run, now) {
		// lazily persist the expiry, then refuse the write
		if err := markRunExpired(ctx, tx, &run); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return nil, ErrRunExpired
	}

	var item CheckRunItem
	err = tx.WithContext(ctx).
		Where("business_id = ? AND run_id = ?", businessId, run.ID).
		First(&item, input.RunItemId).Error
	if err != nil {
		tx.Rollback()
		return nil, ErrRunItemNotFound
	}

	// evidence gate: a skip documents why with words, not a photo
	needsEvidence := item.EvidenceRequired != nil && *item.EvidenceRequired && input.Status != ResponseStatusSkipped
	if needsEvidence && input.MediaAssetId == 0 {
		tx.Rollback()
		return nil, NewEvidenceRequiredError(item.ID, item.EvidenceReason)
	}
	if input.MediaAssetId > 0 {
		if err := requireImageAsset(ctx, tx, businessId, input.MediaAssetId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if input.AfterMediaAssetId > 0 {
		if err := requireImageAsset(ctx, tx, businessId, input.AfterMediaAssetId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	localDate, err := localCalendarDate(now, run.Timezone)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	authorId, authorName := responseAuthor(ctx)
	assignmentId, _ := utils.GetAssignmentIdFromContext(ctx)

	response, previousStatus, err := upsertResponse(ctx, tx, &run, &item, input, assignmentId, authorId, authorName, now, localDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := SubmitResponseResult{Response: response}

	// corrective-action coupling
	if input.Status == ResponseStatusFail {
		action, err := ensureCorrectiveAction(ctx, tx, &run, &item, response, input.AfterMediaAssetId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if action != nil {
			result.CorrectiveActionId = action.ID
		}
	} else if previousStatus != nil && *previousStatus == ResponseStatusFail {
		if err := dismissSupersededAction(ctx, tx, response.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	// completion transition, computed under the run row lock
	completedNow := false
	if run.CurrentStatus == CheckRunStatusPending {
		allAnswered, err := runFullyAnswered(ctx, tx, &run)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if allAnswered {
			if err := completeRun(ctx, tx, &run, now, localDate); err != nil {
				tx.Rollback()
				return nil, err
			}
			completedNow = true
		}
	}
	result.RunCompleted = run.CurrentStatus == CheckRunStatusCompleted

	if err := PublishWorkflowEvent(ctx, tx, businessId, now, response.ID,
		WorkflowReferenceTypeResponseRecorded, response, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if completedNow {
		if err := PublishWorkflowEvent(ctx, tx, businessId, now, run.ID,
			WorkflowReferenceTypeRunCompleted, &run, nil, PubSubMessageActionUpdate); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// responseAuthor pulls whoever is answering out of the context: the session
// user, or the assignment recipient on the token path.
func responseAuthor(ctx context.Context) (int, string) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	return userId, userName
}

// upsertResponse lands the answer exactly once per run item: update in
// place when a row exists, create otherwise, and on a duplicate-key race
// re-fetch and update so the last writer wins.
func upsertResponse(ctx context.Context, tx *gorm.DB, run *CheckRun, item *CheckRunItem, input *NewCheckResponse,
	assignmentId int, authorId int, authorName string, now time.Time, localDate time.Time) (*CheckResponse, *ResponseStatus, error) {

	var existing CheckResponse
	err := tx.WithContext(ctx).
		Where("business_id = ? AND run_item_id = ?", run.BusinessId, item.ID).
		Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	if err == nil {
		previous := existing.Status
		updates := map[string]interface{}{
			"AssignmentId":    assignmentId,
			"Status":          input.Status,
			"SkipReason":      input.SkipReason,
			"MediaAssetId":    input.MediaAssetId,
			"CompletedById":   authorId,
			"CompletedByName": authorName,
			"CompletedAt":     now,
			"LocalDate":       localDate,
			"OverriddenAt":    now,
			"OverrideNote":    input.OverrideNote,
		}
		if err := tx.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, nil, err
		}
		existing.AssignmentId = assignmentId
		existing.Status = input.Status
		existing.SkipReason = input.SkipReason
		existing.MediaAssetId = input.MediaAssetId
		existing.CompletedById = authorId
		existing.CompletedByName = authorName
		existing.CompletedAt = now
		existing.LocalDate = localDate
		existing.OverriddenAt = &now
		existing.OverrideNote = input.OverrideNote
		return &existing, &previous, nil
	}

	response := CheckResponse{
		BusinessId:      run.BusinessId,
		RunId:           run.ID,
		RunItemId:       item.ID,
		LocationId:      run.LocationId,
		AssignmentId:    assignmentId,
		Status:          input.Status,
		SkipReason:      input.SkipReason,
		MediaAssetId:    input.MediaAssetId,
		CompletedById:   authorId,
		CompletedByName: authorName,
		CompletedAt:     now,
		LocalDate:       localDate,
	}
	if err := tx.WithContext(ctx).Create(&response).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// another submitter created the row between our read and write
			return upsertResponse(ctx, tx, run, item, input, assignmentId, authorId, authorName, now, localDate)
		}
		return nil, nil, err
	}
	return &response, nil, nil
}

func requireImageAsset(ctx context.Context, tx *gorm.DB, businessId string, assetId int) error {
	var asset MediaAsset
	err := tx.WithContext(ctx).
		Where("business_id = ?", businessId).
		First(&asset, assetId).Error
	if err != nil {
		return ErrMediaNotFound
	}
	if !strings.HasPrefix(asset.MimeType, "image/") {
		return errors.New("evidence must be an image")
	}
	return nil
}

// runFullyAnswered reports whether every item of the run has a current
// response, read inside the caller's transaction.
func runFullyAnswered(ctx context.Context, tx *gorm.DB, run *CheckRun) (bool, error) {
	var itemCount int64
	if err := tx.WithContext(ctx).Model(&CheckRunItem{}).
		Where("run_id = ?", run.ID).Count(&itemCount).Error; err != nil {
		return false, err
	}
	var responseCount int64
	if err := tx.WithContext(ctx).Model(&CheckResponse{}).
		Where("run_id = ?", run.ID).Count(&responseCount).Error; err != nil {
		return false, err
	}
	return itemCount > 0 && responseCount >= itemCount, nil
}

func completeRun(ctx context.Context, tx *gorm.DB, run *CheckRun, now time.Time, localDate time.Time) error {
	err := tx.WithContext(ctx).Model(&CheckRun{}).
		Where("id = ? AND current_status = ?", run.ID, CheckRunStatusPending).
		Updates(map[string]interface{}{
			"CurrentStatus": CheckRunStatusCompleted,
			"CompletedAt":   now,
			"CompletedDate": localDate,
		}).Error
	if err != nil {
		return err
	}
	run.CurrentStatus = CheckRunStatusCompleted
	run.CompletedAt = &now
	run.CompletedDate = &localDate
	return completeLiveAssignments(ctx, tx, run.ID, now)
}

func GetResponsesForRun(ctx context.Context, runId int) ([]*CheckResponse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CheckResponse
	err := db.WithContext(ctx).
		Where("business_id = ? AND run_id = ?", businessId, runId).
		Order("run_item_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
