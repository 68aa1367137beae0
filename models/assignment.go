package models

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// CheckAssignment hands one run to one recipient over a magic link. The
// plaintext token never lands on the assignment row; TokenHash is its
// sha256 digest and the only way back from a presented link to a run.
type CheckAssignment struct {
	ID              int               `gorm:"primary_key" json:"id"`
	BusinessId      string            `gorm:"index;not null" json:"business_id"`
	RunId           int               `gorm:"index;not null" json:"run_id"`
	RecipientId     int               `gorm:"index;not null" json:"recipient_id"`
	Channel         AssignmentChannel `gorm:"type:enum('EMAIL', 'SMS');default:EMAIL" json:"channel"`
	TokenHash       string            `gorm:"size:64;not null;unique" json:"-"`
	SingleUse       *bool             `gorm:"not null;default:false" json:"single_use"`
	CurrentStatus   AssignmentStatus  `gorm:"type:enum('PENDING', 'SENT', 'ACCESSED', 'COMPLETED', 'FAILED', 'EXPIRED');default:PENDING" json:"current_status"`
	ExpiresAt       time.Time         `gorm:"not null" json:"expires_at"`
	SentAt          *time.Time        `json:"sent_at"`
	FirstAccessedAt *time.Time        `json:"first_accessed_at"`
	CompletedAt     *time.Time        `json:"completed_at"`
	AccessCount     int               `gorm:"not null;default:0" json:"access_count"`
	LastError       string            `gorm:"size:500" json:"last_error"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCheckAssignment struct {
	RunId       int               `json:"run_id" binding:"required"`
	RecipientId int               `json:"recipient_id" binding:"required"`
	Channel     AssignmentChannel `json:"channel" binding:"required"`
	SingleUse   *bool             `json:"single_use"`
}

// IssuedAssignment pairs the assignment with its plaintext link. It goes to
// the issuing caller and, via the outbox, to the delivery workflow; the
// assignments table itself only ever holds the hash.
type IssuedAssignment struct {
	Assignment *CheckAssignment `json:"assignment"`
	LinkUrl    string           `json:"link_url"`
}

func (assignment CheckAssignment) GetBusinessId() string {
	return assignment.BusinessId
}

func linkBaseUrl() string {
	base := os.Getenv("LINK_BASE_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	return strings.TrimRight(base, "/")
}

// IssueAssignment mints a magic link for a run. The link inherits the run's
// expiry horizon; re-issuing never stretches the deadline, it just mints
// another door into the same run.
func IssueAssignment(ctx context.Context, input *NewCheckAssignment) (*IssuedAssignment, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	run, err := GetCheckRun(ctx, input.RunId)
	if err != nil {
		return nil, err
	}
	if run.CurrentStatus == CheckRunStatusExpired {
		return nil, ErrRunExpired
	}
	if runExpiredNow(run, time.Now()) {
		return nil, ErrRunExpired
	}

	recipient, err := GetUser(ctx, input.RecipientId)
	if err != nil {
		return nil, errors.New("recipient not found")
	}
	if recipient.BusinessId != businessId {
		return nil, errors.New("recipient not found")
	}
	if recipient.IsActive == nil || !*recipient.IsActive {
		return nil, errors.New("recipient is not active")
	}
	if !recipient.CanAccessLocation(run.LocationId) {
		return nil, errors.New("recipient does not work at this location")
	}
	if input.Channel == AssignmentChannelSMS {
		if err := utils.ValidatePhoneNumber(recipient.Phone, "US"); err != nil {
			return nil, errors.New("recipient has no valid phone number for SMS")
		}
	}
	if input.Channel == AssignmentChannelEmail && (recipient.Email == nil || *recipient.Email == "") {
		return nil, errors.New("recipient has no email address")
	}

	token, digest, err := utils.NewMagicToken()
	if err != nil {
		return nil, err
	}

	singleUse := input.SingleUse
	if singleUse == nil {
		singleUse = utils.NewFalse()
	}

	assignment := CheckAssignment{
		BusinessId:    businessId,
		RunId:         run.ID,
		RecipientId:   recipient.ID,
		Channel:       input.Channel,
		TokenHash:     digest,
		SingleUse:     singleUse,
		CurrentStatus: AssignmentStatusPending,
		ExpiresAt:     run.ExpiresAt,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&assignment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	issued := IssuedAssignment{
		Assignment: &assignment,
		LinkUrl:    linkBaseUrl() + "/c/" + token,
	}

	// the delivery workflow picks this up after commit and flips the status
	if err := PublishWorkflowEvent(ctx, tx, businessId, time.Now(), assignment.ID,
		WorkflowReferenceTypeAssignmentIssued, &issued, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &issued, nil
}

// ResolvedAssignment is the result of cashing in a token: the assignment,
// its run view, and whether further submissions are allowed.
type ResolvedAssignment struct {
	Assignment *CheckAssignment `json:"assignment"`
	View       *RunView         `json:"view"`
	ReadOnly   bool             `json:"read_only"`
}

// ResolveAssignmentToken turns a presented token back into a run view.
// Unknown tokens say nothing about why; expiry and reuse get distinct
// errors because the recipient can act on those.
func ResolveAssignmentToken(ctx context.Context, token string) (*ResolvedAssignment, error) {

	digest := utils.HashMagicToken(token)

	db := config.GetDB()
	var assignment CheckAssignment
	err := db.WithContext(ctx).Where("token_hash = ?", digest).Take(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	// the unique index did the lookup; compare digests anyway so a partial
	// index collation mismatch can never hand out someone else's run
	if !utils.MagicTokenDigestEqual(digest, assignment.TokenHash) {
		return nil, ErrTokenNotFound
	}

	// token context carries the tenant from here on
	ctx = utils.SetBusinessIdInContext(ctx, assignment.BusinessId)
	ctx = utils.SetAssignmentIdInContext(ctx, assignment.ID)

	run, err := GetCheckRun(ctx, assignment.RunId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if assignment.CurrentStatus == AssignmentStatusExpired || now.After(assignment.ExpiresAt) || run.CurrentStatus == CheckRunStatusExpired || runExpiredNow(run, now) {
		tx := db.Begin()
		if runExpiredNow(run, now) {
			if err := markRunExpired(ctx, tx, run); err != nil {
				tx.Rollback()
				return nil, err
			}
		} else if assignment.CurrentStatus.live() {
			if err := tx.WithContext(ctx).Model(&assignment).
				UpdateColumn("current_status", AssignmentStatusExpired).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return nil, ErrTokenExpired
	}

	if assignment.rejectsReuse() && assignment.CurrentStatus == AssignmentStatusCompleted {
		return nil, ErrTokenAlreadyUsed
	}

	tx := db.Begin()
	updates := map[string]interface{}{
		"AccessCount": gorm.Expr("access_count + 1"),
	}
	if assignment.FirstAccessedAt == nil {
		updates["FirstAccessedAt"] = now
	}
	if assignment.CurrentStatus == AssignmentStatusPending || assignment.CurrentStatus == AssignmentStatusSent {
		updates["CurrentStatus"] = AssignmentStatusAccessed
	}
	if err := tx.WithContext(ctx).Model(&assignment).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// refresh local copy for the caller
	assignment.AccessCount++
	if assignment.FirstAccessedAt == nil {
		assignment.FirstAccessedAt = &now
	}
	if assignment.CurrentStatus == AssignmentStatusPending || assignment.CurrentStatus == AssignmentStatusSent {
		assignment.CurrentStatus = AssignmentStatusAccessed
	}

	view, err := buildRunView(ctx, db, run)
	if err != nil {
		return nil, err
	}

	return &ResolvedAssignment{
		Assignment: &assignment,
		View:       view,
		ReadOnly:   assignment.CurrentStatus == AssignmentStatusCompleted,
	}, nil
}

// AuthenticateAssignmentToken validates a presented token for a submission
// without touching the access counter; the resolve endpoint owns that.
func AuthenticateAssignmentToken(ctx context.Context, token string) (*CheckAssignment, error) {

	digest := utils.HashMagicToken(token)

	db := config.GetDB()
	var assignment CheckAssignment
	err := db.WithContext(ctx).Where("token_hash = ?", digest).Take(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if !utils.MagicTokenDigestEqual(digest, assignment.TokenHash) {
		return nil, ErrTokenNotFound
	}

	if assignment.CurrentStatus == AssignmentStatusExpired || time.Now().After(assignment.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if assignment.rejectsReuse() && assignment.CurrentStatus == AssignmentStatusCompleted {
		return nil, ErrTokenAlreadyUsed
	}
	return &assignment, nil
}

// rejectsReuse reports whether a completed assignment refuses further
// resolves: either the row opted in, or the deployment runs strict.
func (assignment *CheckAssignment) rejectsReuse() bool {
	if assignment.SingleUse != nil && *assignment.SingleUse {
		return true
	}
	return config.StrictSingleUseLinks()
}

// MarkAssignmentSent records the delivery outcome reported by the delivery
// workflow. Failures keep the token valid; re-issuing is the retry path.
func MarkAssignmentSent(ctx context.Context, tx *gorm.DB, assignmentId int, sendErr error) error {

	var assignment CheckAssignment
	if err := tx.WithContext(ctx).First(&assignment, assignmentId).Error; err != nil {
		return err
	}
	if !assignment.CurrentStatus.live() {
		return nil
	}

	now := time.Now()
	if sendErr != nil {
		return tx.WithContext(ctx).Model(&assignment).Updates(map[string]interface{}{
			"CurrentStatus": AssignmentStatusFailed,
			"LastError":     truncateError(sendErr, 500),
		}).Error
	}
	// do not regress an already-accessed assignment back to SENT
	updates := map[string]interface{}{
		"SentAt":    now,
		"LastError": "",
	}
	if assignment.CurrentStatus == AssignmentStatusPending {
		updates["CurrentStatus"] = AssignmentStatusSent
	}
	return tx.WithContext(ctx).Model(&assignment).Updates(updates).Error
}

func truncateError(err error, max int) string {
	msg := err.Error()
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}

// completeLiveAssignments flips every live assignment of a completed run.
func completeLiveAssignments(ctx context.Context, tx *gorm.DB, runId int, completedAt time.Time) error {
	return tx.WithContext(ctx).Model(&CheckAssignment{}).
		Where("run_id = ? AND current_status IN ?", runId,
			[]AssignmentStatus{AssignmentStatusPending, AssignmentStatusSent, AssignmentStatusAccessed}).
		Updates(map[string]interface{}{
			"CurrentStatus": AssignmentStatusCompleted,
			"CompletedAt":   completedAt,
		}).Error
}

// expireLiveAssignments flips every live assignment of an expired run.
func expireLiveAssignments(ctx context.Context, tx *gorm.DB, runId int) error {
	return tx.WithContext(ctx).Model(&CheckAssignment{}).
		Where("run_id = ? AND current_status IN ?", runId,
			[]AssignmentStatus{AssignmentStatusPending, AssignmentStatusSent, AssignmentStatusAccessed}).
		UpdateColumn("current_status", AssignmentStatusExpired).Error
}

func GetAssignment(ctx context.Context, id int) (*CheckAssignment, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[CheckAssignment](ctx, businessId, id)
}

func GetAssignmentsForRun(ctx context.Context, runId int) ([]*CheckAssignment, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CheckAssignment
	err := db.WithContext(ctx).
		Where("business_id = ? AND run_id = ?", businessId, runId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
