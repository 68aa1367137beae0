package models

import (
	"context"
	"errors"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// CheckTemplate is one version of a check definition. RootId ties the
// versions of a lineage together; only the newest version stays active.
// A version referenced by a run snapshot is immutable, edits fork a new
// version instead.
type CheckTemplate struct {
	ID               int            `gorm:"primary_key" json:"id"`
	BusinessId       string         `gorm:"index;not null" json:"business_id"`
	LocationId       int            `gorm:"index;not null;default:0" json:"location_id"`
	RootId           int            `gorm:"index;not null;default:0" json:"root_id"`
	Version          int            `gorm:"not null;default:1" json:"version"`
	Title            string         `gorm:"size:255;not null" json:"title" binding:"required"`
	Category         CheckCategory  `gorm:"type:enum('FS', 'CL', 'EQ', 'SF', 'BR', 'DC');not null" json:"category" binding:"required"`
	Severity         CheckSeverity  `gorm:"type:enum('C', 'H', 'M', 'L');not null" json:"severity" binding:"required"`
	PassCriteria     string         `gorm:"type:text" json:"pass_criteria"`
	EvidencePolicy   EvidencePolicy `gorm:"type:enum('ALW', 'NVR', 'FT', 'AF', 'RS');default:NVR" json:"evidence_policy"`
	RotationPriority int            `gorm:"not null;default:3" json:"rotation_priority"`
	InRotation       *bool          `gorm:"not null;default:true" json:"in_rotation"`
	IsActive         *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCheckTemplate struct {
	LocationId       int            `json:"location_id"`
	Title            string         `json:"title" binding:"required"`
	Category         CheckCategory  `json:"category" binding:"required"`
	Severity         CheckSeverity  `json:"severity" binding:"required"`
	PassCriteria     string         `json:"pass_criteria"`
	EvidencePolicy   EvidencePolicy `json:"evidence_policy"`
	RotationPriority int            `json:"rotation_priority"`
	InRotation       *bool          `json:"in_rotation" binding:"required"`
	IsActive         *bool          `json:"is_active" binding:"required"`
}

/*
caches:
	CheckTemplate:$id
	AllCheckTemplateList:$businessId
*/

func (template CheckTemplate) GetBusinessId() string {
	return template.BusinessId
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCheckTemplate) validate(ctx context.Context, businessId string, id int) error {
	if input.RotationPriority < 1 || input.RotationPriority > 5 {
		return errors.New("rotation priority must be between 1 and 5")
	}
	if input.LocationId > 0 {
		if err := utils.ValidateResourceId[Location](ctx, businessId, input.LocationId); err != nil {
			return errors.New("location not found")
		}
	}
	if input.EvidencePolicy == "" {
		input.EvidencePolicy = EvidencePolicyNever
	}
	return nil
}

// CheckChangeAllowed refuses in-place edits once a run has snapshotted this
// version. Callers fall back to versioning instead.
func (template CheckTemplate) CheckChangeAllowed(ctx context.Context) error {
	referenced, err := templateReferenced(ctx, config.GetDB(), template.ID)
	if err != nil {
		return err
	}
	if referenced {
		return errors.New("check template has been used in runs")
	}
	return nil
}

func templateReferenced(ctx context.Context, db *gorm.DB, templateId int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&CheckRunItem{}).
		Where("template_id = ?", templateId).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CreateCheckTemplate(ctx context.Context, input *NewCheckTemplate) (*CheckTemplate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.RotationPriority == 0 {
		input.RotationPriority = 3
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	template := CheckTemplate{
		BusinessId:       businessId,
		LocationId:       input.LocationId,
		Version:          1,
		Title:            input.Title,
		Category:         input.Category,
		Severity:         input.Severity,
		PassCriteria:     input.PassCriteria,
		EvidencePolicy:   input.EvidencePolicy,
		RotationPriority: input.RotationPriority,
		InRotation:       input.InRotation,
		IsActive:         input.IsActive,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&template).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// first version roots its own lineage
	template.RootId = template.ID
	if err := tx.WithContext(ctx).Model(&template).UpdateColumn("root_id", template.ID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := template.RemoveAllRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &template, tx.Commit().Error
}

// UpdateCheckTemplate edits in place while the version is unreferenced. Once
// a run has snapshotted it, the edit lands as a new version of the same
// lineage and the old version is retired from the candidate pool.
func UpdateCheckTemplate(ctx context.Context, id int, input *NewCheckTemplate) (*CheckTemplate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.RotationPriority == 0 {
		input.RotationPriority = 3
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	beforeUpdate, err := utils.FetchModel[CheckTemplate](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	referenced, err := templateReferenced(ctx, db, id)
	if err != nil {
		return nil, err
	}

	if !referenced {
		tx := db.Begin()
		err := tx.WithContext(ctx).Model(&CheckTemplate{ID: id, BusinessId: businessId}).Updates(map[string]interface{}{
			"LocationId":       input.LocationId,
			"Title":            input.Title,
			"Category":         input.Category,
			"Severity":         input.Severity,
			"PassCriteria":     input.PassCriteria,
			"EvidencePolicy":   input.EvidencePolicy,
			"RotationPriority": input.RotationPriority,
			"InRotation":       input.InRotation,
			"IsActive":         input.IsActive,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := RemoveRedisBoth(*beforeUpdate); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return utils.FetchModel[CheckTemplate](ctx, businessId, id)
	}

	// referenced: fork a new version, retire the old one
	next := CheckTemplate{
		BusinessId:       businessId,
		LocationId:       input.LocationId,
		RootId:           beforeUpdate.RootId,
		Version:          beforeUpdate.Version + 1,
		Title:            input.Title,
		Category:         input.Category,
		Severity:         input.Severity,
		PassCriteria:     input.PassCriteria,
		EvidencePolicy:   input.EvidencePolicy,
		RotationPriority: input.RotationPriority,
		InRotation:       input.InRotation,
		IsActive:         input.IsActive,
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&CheckTemplate{ID: id, BusinessId: businessId}).
		UpdateColumn("is_active", false).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(&next).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(*beforeUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &next, tx.Commit().Error
}

func DeleteCheckTemplate(ctx context.Context, id int) (*CheckTemplate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// refuse deletion once referenced by a run snapshot
	template, err := utils.FetchModelForChange[CheckTemplate](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Delete(&template).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(*template); err != nil {
		tx.Rollback()
		return nil, err
	}

	return template, tx.Commit().Error
}

func GetCheckTemplate(ctx context.Context, id int) (*CheckTemplate, error) {
	return GetResource[CheckTemplate](ctx, id)
}

func GetCheckTemplates(ctx context.Context, locationId *int, category *CheckCategory, includeRetired *bool) ([]*CheckTemplate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CheckTemplate

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id IN ?", []int{0, *locationId})
	}
	if category != nil && *category != "" {
		dbCtx = dbCtx.Where("category = ?", category)
	}
	if includeRetired == nil || !*includeRetired {
		dbCtx = dbCtx.Where("is_active = true")
	}
	if err := dbCtx.Order("title").Order("version DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetTemplateLineage lists every version of one lineage, newest first.
func GetTemplateLineage(ctx context.Context, rootId int) ([]*CheckTemplate, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CheckTemplate
	err := db.WithContext(ctx).
		Where("business_id = ? AND root_id = ?", businessId, rootId).
		Order("version DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveCheckTemplate(ctx context.Context, id int, isActive bool) (*CheckTemplate, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return ToggleActiveModel[CheckTemplate](ctx, businessId, id, isActive)
}

// ListRotationCandidates is the generator's candidate pool: active,
// in-rotation templates that apply to the location (brand-wide rows plus the
// location's own).
func ListRotationCandidates(ctx context.Context, tx *gorm.DB, businessId string, locationId int) ([]*CheckTemplate, error) {
	var results []*CheckTemplate
	err := tx.WithContext(ctx).
		Where("business_id = ? AND is_active = true AND in_rotation = true", businessId).
		Where("location_id IN ?", []int{0, locationId}).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CreateDefaultCheckTemplates seeds a starter pack so a new business can run
// checks before building its own library.
func CreateDefaultCheckTemplates(tx *gorm.DB, ctx context.Context, businessId string) error {

	type starter struct {
		title          string
		category       CheckCategory
		severity       CheckSeverity
		passCriteria   string
		evidencePolicy EvidencePolicy
		priority       int
	}

	starters := []starter{
		{"Walk-in cooler at or below 41F", CheckCategoryFoodSafety, CheckSeverityCritical, "Thermometer reads 41F or lower", EvidencePolicyAfterFail, 5},
		{"Handwashing stations stocked", CheckCategoryFoodSafety, CheckSeverityHigh, "Soap, towels and hot water at every station", EvidencePolicyRandomSample, 4},
		{"Sanitizer buckets at correct concentration", CheckCategoryCleaning, CheckSeverityHigh, "Test strip in range on every bucket", EvidencePolicyFirstTime, 4},
		{"Dining area floors clean and dry", CheckCategoryCleaning, CheckSeverityMedium, "No debris, no wet spots without signage", EvidencePolicyNever, 3},
		{"Fryer oil quality acceptable", CheckCategoryEquipment, CheckSeverityMedium, "Oil test below discard threshold", EvidencePolicyRandomSample, 3},
		{"Exit routes clear", CheckCategorySafety, CheckSeverityCritical, "All marked exits unobstructed", EvidencePolicyAlways, 5},
		{"Menu boards match current promotion", CheckCategoryBrand, CheckSeverityLow, "Current promo artwork displayed", EvidencePolicyNever, 2},
		{"Temperature logs up to date", CheckCategoryDocumentation, CheckSeverityMedium, "All entries through yesterday signed", EvidencePolicyNever, 3},
	}

	for _, s := range starters {
		template := CheckTemplate{
			BusinessId:       businessId,
			Version:          1,
			Title:            s.title,
			Category:         s.category,
			Severity:         s.severity,
			PassCriteria:     s.passCriteria,
			EvidencePolicy:   s.evidencePolicy,
			RotationPriority: s.priority,
			InRotation:       utils.NewTrue(),
			IsActive:         utils.NewTrue(),
		}
		if err := tx.WithContext(ctx).Create(&template).Error; err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.WithContext(ctx).Model(&template).UpdateColumn("root_id", template.ID).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return nil
}
