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

type Location struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"index;not null" json:"business_id"`
	Name            string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Phone           string    `gorm:"size:20" json:"phone"`
	Address         string    `gorm:"type:text" json:"address"`
	City            string    `gorm:"size:100" json:"city"`
	Region          string    `gorm:"size:100" json:"region"`
	Timezone        string    `gorm:"size:50" json:"timezone"`
	DailyCheckCount int       `gorm:"not null;default:3" json:"daily_check_count"`
	RetentionDays   int       `gorm:"not null;default:0" json:"retention_days"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLocation struct {
	Name            string `json:"name" binding:"required"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	Region          string `json:"region"`
	Timezone        string `json:"timezone"`
	DailyCheckCount int    `json:"daily_check_count"`
	RetentionDays   int    `json:"retention_days"`
}

/*
caches:
	Location:$id
	AllLocationList:$businessId
*/

// ResolveTimezone returns the zone run math should use for this location,
// falling back to the brand's zone and then the service default.
func (location *Location) ResolveTimezone(ctx context.Context) string {
	if location.Timezone != "" {
		return location.Timezone
	}
	business, err := GetBusinessById(ctx, location.BusinessId)
	if err == nil && business.Timezone != "" {
		return business.Timezone
	}
	return "America/Chicago"
}

// DailyCount is the run generator's N; zero means the column default was
// bypassed somewhere, so fall back rather than generate an empty run.
func (location *Location) DailyCount() int {
	if location.DailyCheckCount <= 0 {
		return 3
	}
	return location.DailyCheckCount
}

// validate input for both create & update. (id = 0 for create)
func (input *NewLocation) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Location](ctx, businessId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Location](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidateUnique[Location](ctx, businessId, "phone", input.Phone, id); err != nil {
			return err
		}
	}
	// timezone must load before it decides deadlines
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return errors.New("invalid timezone")
		}
	}
	if input.DailyCheckCount < 0 || input.DailyCheckCount > 20 {
		return errors.New("daily check count must be between 0 and 20")
	}
	if input.RetentionDays < 0 {
		return errors.New("retention days cannot be negative")
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	dailyCount := input.DailyCheckCount
	if dailyCount == 0 {
		dailyCount = 3
	}

	location := Location{
		BusinessId:      businessId,
		Name:            input.Name,
		Phone:           input.Phone,
		Address:         input.Address,
		City:            input.City,
		Region:          input.Region,
		Timezone:        input.Timezone,
		DailyCheckCount: dailyCount,
		RetentionDays:   input.RetentionDays,
		IsActive:        utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		return nil, err
	}

	return &location, nil
}

func UpdateLocation(ctx context.Context, id int, input *NewLocation) (*Location, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[Location](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Name":            input.Name,
		"Phone":           input.Phone,
		"Address":         input.Address,
		"City":            input.City,
		"Region":          input.Region,
		"Timezone":        input.Timezone,
		"DailyCheckCount": input.DailyCheckCount,
		"RetentionDays":   input.RetentionDays,
	}).Error
	if err != nil {
		return nil, err
	}

	return location, nil
}

func ToggleActiveLocation(ctx context.Context, id int, isActive bool) (*Location, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Location](ctx, businessId, id, isActive)
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return GetResource[Location](ctx, id)
}

func GetLocations(ctx context.Context, name *string) ([]*Location, error) {

	db := config.GetDB()
	var results []*Location

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ListAllLocation(ctx context.Context) ([]*AllLocation, error) {
	return ListAllResource[Location, AllLocation](ctx, "name")
}

// GetActiveLocationsForBusiness serves the daily scheduler: every location
// that should get a generated run today.
func GetActiveLocationsForBusiness(ctx context.Context, db *gorm.DB, businessId string) ([]*Location, error) {
	var results []*Location
	err := db.WithContext(ctx).
		Where("business_id = ? AND is_active = true", businessId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func CreateDefaultLocation(tx *gorm.DB, ctx context.Context, businessId string, timezone string) (*Location, error) {

	location := Location{
		BusinessId:      businessId,
		Name:            "Main Location",
		Timezone:        timezone,
		DailyCheckCount: 3,
		IsActive:        utils.NewTrue(),
	}

	if err := tx.WithContext(ctx).Create(&location).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &location, nil
}

func (location Location) GetBusinessId() string {
	return location.BusinessId
}
