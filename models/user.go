package models

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID               int               `gorm:"primary_key" json:"id"`
	BusinessId       string            `gorm:"index" json:"business_id"`
	LocationId       int               `gorm:"index;not null;default:0" json:"location_id"`
	Username         string            `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name             string            `gorm:"size:100;not null" json:"name" binding:"required"`
	Email            *string           `gorm:"size:100;unique" json:"email"`
	Phone            string            `gorm:"size:20" json:"phone"`
	Password         string            `gorm:"size:255;not null" json:"password"`
	Role             UserRole          `gorm:"type:enum('SA', 'BA', 'LO', 'FM');default:FM" json:"role"`
	PreferredChannel AssignmentChannel `gorm:"type:enum('EMAIL', 'SMS');default:EMAIL" json:"preferred_channel"`
	IsActive         *bool             `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	LocationId       int               `json:"location_id"`
	Username         string            `json:"username" binding:"required"`
	Name             string            `json:"name" binding:"required"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone"`
	Password         string            `json:"password" binding:"required"`
	Role             UserRole          `json:"role" binding:"required"`
	PreferredChannel AssignmentChannel `json:"preferred_channel"`
	IsActive         *bool             `json:"is_active" binding:"required"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func (user User) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllUser](user.BusinessId)
}

type LoginInfo struct {
	Token        string   `json:"token"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
	LocationId   int      `json:"location_id"`
	BusinessName string   `json:"business_name"`
	Timezone     string   `json:"timezone"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func (user User) GetBusinessId() string {
	return user.BusinessId
}

// RoleRank orders the closed role set for at-least comparisons. Unknown
// values rank below every real role so they can never pass a gate.
func RoleRank(role UserRole) int {
	switch role {
	case UserRoleSystemAdmin:
		return 4
	case UserRoleBrandAdmin:
		return 3
	case UserRoleLocationOwner:
		return 2
	case UserRoleFieldManager:
		return 1
	default:
		return 0
	}
}

func RoleAtLeast(role UserRole, min UserRole) bool {
	rank := RoleRank(role)
	return rank > 0 && rank >= RoleRank(min)
}

// CanAccessLocation scopes location-bound roles to their own store; brand
// roles see every location of the business.
func (user *User) CanAccessLocation(locationId int) bool {
	switch user.Role {
	case UserRoleSystemAdmin, UserRoleBrandAdmin:
		return true
	case UserRoleLocationOwner, UserRoleFieldManager:
		return user.LocationId == 0 || user.LocationId == locationId
	default:
		return false
	}
}

func (input *NewUser) validate(ctx context.Context, businessId string) error {
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email address")
	}
	if input.PreferredChannel == AssignmentChannelSMS {
		if err := utils.ValidatePhoneNumber(input.Phone, "US"); err != nil {
			return errors.New("a valid phone number is required for the SMS channel")
		}
	}
	if input.LocationId > 0 {
		if err := utils.ValidateResourceId[Location](ctx, businessId, input.LocationId); err != nil {
			return errors.New("location not found")
		}
	}
	switch input.Role {
	case UserRoleSystemAdmin, UserRoleBrandAdmin, UserRoleLocationOwner, UserRoleFieldManager:
	default:
		return errors.New("invalid user role")
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username).Or("email = ?", input.Email).Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate username or email")
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	input.Email = strings.ToLower(input.Email)

	channel := input.PreferredChannel
	if channel == "" {
		channel = AssignmentChannelEmail
	}

	user := User{
		BusinessId:       businessId,
		LocationId:       input.LocationId,
		Username:         html.EscapeString(strings.TrimSpace(input.Username)),
		Name:             input.Name,
		Email:            utils.NilIfEmpty(input.Email),
		Phone:            input.Phone,
		Password:         string(hashedPassword),
		Role:             input.Role,
		PreferredChannel: channel,
		IsActive:         input.IsActive,
	}

	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {

	db := config.GetDB()
	var result User

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	result.PrepareGive()
	return &result, nil
}

func GetUsers(ctx context.Context, locationId *int, role *UserRole) ([]*User, error) {

	db := config.GetDB()
	var results []*User

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", locationId)
	}
	if role != nil && *role != "" {
		dbCtx = dbCtx.Where("role = ?", role)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}

	for i, u := range results {
		u.Password = ""
		results[i] = u
	}
	return results, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {

	user := User{}

	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if err := config.SetRedisObject("User:"+username, &user, 0); err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		// same message whether the user is missing or the password is wrong
		return nil, errors.New("invalid username or password")
	}

	// check login credentials
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, errors.New("invalid username or password")
	}

	if user.IsActive == nil || !*user.IsActive {
		return nil, errors.New("user is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	business, err := GetBusinessById(ctx, user.BusinessId)
	if err != nil {
		return nil, err
	}

	result := LoginInfo{
		Token:        token,
		Name:         user.Name,
		Role:         user.Role,
		LocationId:   user.LocationId,
		BusinessName: business.Name,
		Timezone:     business.Timezone,
	}
	return &result, nil
}

func UpdateUser(ctx context.Context, id int, input *NewUser) (*User, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var count int64
	if err := db.WithContext(ctx).Model(&User{}).
		Where("username = ? OR email = ?", input.Username, input.Email).
		Not("id = ?", id).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate email or username")
	}

	err := db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"LocationId":       input.LocationId,
		"Username":         html.EscapeString(strings.TrimSpace(input.Username)),
		"Name":             input.Name,
		"Email":            utils.NilIfEmpty(strings.ToLower(input.Email)),
		"Phone":            input.Phone,
		"Role":             input.Role,
		"PreferredChannel": input.PreferredChannel,
		"IsActive":         input.IsActive,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return nil, err
	}
	// check oldPassword
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return nil, errors.New("old password is wrong")
	}

	//turn password into hash
	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&user).UpdateColumn("password", string(hashedPassword)).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}

	user.PrepareGive()
	return &user, tx.Commit().Error
}

// GetLocationOwner picks the default assignee for corrective actions at a
// location: the first active LocationOwner, else nil.
func GetLocationOwner(ctx context.Context, tx *gorm.DB, businessId string, locationId int) (*User, error) {
	var owner User
	err := tx.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND role = ? AND is_active = true", businessId, locationId, UserRoleLocationOwner).
		Order("id").
		First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

// GetActiveFieldManagers lists the recipients for auto-issued daily links.
func GetActiveFieldManagers(ctx context.Context, tx *gorm.DB, businessId string, locationId int) ([]*User, error) {
	var results []*User
	err := tx.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND role = ? AND is_active = true", businessId, locationId, UserRoleFieldManager).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func CreateDefaultOwner(tx *gorm.DB, ctx context.Context, businessId string, email string, name string) (*User, error) {

	if name == "" {
		name = "Owner"
	}

	hashedPassword, err := utils.HashPassword("default123")
	if err != nil {
		return nil, err
	}

	owner := User{
		BusinessId: businessId,
		Username:   email,
		Name:       name,
		Email:      &email,
		Password:   string(hashedPassword),
		Role:       UserRoleBrandAdmin,
		IsActive:   utils.NewTrue(),
	}
	if err := tx.WithContext(ctx).Create(&owner).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &owner, nil
}
