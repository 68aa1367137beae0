package models

import (
	"context"

	"github.com/google/uuid"
)

// embedding struct will receive ID field, satisfy Identifier interface
type HasId struct {
	ID int `json:"id"`
}

func (h HasId) GetId() int {
	return h.ID
}

type HasUid struct {
	ID uuid.UUID `json:"id"`
}

func (h HasUid) GetId() uuid.UUID {
	return h.ID
}

type AllBusiness struct {
	HasUid
	LogoURL  string `json:"logoUrl"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
	IsActive bool   `json:"is_active"`
}

type AllLocation struct {
	HasId
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	DailyCheckCount int    `json:"daily_check_count"`
	IsActive        bool   `json:"is_active"`
}

type AllUser struct {
	HasId
	Name       string   `json:"name"`
	Role       UserRole `json:"role"`
	LocationId int      `json:"location_id"`
	IsActive   bool     `json:"is_active"`
}

type AllCheckTemplate struct {
	HasId
	RootId         int            `json:"root_id"`
	Version        int            `json:"version"`
	Title          string         `json:"title"`
	Category       CheckCategory  `json:"category"`
	Severity       CheckSeverity  `json:"severity"`
	EvidencePolicy EvidencePolicy `json:"evidence_policy"`
	IsActive       bool           `json:"is_active"`
}

func ListAllUser(ctx context.Context) ([]*AllUser, error) {
	return ListAllResource[User, AllUser](ctx)
}

func ListAllCheckTemplate(ctx context.Context) ([]*AllCheckTemplate, error) {
	return ListAllResource[CheckTemplate, AllCheckTemplate](ctx, "title")
}

func ListAllBusiness(ctx context.Context) ([]*AllBusiness, error) {
	return ListAllAdmin[Business, AllBusiness](ctx, "id", "logo_url", "name", "email", "timezone", "is_active")
}
