package models

import (
	"time"

	"github.com/opsfocus/checks_backend/utils"
)

type Identifier interface {
	GetId() int
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(int) Data
}

// key
func (l Location) GetId() int {
	return l.ID
}

func (l Location) GetDefault(id int) Data {
	return Location{
		ID:              id,
		DailyCheckCount: 3,
		IsActive:        utils.NewFalse(),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func (u User) GetId() int {
	return u.ID
}

func (u User) GetDefault(id int) Data {
	return User{
		ID:               id,
		Role:             UserRoleFieldManager,
		PreferredChannel: AssignmentChannelEmail,
		IsActive:         utils.NewFalse(),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func (t CheckTemplate) GetId() int {
	return t.ID
}

func (t CheckTemplate) GetDefault(id int) Data {
	return CheckTemplate{
		ID:               id,
		Version:          1,
		EvidencePolicy:   EvidencePolicyNever,
		RotationPriority: 3,
		InRotation:       utils.NewFalse(),
		IsActive:         utils.NewFalse(),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func (m MediaAsset) GetId() int {
	return m.ID
}

func (m MediaAsset) GetDefault(id int) Data {
	return MediaAsset{
		ID:        id,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (a CorrectiveAction) GetId() int {
	return a.ID
}

func (a CorrectiveAction) GetDefault(id int) Data {
	return CorrectiveAction{
		ID:                 id,
		CurrentStatus:      CorrectiveActionStatusOpen,
		FixedDuringSession: utils.NewFalse(),
		DueAt:              time.Now(),
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

// loader loading more than one model by one id
type RelatedData interface {
	GetReferenceId() int
}

func (i CheckRunItem) GetReferenceId() int {
	return i.RunId
}

func (r CheckResponse) GetReferenceId() int {
	return r.RunId
}

func (a CheckAssignment) GetReferenceId() int {
	return a.RunId
}

func (a CorrectiveAction) GetReferenceId() int {
	return a.ResponseId
}
