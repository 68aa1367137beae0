package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type CheckCategory string

const (
	CheckCategoryFoodSafety    CheckCategory = "FS"
	CheckCategoryCleaning      CheckCategory = "CL"
	CheckCategoryEquipment     CheckCategory = "EQ"
	CheckCategorySafety        CheckCategory = "SF"
	CheckCategoryBrand         CheckCategory = "BR"
	CheckCategoryDocumentation CheckCategory = "DC"
)

// convert input to enum type
func (t *CheckCategory) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("check category must be string")
	}

	checkCategories := map[string]CheckCategory{
		"FS": CheckCategoryFoodSafety,
		"CL": CheckCategoryCleaning,
		"EQ": CheckCategoryEquipment,
		"SF": CheckCategorySafety,
		"BR": CheckCategoryBrand,
		"DC": CheckCategoryDocumentation,
	}

	var ok bool
	*t, ok = checkCategories[str]
	if !ok {
		return errors.New("invalid check category")
	}
	return nil
}

type CheckSeverity string

const (
	CheckSeverityCritical CheckSeverity = "C"
	CheckSeverityHigh     CheckSeverity = "H"
	CheckSeverityMedium   CheckSeverity = "M"
	CheckSeverityLow      CheckSeverity = "L"
)

// convert input to enum type
func (t *CheckSeverity) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("check severity must be string")
	}
	switch str {
	case "C":
		*t = CheckSeverityCritical
	case "H":
		*t = CheckSeverityHigh
	case "M":
		*t = CheckSeverityMedium
	case "L":
		*t = CheckSeverityLow
	default:
		return errors.New("invalid check severity")
	}
	return nil
}

// EvidencePolicy decides, per template, when a photo must accompany a response.
type EvidencePolicy string

const (
	EvidencePolicyAlways       EvidencePolicy = "ALW"
	EvidencePolicyNever        EvidencePolicy = "NVR"
	EvidencePolicyFirstTime    EvidencePolicy = "FT"
	EvidencePolicyAfterFail    EvidencePolicy = "AF"
	EvidencePolicyRandomSample EvidencePolicy = "RS"
)

func (t *EvidencePolicy) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("evidence policy must be string")
	}

	evidencePolicies := map[string]EvidencePolicy{
		"ALW": EvidencePolicyAlways,
		"NVR": EvidencePolicyNever,
		"FT":  EvidencePolicyFirstTime,
		"AF":  EvidencePolicyAfterFail,
		"RS":  EvidencePolicyRandomSample,
	}

	var ok bool
	*t, ok = evidencePolicies[str]
	if !ok {
		return errors.New("invalid evidence policy")
	}
	return nil
}

// EvidenceReason is the snapshot of WHY an item demands evidence, fixed at
// run generation so the requirement stays explainable after template edits.
type EvidenceReason string

const (
	EvidenceReasonNone         EvidenceReason = "NONE"
	EvidenceReasonAlways       EvidenceReason = "ALW"
	EvidenceReasonFirstTime    EvidenceReason = "FT"
	EvidenceReasonAfterFail    EvidenceReason = "AF"
	EvidenceReasonRandomSample EvidenceReason = "RS"
)

func (t EvidenceReason) Describe() string {
	switch t {
	case EvidenceReasonAlways:
		return "evidence is always required for this check"
	case EvidenceReasonFirstTime:
		return "evidence is required the first time this check runs at the location"
	case EvidenceReasonAfterFail:
		return "evidence is required after a prior fail of this check"
	case EvidenceReasonRandomSample:
		return "this check was randomly sampled for evidence this cycle"
	default:
		return "no evidence required"
	}
}

type CheckRunStatus string

const (
	CheckRunStatusPending   CheckRunStatus = "PENDING"
	CheckRunStatusCompleted CheckRunStatus = "COMPLETED"
	CheckRunStatusExpired   CheckRunStatus = "EXPIRED"
)

type CheckRunType string

const (
	CheckRunTypeScheduled CheckRunType = "SCHEDULED"
	CheckRunTypeInstant   CheckRunType = "INSTANT"
	CheckRunTypeTrial     CheckRunType = "TRIAL"
)

type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "PENDING"
	AssignmentStatusSent      AssignmentStatus = "SENT"
	AssignmentStatusAccessed  AssignmentStatus = "ACCESSED"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
	AssignmentStatusFailed    AssignmentStatus = "FAILED"
	AssignmentStatusExpired   AssignmentStatus = "EXPIRED"
)

// live reports whether the assignment can still move to another status.
func (s AssignmentStatus) live() bool {
	switch s {
	case AssignmentStatusPending, AssignmentStatusSent, AssignmentStatusAccessed:
		return true
	case AssignmentStatusCompleted, AssignmentStatusFailed, AssignmentStatusExpired:
		return false
	default:
		return false
	}
}

type AssignmentChannel string

const (
	AssignmentChannelEmail AssignmentChannel = "EMAIL"
	AssignmentChannelSMS   AssignmentChannel = "SMS"
)

// convert input to enum type
func (t *AssignmentChannel) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("assignment channel must be string")
	}
	switch str {
	case "EMAIL":
		*t = AssignmentChannelEmail
	case "SMS":
		*t = AssignmentChannelSMS
	default:
		return errors.New("invalid assignment channel")
	}
	return nil
}

type ResponseStatus string

const (
	ResponseStatusPass    ResponseStatus = "PASS"
	ResponseStatusFail    ResponseStatus = "FAIL"
	ResponseStatusSkipped ResponseStatus = "SKIPPED"
)

// convert input to enum type
func (t *ResponseStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("response status must be string")
	}
	switch str {
	case "PASS":
		*t = ResponseStatusPass
	case "FAIL":
		*t = ResponseStatusFail
	case "SKIPPED":
		*t = ResponseStatusSkipped
	default:
		return errors.New("invalid response status")
	}
	return nil
}

type CorrectiveActionStatus string

const (
	CorrectiveActionStatusOpen       CorrectiveActionStatus = "OPEN"
	CorrectiveActionStatusInProgress CorrectiveActionStatus = "IN_PROGRESS"
	CorrectiveActionStatusResolved   CorrectiveActionStatus = "RESOLVED"
	CorrectiveActionStatusVerified   CorrectiveActionStatus = "VERIFIED"
	CorrectiveActionStatusDismissed  CorrectiveActionStatus = "DISMISSED"
)

type UserRole string

const (
	UserRoleSystemAdmin   UserRole = "SA"
	UserRoleBrandAdmin    UserRole = "BA"
	UserRoleLocationOwner UserRole = "LO"
	UserRoleFieldManager  UserRole = "FM"
)

// convert input to enum type
func (p *UserRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("user role must be string")
	}

	userRoles := map[string]UserRole{
		"SA": UserRoleSystemAdmin,
		"BA": UserRoleBrandAdmin,
		"LO": UserRoleLocationOwner,
		"FM": UserRoleFieldManager,
	}

	var ok bool
	*p, ok = userRoles[str]
	if !ok {
		return errors.New("invalid user role")
	}
	return nil
}

type WorkflowReferenceType string

const (
	WorkflowReferenceTypeResponseRecorded       WorkflowReferenceType = "RR"
	WorkflowReferenceTypeRunCompleted           WorkflowReferenceType = "RC"
	WorkflowReferenceTypeAssignmentIssued       WorkflowReferenceType = "AI"
	WorkflowReferenceTypeCorrectiveActionOpened WorkflowReferenceType = "CA"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)

type MyDateString time.Time

func (t MyDateString) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t))
}

// Parse the string into time.Time object
func (t *MyDateString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("MyDateString must be string")
	}

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", str)
	if err != nil {
		// plain calendar dates are accepted too
		localTime, err = time.Parse("2006-01-02", str)
		if err != nil {
			return errors.New("error parsing datetime")
		}
	}
	*t = MyDateString(localTime)

	return nil
}

func (t *MyDateString) StartOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "America/Chicago"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the start of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		0, 0, 0, 0,
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

func (t *MyDateString) EndOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "America/Chicago"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the end of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		23, 59, 59, 999, // Max nanoseconds
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

// Value implements the driver.Valuer interface
func (t MyDateString) Value() (driver.Value, error) {
	return time.Time(t), nil
}

// Scan implements the sql.Scanner interface
func (t *MyDateString) Scan(value interface{}) error {
	if value == nil {
		*t = MyDateString(time.Time{})
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		*t = MyDateString(v)
	default:
		return fmt.Errorf("cannot convert %T to MyDateString", value)
	}
	return nil
}

