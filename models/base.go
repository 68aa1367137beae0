package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// PublishWorkflowEvent implements the transactional outbox: it writes the
// event record inside the caller's DB transaction but does NOT publish to
// Pub/Sub. Publishing happens asynchronously in the outbox dispatcher after
// commit, so an aborted transaction never leaks an event.
func PublishWorkflowEvent(ctx context.Context, db *gorm.DB, businessId string, eventTime time.Time, refId int, refType WorkflowReferenceType, obj interface{}, oldObj interface{}, msgAction PubSubMessageAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if msgAction == PubSubMessageActionCreate || msgAction == PubSubMessageActionUpdate {
		objInByte, err = ToJSONWithoutField(obj, "Items")
		if err != nil {
			return err
		}
	}
	if msgAction == PubSubMessageActionUpdate || msgAction == PubSubMessageActionDelete {
		oldObjInByte, err = ToJSONWithoutField(oldObj, "Items")
		if err != nil {
			return err
		}
	}

	record := WorkflowEventRecord{
		BusinessId:    businessId,
		EventTime:     eventTime,
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        msgAction,
		NewObj:        objInByte,
		OldObj:        oldObjInByte,
		IsProcessed:   false,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	err = db.Create(&record).Error
	if err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ToJSONWithoutField converts an object to JSON after temporarily removing a specified field
func ToJSONWithoutField(obj interface{}, fieldName string) ([]byte, error) {
	// Get the value of the object
	val := reflect.ValueOf(obj)

	// If the value is an interface, get the concrete value it holds
	if val.Kind() == reflect.Interface {
		val = val.Elem()
	}

	// If the value is not a pointer, create a pointer to it
	if val.Kind() != reflect.Ptr {
		valPtr := reflect.New(val.Type())
		valPtr.Elem().Set(val)
		val = valPtr
	}

	// Dereference the pointer
	val = val.Elem()

	// Ensure the value is a struct
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct, got %v", val.Kind())
	}

	// Find the field by name
	field := val.FieldByName(fieldName)
	var err error
	var jsonData []byte
	if field.IsValid() {
		// Check if the field is a slice
		if field.Kind() == reflect.Slice {
			// Iterate over the slice elements
			for i := 0; i < field.Len(); i++ {
				elem := field.Index(i)
				if elem.Kind() == reflect.Struct {
					elemPtr := reflect.New(elem.Type())
					elemPtr.Elem().Set(elem)
					field.Index(i).Set(elemPtr.Elem())
				}
			}
		}

		// Store the original value of the field
		originalValue := reflect.New(field.Type()).Elem()
		originalValue.Set(field)

		// Clear the field value
		field.Set(reflect.Zero(field.Type()))

		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())

		// Restore the original value
		field.Set(originalValue)
	} else {
		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())
	}
	if err != nil {
		return nil, err
	}
	return jsonData, nil
}

// localCalendarDate pins the location-local calendar day of t to UTC midnight
// so day equality survives the driver's UTC round-trip.
func localCalendarDate(t time.Time, timezone string) (time.Time, error) {
	day, err := utils.ConvertToDate(t, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), nil
}

func severitySlaDays(severity CheckSeverity) int {
	var envKey string
	var defaultDays int
	switch severity {
	case CheckSeverityCritical:
		envKey, defaultDays = "CORRECTIVE_SLA_CRITICAL_DAYS", 0
	case CheckSeverityHigh:
		envKey, defaultDays = "CORRECTIVE_SLA_HIGH_DAYS", 1
	case CheckSeverityMedium:
		envKey, defaultDays = "CORRECTIVE_SLA_MEDIUM_DAYS", 3
	case CheckSeverityLow:
		envKey, defaultDays = "CORRECTIVE_SLA_LOW_DAYS", 7
	default:
		return 7
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultDays
}

// calculateDueDate returns the corrective-action deadline for a failure:
// end of the local day the SLA lands on. CRITICAL is due the same day.
func calculateDueDate(failedAt time.Time, severity CheckSeverity, timezone string) (time.Time, error) {
	return utils.EndOfLocalDay(failedAt, timezone, severitySlaDays(severity))
}

// runGraceDays is how many extra whole local days a run stays open past its
// scheduled date before it expires.
func runGraceDays() int {
	if v := os.Getenv("RUN_GRACE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 1
}

// MySQL duplicate entry (unique key collision)
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// horizonFromCalendarDay returns the exclusive UTC upper bound of
// (day + extraDays) read on the location's wall clock. day is a calendar
// date pinned to UTC midnight, so its Y/M/D fields name the local day
// directly and must not be shifted through another zone conversion.
func horizonFromCalendarDay(day time.Time, timezone string, extraDays int) (time.Time, error) {
	if timezone == "" {
		timezone = "America/Chicago"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	localMidnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return localMidnight.AddDate(0, 0, extraDays+1).UTC(), nil
}
