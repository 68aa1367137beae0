package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// respondError maps domain errors onto the HTTP surface. Unknown tokens stay
// deliberately vague; expiry and reuse get distinct codes because the caller
// can act on those. Anything unmapped is treated as a rejected write and
// reported with the model's own message.
func respondError(c *gin.Context, err error) {
	if evidenceErr, ok := models.IsEvidenceRequired(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       evidenceErr.Error(),
			"reason":      string(evidenceErr.Reason),
			"run_item_id": evidenceErr.RunItemId,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrTokenNotFound),
		errors.Is(err, models.ErrRunNotFound),
		errors.Is(err, models.ErrRunItemNotFound),
		errors.Is(err, models.ErrMediaNotFound),
		errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage(err)})
	case errors.Is(err, models.ErrTokenExpired),
		errors.Is(err, models.ErrRunExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTokenAlreadyUsed),
		errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), "httpError.go", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return "record not found"
	}
	return err.Error()
}

// respondBindError reports a rejected request body. Validation failures come
// back as a field -> rule map so clients can mark the offending inputs.
func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		for _, ve := range validationErrors {
			fields[ve.Field()] = ve.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// pathId reads a numeric :id route parameter, writing the 400 itself when the
// value is unusable.
func pathId(c *gin.Context) (int, bool) {
	id, err := parsePositiveInt(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a numeric id is required"})
		return 0, false
	}
	return id, true
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("value must be positive")
	}
	return n, nil
}

// optionalQueryInt returns nil when the parameter is absent.
func optionalQueryInt(c *gin.Context, name string) (*int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	n, err := parsePositiveInt(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a positive number", name)
	}
	return &n, nil
}

func optionalQueryBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &b, nil
}

func parseQueryDate(raw string) (models.MyDateString, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := time.Parse("2006-01-02T15:04:05", raw)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return models.MyDateString{}, errors.New("dates must look like 2006-01-02")
		}
	}
	return models.MyDateString(parsed), nil
}

// optionalQueryDate returns nil when the parameter is absent.
func optionalQueryDate(c *gin.Context, name string) (*models.MyDateString, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	date, err := parseQueryDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", name, err.Error())
	}
	return &date, nil
}

func requiredQueryDate(c *gin.Context, name string) (models.MyDateString, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return models.MyDateString{}, fmt.Errorf("%s is required", name)
	}
	date, err := parseQueryDate(raw)
	if err != nil {
		return models.MyDateString{}, fmt.Errorf("%s: %s", name, err.Error())
	}
	return date, nil
}

// callerLocationScope returns the caller's home location when their role is
// location-bound, 0 when they can see the whole brand.
func callerLocationScope(ctx context.Context) int {
	role, _ := utils.GetUserRoleFromContext(ctx)
	switch models.UserRole(role) {
	case models.UserRoleLocationOwner, models.UserRoleFieldManager:
		locationId, _ := utils.GetLocationIdFromContext(ctx)
		return locationId
	default:
		return 0
	}
}

// requireLocationAccess rejects location-bound callers acting outside their
// store. Writes the 403 itself.
func requireLocationAccess(c *gin.Context, locationId int) bool {
	scope := callerLocationScope(c.Request.Context())
	if scope == 0 || scope == locationId {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "location is outside your scope"})
	return false
}
