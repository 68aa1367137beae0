package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/middlewares"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
)

type actionRow struct {
	*models.CorrectiveAction
	LocationName   string `json:"location_name"`
	AssigneeName   string `json:"assignee_name"`
	BeforeMediaUrl string `json:"before_media_url,omitempty"`
	AfterMediaUrl  string `json:"after_media_url,omitempty"`
}

func decorateAction(c *gin.Context, action *models.CorrectiveAction) actionRow {
	row := actionRow{CorrectiveAction: action}
	if location, err := middlewares.GetLocation(c.Request.Context(), action.LocationId); err == nil && location != nil {
		row.LocationName = location.Name
	}
	if action.AssigneeId > 0 {
		if assignee, err := middlewares.GetUser(c.Request.Context(), action.AssigneeId); err == nil && assignee != nil {
			row.AssigneeName = assignee.Name
		}
	}
	row.BeforeMediaUrl = mediaAccessURL(c, action.BeforeMediaId)
	row.AfterMediaUrl = mediaAccessURL(c, action.AfterMediaId)
	return row
}

func mediaAccessURL(c *gin.Context, mediaId int) string {
	if mediaId <= 0 {
		return ""
	}
	asset, err := middlewares.GetMediaAsset(c.Request.Context(), mediaId)
	if err != nil || asset == nil {
		return ""
	}
	return utils.BuildObjectAccessURL(asset.StorageKey)
}

func listCorrectiveActionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, err := optionalQueryInt(c, "location_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var status *models.CorrectiveActionStatus
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			s := models.CorrectiveActionStatus(strings.ToUpper(raw))
			status = &s
		}
		assigneeId, err := optionalQueryInt(c, "assignee_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		overdueOnly, err := optionalQueryBool(c, "overdue_only")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if scope := callerLocationScope(c.Request.Context()); scope > 0 {
			if locationId != nil && *locationId != scope {
				c.JSON(http.StatusForbidden, gin.H{"error": "location is outside your scope"})
				return
			}
			locationId = &scope
		}

		actions, err := models.GetCorrectiveActions(c.Request.Context(), locationId, status, assigneeId, overdueOnly)
		if err != nil {
			respondError(c, err)
			return
		}

		rows := make([]actionRow, 0, len(actions))
		for _, action := range actions {
			rows = append(rows, decorateAction(c, action))
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	}
}

func getCorrectiveActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		action, err := models.GetCorrectiveAction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !requireLocationAccess(c, action.LocationId) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decorateAction(c, action)})
	}
}

// actionTransitionHandler wraps the four lifecycle moves; every illegal move
// comes back 409 from the model layer.
func startCorrectiveActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		action, err := models.StartCorrectiveAction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decorateAction(c, action)})
	}
}

func resolveCorrectiveActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.ResolveCorrectiveActionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		action, err := models.ResolveCorrectiveAction(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decorateAction(c, action)})
	}
}

func verifyCorrectiveActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		action, err := models.VerifyCorrectiveAction(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decorateAction(c, action)})
	}
}

func dismissCorrectiveActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.DismissCorrectiveActionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		action, err := models.DismissCorrectiveAction(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decorateAction(c, action)})
	}
}
