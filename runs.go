package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/middlewares"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
)

type runListRow struct {
	*models.CheckRun
	LocationName   string `json:"location_name"`
	ItemsTotal     int    `json:"items_total"`
	RespondedCount int    `json:"responded_count"`
}

func listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, err := optionalQueryInt(c, "location_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var status *models.CheckRunStatus
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			s := models.CheckRunStatus(strings.ToUpper(raw))
			status = &s
		}
		fromDate, err := optionalQueryDate(c, "from")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		toDate, err := optionalQueryDate(c, "to")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// location-bound callers only ever see their own store
		if scope := callerLocationScope(c.Request.Context()); scope > 0 {
			if locationId != nil && *locationId != scope {
				c.JSON(http.StatusForbidden, gin.H{"error": "location is outside your scope"})
				return
			}
			locationId = &scope
		}

		runs, err := models.GetCheckRuns(c.Request.Context(), locationId, status, fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}

		rows := make([]runListRow, 0, len(runs))
		for _, run := range runs {
			row := runListRow{CheckRun: run}
			if location, err := middlewares.GetLocation(c.Request.Context(), run.LocationId); err == nil && location != nil {
				row.LocationName = location.Name
			}
			if items, err := middlewares.GetRunItemsForRun(c.Request.Context(), run.ID); err == nil {
				row.ItemsTotal = len(items)
			}
			if responses, err := middlewares.GetResponsesForRun(c.Request.Context(), run.ID); err == nil {
				row.RespondedCount = len(responses)
			}
			rows = append(rows, row)
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	}
}

type runItemRow struct {
	*models.RunItemView
	CorrectiveAction *models.CorrectiveAction `json:"corrective_action,omitempty"`
	EvidenceUrl      string                   `json:"evidence_url,omitempty"`
	TemplateRetired  bool                     `json:"template_retired,omitempty"`
}

type runDetailRow struct {
	*models.RunView
	Items []*runItemRow `json:"items"`
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		view, err := models.GetRunView(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !requireLocationAccess(c, view.Run.LocationId) {
			return
		}

		detail := runDetailRow{RunView: view}
		for _, item := range view.Items {
			row := runItemRow{RunItemView: item}
			if template, err := middlewares.GetCheckTemplate(c.Request.Context(), item.TemplateId); err == nil && template != nil {
				row.TemplateRetired = template.IsActive == nil || !*template.IsActive
			}
			if item.Response != nil {
				// uq_action_response: at most one action per response
				if actions, err := middlewares.GetActionsForResponse(c.Request.Context(), item.Response.ID); err == nil && len(actions) > 0 {
					row.CorrectiveAction = actions[0]
				}
				if item.Response.MediaAssetId > 0 {
					if asset, err := middlewares.GetMediaAsset(c.Request.Context(), item.Response.MediaAssetId); err == nil && asset != nil {
						row.EvidenceUrl = utils.BuildObjectAccessURL(asset.StorageKey)
					}
				}
			}
			detail.Items = append(detail.Items, &row)
		}
		c.JSON(http.StatusOK, gin.H{"data": detail})
	}
}

type generateRunRequest struct {
	LocationId int                  `json:"location_id" binding:"required"`
	Date       *models.MyDateString `json:"date"`
}

func generateRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if !requireLocationAccess(c, req.LocationId) {
			return
		}

		run, err := models.GenerateRun(c.Request.Context(), req.LocationId, req.Date)
		if err != nil {
			respondError(c, err)
			return
		}
		view, err := models.GetRunView(c.Request.Context(), run.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": view})
	}
}

type instantRunRequest struct {
	LocationId int `json:"location_id" binding:"required"`
}

func generateInstantRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req instantRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if !requireLocationAccess(c, req.LocationId) {
			return
		}

		run, err := models.GenerateInstantRun(c.Request.Context(), req.LocationId)
		if err != nil {
			respondError(c, err)
			return
		}
		view, err := models.GetRunView(c.Request.Context(), run.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": view})
	}
}

func generateTrialRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req instantRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if !requireLocationAccess(c, req.LocationId) {
			return
		}

		run, err := models.GenerateTrialRun(c.Request.Context(), req.LocationId)
		if err != nil {
			respondError(c, err)
			return
		}
		view, err := models.GetRunView(c.Request.Context(), run.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": view})
	}
}
