package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/models"
)

func listTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, err := optionalQueryInt(c, "location_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var category *models.CheckCategory
		if raw := strings.TrimSpace(c.Query("category")); raw != "" {
			cat := models.CheckCategory(strings.ToUpper(raw))
			category = &cat
		}
		includeRetired, err := optionalQueryBool(c, "include_retired")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		templates, err := models.GetCheckTemplates(c.Request.Context(), locationId, category, includeRetired)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": templates})
	}
}

func createTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCheckTemplate
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		template, err := models.CreateCheckTemplate(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": template})
	}
}

func updateTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewCheckTemplate
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		template, err := models.UpdateCheckTemplate(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": template})
	}
}

func deleteTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		template, err := models.DeleteCheckTemplate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": template})
	}
}

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func toggleActiveTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		template, err := models.ToggleActiveCheckTemplate(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": template})
	}
}

// listTemplateLineageHandler walks a template's edit history: the root id
// names the lineage, every row is one published version.
func listTemplateLineageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		template, err := models.GetCheckTemplate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		lineage, err := models.GetTemplateLineage(c.Request.Context(), template.RootId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": lineage})
	}
}

// allTemplatesHandler backs the template picker: slim cached rows across
// every version, retired ones included.
func allTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		templates, err := models.ListAllCheckTemplate(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": templates})
	}
}
