package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models/reports"
)

// dashboardLocation resolves the location a dashboard call is about:
// location-bound callers get their own store, brand callers must name one.
func dashboardLocation(c *gin.Context) (int, bool) {
	locationId, err := optionalQueryInt(c, "location_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}

	if scope := callerLocationScope(c.Request.Context()); scope > 0 {
		if locationId != nil && *locationId != scope {
			c.JSON(http.StatusForbidden, gin.H{"error": "location is outside your scope"})
			return 0, false
		}
		return scope, true
	}

	if locationId == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
		return 0, false
	}
	return *locationId, true
}

func streaksDashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, ok := dashboardLocation(c)
		if !ok {
			return
		}
		report, err := reports.GetStreakReport(c.Request.Context(), locationId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": report})
	}
}

func coverageDashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, ok := dashboardLocation(c)
		if !ok {
			return
		}
		report, err := reports.GetCoverageReport(c.Request.Context(), locationId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": report})
	}
}

func completionDashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, err := optionalQueryInt(c, "location_id")
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
		fromDate, err := requiredQueryDate(c, "from")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		toDate, err := requiredQueryDate(c, "to")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, err := reports.GetCompletionReport(c.Request.Context(), locationId, fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": report})
	}
}

// exportDashboardHandler streams the compliance workbook. Brand-wide data,
// so the route carries a brand-admin gate.
func exportDashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, err := requiredQueryDate(c, "from")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		toDate, err := requiredQueryDate(c, "to")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		workbook, err := reports.BuildComplianceWorkbook(c.Request.Context(), fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}

		filename := "compliance-" + time.Time(fromDate).Format("20060102") + "-" + time.Time(toDate).Format("20060102") + ".xlsx"
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := workbook.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "dashboard.go", "exportDashboardHandler", "workbook.Write", nil, err)
		}
	}
}
