package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/middlewares"
	"github.com/opsfocus/checks_backend/models"
)

// issueAssignmentHandler mints a magic link for a run recipient. The
// response is the only place the plaintext link ever surfaces to a session
// caller; the table keeps the hash.
func issueAssignmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCheckAssignment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		run, err := models.GetCheckRun(c.Request.Context(), input.RunId)
		if err != nil {
			respondError(c, err)
			return
		}
		if !requireLocationAccess(c, run.LocationId) {
			return
		}

		issued, err := models.IssueAssignment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": issued})
	}
}

type assignmentRow struct {
	*models.CheckAssignment
	RecipientName string `json:"recipient_name"`
}

func listRunAssignmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		// tenant check happens here; the loaders trust scoped ids
		run, err := models.GetCheckRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !requireLocationAccess(c, run.LocationId) {
			return
		}

		assignments, err := middlewares.GetAssignmentsForRun(c.Request.Context(), run.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		rows := make([]assignmentRow, 0, len(assignments))
		for _, assignment := range assignments {
			row := assignmentRow{CheckAssignment: assignment}
			if recipient, err := middlewares.GetUser(c.Request.Context(), assignment.RecipientId); err == nil && recipient != nil {
				row.RecipientName = recipient.Name
			}
			rows = append(rows, row)
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	}
}
