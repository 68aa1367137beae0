package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/models"
)

// submitResponseHandler is the session-path twin of the link submission:
// same contract, the session supplies the identity instead of a token.
func submitResponseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCheckResponse
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

		result, err := models.SubmitResponse(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}
