package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
)

// resolveLinkHandler cashes in a magic token: counts the access, flips a
// fresh assignment to ACCESSED and returns the run view. Completed
// single-use links conflict; completed reusable links come back read only.
func resolveLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved, err := models.ResolveAssignmentToken(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resolved})
	}
}

// linkContext authenticates the path token without burning an access count
// and seeds a context that speaks for the link's recipient. The assignment
// supplies the tenant; the recipient row supplies the identity.
func linkContext(c *gin.Context) (context.Context, *models.CheckAssignment, bool) {
	assignment, err := models.AuthenticateAssignmentToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}

	ctx := utils.SetBusinessIdInContext(c.Request.Context(), assignment.BusinessId)
	ctx = utils.SetAssignmentIdInContext(ctx, assignment.ID)

	recipient, err := models.GetUser(ctx, assignment.RecipientId)
	if err != nil {
		respondError(c, models.ErrTokenNotFound)
		return nil, nil, false
	}
	ctx = utils.SetUserIdInContext(ctx, recipient.ID)
	ctx = utils.SetUserNameInContext(ctx, recipient.Name)
	return ctx, assignment, true
}

type linkResponseRequest struct {
	RunItemId         int                   `json:"run_item_id" binding:"required"`
	Status            models.ResponseStatus `json:"status" binding:"required"`
	SkipReason        string                `json:"skip_reason"`
	MediaAssetId      int                   `json:"media_asset_id"`
	AfterMediaAssetId int                   `json:"after_media_asset_id"`
	OverrideNote      string                `json:"override_note"`
}

func linkSubmitResponseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, assignment, ok := linkContext(c)
		if !ok {
			return
		}

		var req linkResponseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		// The link only ever speaks for its own run.
		input := models.NewCheckResponse{
			RunId:             assignment.RunId,
			RunItemId:         req.RunItemId,
			Status:            req.Status,
			SkipReason:        req.SkipReason,
			MediaAssetId:      req.MediaAssetId,
			AfterMediaAssetId: req.AfterMediaAssetId,
			OverrideNote:      req.OverrideNote,
		}

		result, err := models.SubmitResponse(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}
