package main

import (
	"context"
	"errors"

	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/sirupsen/logrus"
)

func ensureBusinessContext(ctx context.Context, businessId string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if businessId == "" {
		return ctx
	}
	if _, ok := utils.GetBusinessIdFromContext(ctx); !ok {
		ctx = utils.SetBusinessIdInContext(ctx, businessId)
	}
	return ctx
}

// failAssignmentOnDeadDelivery closes the loop when a link delivery event
// goes DEAD: the assignment is marked FAILED with the reason so the issuer
// sees it and can re-issue. Other event types need no revert; aggregates
// recover on the next recount and the action backlog is visible regardless.
func failAssignmentOnDeadDelivery(ctx context.Context, logger *logrus.Logger, msg config.PubSubMessage) {
	if msg.ReferenceType != string(models.WorkflowReferenceTypeAssignmentIssued) {
		return
	}
	if msg.ReferenceId <= 0 {
		return
	}

	ctx = ensureBusinessContext(ctx, msg.BusinessId)

	db := config.GetDB()
	err := models.MarkAssignmentSent(ctx, db, msg.ReferenceId,
		errors.New("link delivery permanently failed after max attempts"))
	if err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          "OutboxDeadRevert",
				"business_id":    msg.BusinessId,
				"reference_type": msg.ReferenceType,
				"reference_id":   msg.ReferenceId,
			}).Warn("failed to mark assignment FAILED after DEAD delivery: " + err.Error())
		}
		return
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "OutboxDeadRevert",
			"business_id":    msg.BusinessId,
			"reference_type": msg.ReferenceType,
			"reference_id":   msg.ReferenceId,
		}).Info("marked assignment FAILED after DEAD delivery event")
	}
}
