package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/opsfocus/checks_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	businessMutexMap = make(map[string]*sync.Mutex)
	globalMutex      = &sync.Mutex{}
)

// RunChecksWorkflow subscribes to the workflow topic and drives every
// event through ProcessMessage. Per-business mutexes keep one instance
// from interleaving events of the same tenant; the aggregation lock does
// the same across instances.
func RunChecksWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Specify the number of concurrent processes
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	// Create a callback function to handle messages.
	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "checksWorkflow.go", "RunChecksWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			return
		}

		// Get or create the mutex for the current BusinessId
		globalMutex.Lock()
		mutex, exists := businessMutexMap[m.BusinessId]
		if !exists {
			mutex = &sync.Mutex{}
			businessMutexMap[m.BusinessId] = mutex
		}
		globalMutex.Unlock()

		// Lock the specific business mutex
		mutex.Lock()
		defer mutex.Unlock()

		ctx = utils.SetBusinessIdInContext(ctx, m.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)

		markOutboxProcessing(ctx, m.ID)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			dead := markOutboxProcessFailure(ctx, logger, m, err)
			logger.WithFields(logrus.Fields{
				"field":          "ChecksWorkflow",
				"business_id":    m.BusinessId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			if dead {
				failAssignmentOnDeadDelivery(ctx, logger, m)
				// terminal; redelivery would loop forever
				msg.Ack()
				return
			}
			msg.Nack()
			return
		}
		markOutboxProcessSuccess(ctx, logger, m)
		msg.Ack()
	}

	// Receive messages.
	go func() {
		err := sub.Receive(ctx, callback)

		if err != nil {
			config.LogError(logger, "checksWorkflow.go", "RunChecksWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

// ProcessMessage runs one workflow event in a single transaction behind the
// per-business aggregation lock and a DB idempotency key. Returning an
// error rolls everything back; the caller decides between retry and DEAD.
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict per-business ordering across instances.
		if err := workflow.AcquireBusinessAggregationLock(tx.WithContext(ctx), m.BusinessId); err != nil {
			return err
		}
		defer workflow.ReleaseBusinessAggregationLock(tx.WithContext(ctx), m.BusinessId)

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), m.BusinessId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessWorkflow(ctx, tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), m.BusinessId, handlerName, messageId, err)
			return err
		}
		if err := workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), m.BusinessId, handlerName, messageId); err != nil {
			return err
		}
		return nil
	})
}

func ProcessWorkflow(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.ReferenceType {
	case string(models.WorkflowReferenceTypeResponseRecorded):
		return workflow.ProcessResponseRecordedWorkflow(ctx, tx, logger, msg)
	case string(models.WorkflowReferenceTypeRunCompleted):
		return workflow.ProcessRunCompletedWorkflow(ctx, tx, logger, msg)
	case string(models.WorkflowReferenceTypeAssignmentIssued):
		return workflow.ProcessAssignmentIssuedWorkflow(ctx, tx, logger, msg)
	case string(models.WorkflowReferenceTypeCorrectiveActionOpened):
		return workflow.ProcessCorrectiveActionOpenedWorkflow(ctx, tx, logger, msg)
	}
	return nil
}
