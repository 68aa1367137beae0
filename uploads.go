package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"github.com/opsfocus/checks_backend/utils"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		var input models.SignEvidenceUploadInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ticket, err := models.SignEvidenceUpload(c.Request.Context(), &input)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			respondError(c, err)
			return
		}

		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"tenant_id":   businessId,
			"mime_type":   input.MimeType,
			"size":        input.ByteSize,
			"storage_key": ticket.StorageKey,
		}).Info("[upload.sign]")

		c.JSON(http.StatusOK, gin.H{"data": ticket})
	}
}

func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		var input models.CompleteEvidenceUploadInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		asset, err := models.CompleteEvidenceUpload(c.Request.Context(), &input)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"asset_id":    asset.ID,
			"storage_key": asset.StorageKey,
			"status":      "completed",
		}).Info("[upload.complete]")

		c.JSON(http.StatusOK, gin.H{"data": asset})
	}
}

// linkSignUploadHandler is the token-path twin of signUploadHandler; the
// assignment token stands in for the session.
func linkSignUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, ok := linkContext(c)
		if !ok {
			return
		}

		var input models.SignEvidenceUploadInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ticket, err := models.SignEvidenceUpload(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}

		// link clients carry no session, so the local target needs the token
		if ticket.Method == http.MethodPost && strings.HasPrefix(ticket.UploadURL, "/uploads/object?") {
			ticket.UploadURL += "&t=" + c.Param("token")
		}

		c.JSON(http.StatusOK, gin.H{"data": ticket})
	}
}

func linkCompleteUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, ok := linkContext(c)
		if !ok {
			return
		}

		var input models.CompleteEvidenceUploadInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		asset, err := models.CompleteEvidenceUpload(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": asset})
	}
}

// getUploadObjectHandler streams a stored evidence object back to a session
// caller. The asset lookup is tenant scoped, so a caller can only ever reach
// its own objects whatever key the row points at.
func getUploadObjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parsePositiveInt(c.Query("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a numeric id is required"})
			return
		}
		asset, err := models.GetMediaAsset(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}

		objectKey := asset.StorageKey
		contentType := asset.MimeType
		thumb, err := optionalQueryBool(c, "thumb")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if thumb != nil && *thumb && asset.ThumbnailKey != "" {
			objectKey = asset.ThumbnailKey
			contentType = "image/jpeg"
		}

		if utils.GetStorageProvider() == utils.StorageProviderLocal {
			file, err := os.Open(filepath.Join(utils.LocalStorageRoot(), filepath.FromSlash(objectKey)))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
				return
			}
			defer file.Close()
			if info, err := file.Stat(); err == nil && info.Size() > 0 {
				c.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
			}
			c.Writer.Header().Set("Content-Type", contentType)
			c.Status(http.StatusOK)
			_, _ = io.Copy(c.Writer, file)
			return
		}

		data, err := utils.ReadObjectFromGCS(c.Request.Context(), objectKey)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}

// putUploadObjectHandler is the local provider's upload target. GCS
// deployments never route bytes through this process; the signed URL points
// at the bucket instead.
func putUploadObjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		if utils.GetStorageProvider() != utils.StorageProviderLocal {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storage provider not supported"})
			return
		}

		objectKey := strings.TrimSpace(c.Query("key"))
		if objectKey == "" || strings.Contains(objectKey, "..") || strings.HasPrefix(objectKey, "/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		if businessId == "" {
			// no session; a link token can authorize its own tenant's keys
			token := strings.TrimSpace(c.Query("t"))
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			assignment, err := models.AuthenticateAssignmentToken(ctx, token)
			if err != nil {
				respondError(c, err)
				return
			}
			businessId = assignment.BusinessId
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}
		if !strings.HasPrefix(objectKey, businessId+"/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		contentType := c.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := models.StoreLocalEvidenceObject(ctx, businessId, objectKey, data, contentType); err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			message := "failed to store object"
			if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
				message = fmt.Sprintf("failed to store object: %v", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		logger.WithFields(logrus.Fields{
			"tenant_id":   businessId,
			"storage_key": objectKey,
			"size":        len(data),
		}).Info("[upload.store]")

		c.JSON(http.StatusOK, gin.H{"data": gin.H{"storage_key": objectKey}})
	}
}

func logUploadError(logger *logrus.Logger, err error, provider string, requestID string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"request_id": requestID,
	}).Error("[upload.error]")
}

func requestIDFromHeaders(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Request-Id")); id != "" {
		return id
	}
	return fmt.Sprintf("upload-%d", time.Now().UnixNano())
}
