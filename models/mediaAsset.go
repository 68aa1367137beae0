package models

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/utils"
	"gorm.io/gorm"
)

// MediaAsset is a content-addressed evidence object. Responses and
// corrective actions reference assets by id; the asset never knows who
// references it, so the same photo can back a response and its action.
type MediaAsset struct {
	ID              int        `gorm:"primary_key" json:"id"`
	BusinessId      string     `gorm:"index;not null;uniqueIndex:uq_media_checksum" json:"business_id"`
	StorageKey      string     `gorm:"size:512;not null;unique" json:"storage_key"`
	FileName        string     `gorm:"size:255" json:"file_name"`
	ByteSize        int64      `gorm:"not null;default:0" json:"byte_size"`
	Checksum        string     `gorm:"size:64;not null;uniqueIndex:uq_media_checksum" json:"checksum"`
	MimeType        string     `gorm:"size:100;not null" json:"mime_type"`
	ThumbnailKey    string     `gorm:"size:512" json:"thumbnail_key"`
	RetentionPolicy string     `gorm:"size:50" json:"retention_policy"`
	ExpiresAt       *time.Time `json:"expires_at"`
	UploadedById    int        `gorm:"not null;default:0" json:"uploaded_by_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SignEvidenceUploadInput struct {
	FileName string `json:"file_name" binding:"required"`
	MimeType string `json:"mime_type" binding:"required"`
	ByteSize int64  `json:"byte_size" binding:"required"`
}

type CompleteEvidenceUploadInput struct {
	StorageKey string `json:"storage_key" binding:"required"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type" binding:"required"`
}

// EvidenceUploadTicket tells the client where to put the bytes.
type EvidenceUploadTicket struct {
	UploadURL  string            `json:"upload_url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	StorageKey string            `json:"storage_key"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

const maxEvidenceSizeBytes int64 = 5 * 1024 * 1024

const retentionPolicyStandard = "STANDARD"

var evidenceMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

func (asset MediaAsset) GetBusinessId() string {
	return asset.BusinessId
}

func evidenceRetentionDays() int {
	if raw := os.Getenv("EVIDENCE_RETENTION_DAYS"); raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			return days
		}
	}
	return 90
}

func evidenceObjectKey(businessId, ext string) string {
	return path.Join(businessId, "evidence", uuid.New().String()+ext)
}

func thumbnailKeyFor(storageKey string) string {
	return path.Join(path.Dir(storageKey), "thumbnails", path.Base(storageKey))
}

func validateEvidenceUpload(fileName, mimeType string, byteSize int64) (string, error) {
	if byteSize <= 0 {
		return "", errors.New("byte size is required")
	}
	if byteSize > maxEvidenceSizeBytes {
		return "", errors.New("file size exceeds 5MB limit")
	}
	ext, ok := evidenceMimeTypes[mimeType]
	if !ok {
		return "", errors.New("unsupported evidence type")
	}
	if fromName := strings.ToLower(filepath.Ext(fileName)); fromName != "" {
		ext = fromName
	}
	return ext, nil
}

// SignEvidenceUpload validates the declared file and hands back an upload
// ticket. GCS gets a V4 signed PUT; the local provider gets a POST target
// served by this process.
func SignEvidenceUpload(ctx context.Context, input *SignEvidenceUploadInput) (*EvidenceUploadTicket, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	ext, err := validateEvidenceUpload(input.FileName, input.MimeType, input.ByteSize)
	if err != nil {
		return nil, err
	}
	storageKey := evidenceObjectKey(businessId, ext)

	if utils.GetStorageProvider() == utils.StorageProviderLocal {
		return &EvidenceUploadTicket{
			UploadURL:  "/uploads/object?key=" + storageKey,
			Method:     "POST",
			StorageKey: storageKey,
			ExpiresAt:  time.Now().Add(15 * time.Minute),
		}, nil
	}

	signed, err := utils.SignUpload(ctx, storageKey, input.MimeType, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	return &EvidenceUploadTicket{
		UploadURL:  signed.UploadURL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		StorageKey: signed.ObjectKey,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

// CompleteEvidenceUpload registers an uploaded object as a MediaAsset. The
// checksum is computed server side from the stored bytes, and a tenant
// already holding those bytes gets its existing asset back.
func CompleteEvidenceUpload(ctx context.Context, input *CompleteEvidenceUploadInput) (*MediaAsset, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !strings.HasPrefix(input.StorageKey, businessId+"/") {
		return nil, errors.New("invalid storage key")
	}
	if _, ok := evidenceMimeTypes[input.MimeType]; !ok {
		return nil, errors.New("unsupported evidence type")
	}

	data, err := readEvidenceObject(ctx, input.StorageKey)
	if err != nil {
		return nil, errors.New("uploaded object not found")
	}
	if int64(len(data)) > maxEvidenceSizeBytes {
		return nil, errors.New("file size exceeds 5MB limit")
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	db := config.GetDB()

	var existing MediaAsset
	err = db.WithContext(ctx).
		Where("business_id = ? AND checksum = ?", businessId, checksum).
		Take(&existing).Error
	if err == nil {
		// same bytes already registered; drop the redundant object
		if existing.StorageKey != input.StorageKey {
			_ = removeEvidenceObject(ctx, input.StorageKey)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	thumbnailKey, err := writeEvidenceThumbnail(ctx, input.StorageKey, data)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	expiresAt := time.Now().AddDate(0, 0, evidenceRetentionDays())
	asset := MediaAsset{
		BusinessId:      businessId,
		StorageKey:      input.StorageKey,
		FileName:        input.FileName,
		ByteSize:        int64(len(data)),
		Checksum:        checksum,
		MimeType:        input.MimeType,
		ThumbnailKey:    thumbnailKey,
		RetentionPolicy: retentionPolicyStandard,
		ExpiresAt:       &expiresAt,
		UploadedById:    userId,
	}

	if err := db.WithContext(ctx).Create(&asset).Error; err != nil {
		if isDuplicateKeyErr(err) {
			if err := db.WithContext(ctx).
				Where("business_id = ? AND checksum = ?", businessId, checksum).
				Take(&existing).Error; err == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &asset, nil
}

// writeEvidenceThumbnail decodes the upload and, when thumbnails are
// enabled, stores a 200px-wide JPEG next to it. A body that does not decode
// as an image is rejected here, whatever mime type the client declared.
func writeEvidenceThumbnail(ctx context.Context, storageKey string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.New("uploaded object is not a valid image")
	}
	if !config.EvidenceThumbnails() {
		return "", nil
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailKeyFor(storageKey)
	if err := writeEvidenceObject(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func readEvidenceObject(ctx context.Context, storageKey string) ([]byte, error) {
	if utils.GetStorageProvider() == utils.StorageProviderLocal {
		return os.ReadFile(localEvidencePath(storageKey))
	}
	return utils.ReadObjectFromGCS(ctx, storageKey)
}

func writeEvidenceObject(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if utils.GetStorageProvider() == utils.StorageProviderLocal {
		target := localEvidencePath(storageKey)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	}
	return utils.UploadBytesToGCS(ctx, storageKey, data, contentType)
}

func removeEvidenceObject(ctx context.Context, storageKey string) error {
	if utils.GetStorageProvider() == utils.StorageProviderLocal {
		err := os.Remove(localEvidencePath(storageKey))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return utils.DeleteObjectFromGCS(ctx, storageKey)
}

func localEvidencePath(storageKey string) string {
	return filepath.Join(utils.LocalStorageRoot(), filepath.FromSlash(storageKey))
}

// StoreLocalEvidenceObject backs the local provider's POST target.
func StoreLocalEvidenceObject(ctx context.Context, businessId, storageKey string, data []byte, contentType string) error {
	if !strings.HasPrefix(storageKey, businessId+"/") {
		return errors.New("invalid storage key")
	}
	if strings.Contains(storageKey, "..") {
		return errors.New("invalid storage key")
	}
	if int64(len(data)) > maxEvidenceSizeBytes {
		return errors.New("file size exceeds 5MB limit")
	}
	return writeEvidenceObject(ctx, storageKey, data, contentType)
}

func GetMediaAsset(ctx context.Context, id int) (*MediaAsset, error) {
	return GetResource[MediaAsset](ctx, id)
}

// mediaReferenced reports whether any response or corrective action still
// points at the asset.
func mediaReferenced(ctx context.Context, db *gorm.DB, assetId int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&CheckResponse{}).
		Where("media_asset_id = ?", assetId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	err = db.WithContext(ctx).Model(&CorrectiveAction{}).
		Where("before_media_id = ? OR after_media_id = ?", assetId, assetId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PruneExpiredMediaAssets removes assets past their retention expiry that
// nothing references any more. Referenced assets are left alone until the
// referencing rows age out themselves.
func PruneExpiredMediaAssets(ctx context.Context, asOf time.Time) (int, error) {

	db := config.GetDB()

	var expired []*MediaAsset
	err := db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", asOf).
		Order("expires_at").
		Limit(500).
		Find(&expired).Error
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, asset := range expired {
		referenced, err := mediaReferenced(ctx, db, asset.ID)
		if err != nil {
			return pruned, err
		}
		if referenced {
			continue
		}
		if err := removeEvidenceObject(ctx, asset.StorageKey); err != nil {
			return pruned, err
		}
		if asset.ThumbnailKey != "" {
			if err := removeEvidenceObject(ctx, asset.ThumbnailKey); err != nil {
				return pruned, err
			}
		}
		if err := db.WithContext(ctx).Delete(asset).Error; err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
