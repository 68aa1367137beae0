package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type mediaAssetReader struct {
	db *gorm.DB
}

func (r *mediaAssetReader) getMediaAssets(ctx context.Context, ids []int) []*dataloader.Result[*models.MediaAsset] {
	var results []models.MediaAsset
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.MediaAsset](len(ids), err)
	}

	return generateLoaderResults(results, ids)
}

func GetMediaAsset(ctx context.Context, id int) (*models.MediaAsset, error) {
	loaders := For(ctx)
	return loaders.mediaAssetLoader.Load(ctx, id)()
}
