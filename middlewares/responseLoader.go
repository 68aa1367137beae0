package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type responseReader struct {
	db *gorm.DB
}

func (r *responseReader) GetResponses(ctx context.Context, Ids []int) []*dataloader.Result[[]*models.CheckResponse] {
	var results []models.CheckResponse
	err := r.db.WithContext(ctx).Where("run_id IN ?", Ids).Order("run_item_id").Find(&results).Error
	if err != nil {
		return handleError[[]*models.CheckResponse](len(Ids), err)
	}

	return generateLoaderArrayResults(results, Ids)
}

func GetResponsesForRun(ctx context.Context, runId int) ([]*models.CheckResponse, error) {
	loaders := For(ctx)
	return loaders.responseLoader.Load(ctx, runId)()
}
