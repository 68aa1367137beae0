package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type runItemReader struct {
	db *gorm.DB
}

func (r *runItemReader) GetRunItems(ctx context.Context, Ids []int) []*dataloader.Result[[]*models.CheckRunItem] {
	var results []models.CheckRunItem
	err := r.db.WithContext(ctx).Where("run_id IN ?", Ids).Order("position").Find(&results).Error
	if err != nil {
		return handleError[[]*models.CheckRunItem](len(Ids), err)
	}

	return generateLoaderArrayResults(results, Ids)
}

func GetRunItemsForRun(ctx context.Context, runId int) ([]*models.CheckRunItem, error) {
	loaders := For(ctx)
	return loaders.runItemLoader.Load(ctx, runId)()
}
