package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type correctiveActionReader struct {
	db *gorm.DB
}

func (r *correctiveActionReader) GetActions(ctx context.Context, Ids []int) []*dataloader.Result[[]*models.CorrectiveAction] {
	var results []models.CorrectiveAction
	err := r.db.WithContext(ctx).Where("response_id IN ?", Ids).Order("id").Find(&results).Error
	if err != nil {
		return handleError[[]*models.CorrectiveAction](len(Ids), err)
	}

	return generateLoaderArrayResults(results, Ids)
}

func GetActionsForResponse(ctx context.Context, responseId int) ([]*models.CorrectiveAction, error) {
	loaders := For(ctx)
	return loaders.correctiveActionLoader.Load(ctx, responseId)()
}
