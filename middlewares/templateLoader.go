package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type templateReader struct {
	db *gorm.DB
}

func (r *templateReader) getTemplates(ctx context.Context, ids []int) []*dataloader.Result[*models.CheckTemplate] {
	var results []models.CheckTemplate
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.CheckTemplate](len(ids), err)
	}

	return generateLoaderResults(results, ids)
}

func GetCheckTemplate(ctx context.Context, id int) (*models.CheckTemplate, error) {
	loaders := For(ctx)
	return loaders.templateLoader.Load(ctx, id)()
}
