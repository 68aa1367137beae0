package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type assignmentReader struct {
	db *gorm.DB
}

func (r *assignmentReader) GetAssignments(ctx context.Context, Ids []int) []*dataloader.Result[[]*models.CheckAssignment] {
	var results []models.CheckAssignment
	err := r.db.WithContext(ctx).Where("run_id IN ?", Ids).Order("id").Find(&results).Error
	if err != nil {
		return handleError[[]*models.CheckAssignment](len(Ids), err)
	}

	return generateLoaderArrayResults(results, Ids)
}

func GetAssignmentsForRun(ctx context.Context, runId int) ([]*models.CheckAssignment, error) {
	loaders := For(ctx)
	return loaders.assignmentLoader.Load(ctx, runId)()
}
