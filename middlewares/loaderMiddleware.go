package middlewares

import (
	"context"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/opsfocus/checks_backend/config"
	"github.com/opsfocus/checks_backend/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders wrap your data loaders to inject via middleware
type Loaders struct {
	locationLoader   *dataloader.Loader[int, *models.Location]
	userLoader       *dataloader.Loader[int, *models.User]
	templateLoader   *dataloader.Loader[int, *models.CheckTemplate]
	mediaAssetLoader *dataloader.Loader[int, *models.MediaAsset]

	runItemLoader          *dataloader.Loader[int, []*models.CheckRunItem]
	responseLoader         *dataloader.Loader[int, []*models.CheckResponse]
	assignmentLoader       *dataloader.Loader[int, []*models.CheckAssignment]
	correctiveActionLoader *dataloader.Loader[int, []*models.CorrectiveAction]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	locationReader := &locationReader{db: conn}
	userReader := &userReader{db: conn}
	templateReader := &templateReader{db: conn}
	mediaAssetReader := &mediaAssetReader{db: conn}
	runItemReader := &runItemReader{db: conn}
	responseReader := &responseReader{db: conn}
	assignmentReader := &assignmentReader{db: conn}
	correctiveActionReader := &correctiveActionReader{db: conn}

	return &Loaders{
		locationLoader:   dataloader.NewBatchedLoader(locationReader.getLocations, dataloader.WithWait[int, *models.Location](time.Millisecond)),
		userLoader:       dataloader.NewBatchedLoader(userReader.getUsers, dataloader.WithWait[int, *models.User](time.Millisecond)),
		templateLoader:   dataloader.NewBatchedLoader(templateReader.getTemplates, dataloader.WithWait[int, *models.CheckTemplate](time.Millisecond)),
		mediaAssetLoader: dataloader.NewBatchedLoader(mediaAssetReader.getMediaAssets, dataloader.WithWait[int, *models.MediaAsset](time.Millisecond)),

		runItemLoader:          dataloader.NewBatchedLoader(runItemReader.GetRunItems, dataloader.WithWait[int, []*models.CheckRunItem](time.Millisecond)),
		responseLoader:         dataloader.NewBatchedLoader(responseReader.GetResponses, dataloader.WithWait[int, []*models.CheckResponse](time.Millisecond)),
		assignmentLoader:       dataloader.NewBatchedLoader(assignmentReader.GetAssignments, dataloader.WithWait[int, []*models.CheckAssignment](time.Millisecond)),
		correctiveActionLoader: dataloader.NewBatchedLoader(correctiveActionReader.GetActions, dataloader.WithWait[int, []*models.CorrectiveAction](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	// generate resultMap from results
	resultMap := make(map[int]T)
	var resultZero T
	resultMap[0] = resultZero.GetDefault(0).(T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// T must be struct
// each id has many related results
func generateLoaderArrayResults[T models.RelatedData](results []T, referenceIds []int) (loaderResults []*dataloader.Result[[]*T]) {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		// creating a new variable every turn, to avoid pointing to the adddress of result
		copy := result
		resultMap[result.GetReferenceId()] = append(resultMap[result.GetReferenceId()], &copy)
	}
	for _, id := range referenceIds {
		resultArray := resultMap[id]
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultArray})
	}
	return loaderResults
}
