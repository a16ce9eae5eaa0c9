package main

import (
	"fmt"

	"github.com/bytevault/uploads/handlers"
	"github.com/bytevault/uploads/health"
	"github.com/bytevault/uploads/queues"
	"github.com/bytevault/uploads/services"
	"github.com/bytevault/uploads/store"
)

type Stores struct {
	registry *store.RedisSessionRegistry
	chunks   *store.S3ChunkStore
	files    *store.DynamoDbFileStore
}

type Services struct {
	Sessions   services.SessionService
	Completion services.CompletionService
	Files      services.FileService
	Cleanup    *services.CleanupCoordinator

	Stores *Stores

	HTTPHandler *handlers.HTTPHandler
}

func BuildServices(app *App) *Services {
	uploadCfg := app.Config.UploadConfig

	registry := store.NewRedisSessionRegistry(app.Redis, uploadCfg.SessionTTL)
	chunkStore := store.NewS3ChunkStore(app.S3, app.Config.ServiceConfig.BucketName, app.Logger)
	fileStore := store.NewDynamoDbFileStore(app.DynamoDB, app.Config.ServiceConfig.FilesTableName)

	queueUrl := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s",
		app.Config.AWSConfig.Region, app.Config.AWSConfig.AccountID,
		app.Config.ServiceConfig.UploadsNotificationsQueueName)
	publisher := queues.NewSqsPublisher(app.Sqs, queueUrl, app.Logger)

	reconstructor := services.NewReconstructor(chunkStore, uploadCfg, app.Logger)
	cleanup := services.NewCleanupCoordinator(registry, chunkStore, app.Logger)

	sessSvc := services.NewSessionServiceImpl(registry, chunkStore, uploadCfg, app.Logger)
	completionSvc := services.NewCompletionServiceImpl(
		registry, chunkStore, fileStore, reconstructor, cleanup, publisher, uploadCfg, app.Logger)
	fileSvc := services.NewFileServiceImpl(
		sessSvc, completionSvc, fileStore, chunkStore, uploadCfg.PresignTTL, app.Logger)

	checks := []health.ReadinessCheck{registry, fileStore}
	handler := handlers.NewHTTPHandler(sessSvc, completionSvc, fileSvc, checks, app.Logger)

	return &Services{
		Sessions:   sessSvc,
		Completion: completionSvc,
		Files:      fileSvc,
		Cleanup:    cleanup,

		Stores: &Stores{
			registry: registry,
			chunks:   chunkStore,
			files:    fileStore,
		},

		HTTPHandler: handler,
	}
}
