// Presigned URL Lambda entry point
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/handlers"
	s3service "blood-alert-engine/internal/services/s3"
	"blood-alert-engine/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	_ = utils.InitLogger(cfg.LogLevel)
	defer utils.Sync()

	storage, err := s3service.NewService(context.Background(), cfg)
	if err != nil {
		panic("Failed to create S3 service: " + err.Error())
	}

	lambda.Start(handlers.NewPresignedURLHandler(storage).Handle)
}
