// Donor CSV import Lambda entry point, triggered by S3 uploads.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"blood-alert-engine/internal/app"
	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/handlers"
	"blood-alert-engine/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	_ = utils.InitLogger(cfg.LogLevel)
	defer utils.Sync()

	a, err := app.New(context.Background(), cfg, utils.GetLogger())
	if err != nil {
		panic("Failed to initialize services: " + err.Error())
	}
	defer a.Close()

	lambda.Start(handlers.NewDonorImportHandler(a.Storage, a.Donors).Handle)
}
