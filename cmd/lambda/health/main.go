// Health Check Lambda entry point
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/handlers"
	"blood-alert-engine/internal/services/database"
	"blood-alert-engine/internal/utils"
)

func main() {
	_ = utils.InitLogger("info")
	defer utils.Sync()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// The check still answers when the database is unreachable at cold start.
	var db handlers.HealthChecker
	if conn, err := database.New(context.Background(), cfg); err != nil {
		utils.GetLogger().Warn("Database unavailable", utils.Error(err))
	} else {
		defer conn.Close()
		db = conn
	}

	handler := handlers.NewHealthHandler(db, cfg.Stage, "")
	lambda.Start(handler.Handle)
}
