// Command sweep_lambda runs the maintenance sweeps on an EventBridge schedule
// and relays the events they produce.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"wager/internal/app"
	"wager/internal/config"
	"wager/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel)

	// Built once per container and reused across invocations.
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("unable to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	h := &handler{sweeps: a.Sweeper, relay: a.Relay, logger: logger}
	lambda.Start(h.Handle)
}
