package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

type sweeper interface {
	Run(ctx context.Context, name string) (int, error)
	RunAll(ctx context.Context) (map[string]int, error)
}

type relayer interface {
	Run(ctx context.Context) error
}

// detail is the EventBridge rule input. An empty sweep runs them all.
type detail struct {
	Sweep string `json:"sweep"`
}

type result struct {
	Processed map[string]int `json:"processed"`
}

type handler struct {
	sweeps sweeper
	relay  relayer
	logger *slog.Logger
}

func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) (result, error) {
	var input detail
	if len(event.Detail) > 0 {
		if err := json.Unmarshal(event.Detail, &input); err != nil {
			return result{}, fmt.Errorf("decode event detail: %w", err)
		}
	}
	h.logger.Info("sweep invocation", "event_id", event.ID, "sweep", input.Sweep)

	var (
		processed map[string]int
		sweepErr  error
	)
	if input.Sweep == "" || input.Sweep == "all" {
		processed, sweepErr = h.sweeps.RunAll(ctx)
	} else {
		count, err := h.sweeps.Run(ctx, input.Sweep)
		processed, sweepErr = map[string]int{input.Sweep: count}, err
	}

	// Events from a partially failed sweep are committed and still go out.
	if err := h.relay.Run(ctx); err != nil {
		h.logger.Error("outbox relay failed", "error", err)
		if sweepErr == nil {
			sweepErr = err
		}
	}
	return result{Processed: processed}, sweepErr
}
