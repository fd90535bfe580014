// Package main runs the schedule-task demo: a Lua script queues ten greetings
// and the event loop prints them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	scheduletaskcmd "github.com/louisbranch/taskloop/internal/cmd/scheduletask"
	platformcmd "github.com/louisbranch/taskloop/internal/platform/cmd"
	"github.com/louisbranch/taskloop/internal/platform/config"
)

func main() {
	cfg, err := scheduletaskcmd.ParseConfig()
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceScheduleTask, func(ctx context.Context) error {
		return scheduletaskcmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	})
	if err != nil {
		config.Exitf("Error: %v", err)
	}
}
