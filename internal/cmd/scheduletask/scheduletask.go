// Package scheduletask runs a script that queues deferred tasks and drives
// the event loop until the queue is drained.
package scheduletask

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/taskloop/internal/engine"
	platformcmd "github.com/louisbranch/taskloop/internal/platform/cmd"
	"github.com/louisbranch/taskloop/internal/platform/timeouts"
	"github.com/louisbranch/taskloop/internal/schedule"
)

// UsageChunk names the built-in script in error messages.
const UsageChunk = "<usage>"

// UsageScript schedules ten greetings.
const UsageScript = `for i = 1, 10 do Core.opSync("op_schedule_task", i) end`

// Config holds schedule-task command configuration.
type Config struct {
	ScriptFile string        `env:"TASKLOOP_SCRIPT_FILE"`
	Verbose    bool          `env:"TASKLOOP_VERBOSE"`
	Timeout    time.Duration `env:"TASKLOOP_TIMEOUT" envDefault:"30s"`
}

// ParseConfig loads the command configuration from the environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.EventLoop
	}
	return cfg, nil
}

// Run executes the configured script and drains the event loop.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.EventLoop
	}

	logger := log.New(errOut, "", 0)
	rt, err := engine.New(engine.Options{
		Extensions: []*engine.Extension{schedule.NewExtension(out)},
		Logger:     logger,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if path := strings.TrimSpace(cfg.ScriptFile); path != "" {
		err = rt.ExecuteFile(ctx, path)
	} else {
		err = rt.ExecuteScript(ctx, UsageChunk, UsageScript)
	}
	if err != nil {
		return err
	}
	if err := rt.RunEventLoop(ctx); err != nil {
		return fmt.Errorf("run event loop: %w", err)
	}
	if cfg.Verbose {
		logger.Printf("done in %s (%d ticks)", time.Since(start), rt.Ticks())
	}
	return nil
}
