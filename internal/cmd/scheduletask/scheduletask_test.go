package scheduletask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/taskloop/internal/engine"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("TASKLOOP_SCRIPT_FILE", "")
	t.Setenv("TASKLOOP_VERBOSE", "false")

	cfg, err := ParseConfig()
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ScriptFile != "" {
		t.Fatalf("expected no script file, got %q", cfg.ScriptFile)
	}
	if cfg.Verbose {
		t.Fatal("expected verbose to default to false")
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.Timeout)
	}
}

func TestParseConfigFromEnv(t *testing.T) {
	t.Setenv("TASKLOOP_SCRIPT_FILE", "jobs.lua")
	t.Setenv("TASKLOOP_VERBOSE", "true")
	t.Setenv("TASKLOOP_TIMEOUT", "2s")

	cfg, err := ParseConfig()
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ScriptFile != "jobs.lua" || !cfg.Verbose || cfg.Timeout != 2*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestRunUsageScript(t *testing.T) {
	var out, errOut bytes.Buffer

	if err := Run(context.Background(), Config{}, &out, &errOut); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 10 {
		t.Fatalf("lines = %d, want 10: %q", len(lines), out.String())
	}
	for i, line := range lines {
		want := fmt.Sprintf("Hello, world! x%d", i+1)
		if line != want {
			t.Fatalf("line %d = %q, want %q", i+1, line, want)
		}
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestRunVerboseLogsToErrOut(t *testing.T) {
	var out, errOut bytes.Buffer

	if err := Run(context.Background(), Config{Verbose: true}, &out, &errOut); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(errOut.String(), "extension registered: schedule") {
		t.Fatalf("stderr = %q, want registration log", errOut.String())
	}
	if !strings.Contains(errOut.String(), "done in") {
		t.Fatalf("stderr = %q, want completion log", errOut.String())
	}
}

func TestRunScriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.lua")
	script := `
Core.opSync("op_schedule_task", 7)
Core.opSync("op_schedule_callback", function()
  Core.opSync("op_schedule_task", 8)
end)
`
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}

	var out bytes.Buffer
	if err := Run(context.Background(), Config{ScriptFile: path}, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "Hello, world! x7\nHello, world! x8\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunMissingScriptFile(t *testing.T) {
	err := Run(context.Background(), Config{ScriptFile: filepath.Join(t.TempDir(), "missing.lua")}, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "missing.lua") {
		t.Fatalf("err = %q, want path", err.Error())
	}
}

func TestRunSurfacesCallbackFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.lua")
	if err := os.WriteFile(path, []byte(`Core.opSync("op_schedule_callback", function() error("boom") end)`), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}

	err := Run(context.Background(), Config{ScriptFile: path}, nil, nil)
	if !engine.IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if !strings.HasPrefix(err.Error(), "run event loop:") {
		t.Fatalf("err = %q, want event loop prefix", err.Error())
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, Config{}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
}

func TestRunTimeoutStopsSelfReschedulingScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forever.lua")
	script := `
local function again()
  Core.opSync("op_schedule_callback", again)
end
Core.opSync("op_schedule_callback", again)
`
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}

	err := Run(context.Background(), Config{ScriptFile: path, Timeout: 50 * time.Millisecond}, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want %v", err, context.DeadlineExceeded)
	}
}
