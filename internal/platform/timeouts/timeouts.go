// Package timeouts defines shared durations used by taskloop commands.
package timeouts

import "time"

// EventLoop caps how long a command lets the event loop spin before giving up.
const EventLoop = 30 * time.Second

// TelemetryShutdown limits how long pending spans may take to flush on exit.
const TelemetryShutdown = 5 * time.Second
