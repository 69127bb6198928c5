package hookenv

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// LogSink mirrors log records into the unit log through juju-log.
type LogSink struct {
	run     Runner
	minimum logging.LogLevel
}

// NewLogSink returns a sink forwarding records at or above minimum.
func NewLogSink(run Runner, minimum logging.LogLevel) *LogSink {
	if run == nil {
		run = execTool
	}
	return &LogSink{run: run, minimum: minimum}
}

// Write implements logging.Sink. Failures go to stderr; logging them would
// recurse.
func (s *LogSink) Write(level logging.LogLevel, subsystem, message string) {
	if level < s.minimum {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line := fmt.Sprintf("%s: %s", subsystem, message)
	if _, err := s.run(ctx, "juju-log", "-l", level.String(), line); err != nil {
		fmt.Fprintf(os.Stderr, "juju-log failed: %v\n", err)
	}
}
