package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/satellite-timers/internal/logger"
)

// EnsureSingleInstance returns an error when another process with this
// binary's executable name is already running. Satellites reconnect
// aggressively, so two hubs bound to the same database would race each other.
func EnsureSingleInstance(ctx context.Context) error {
	executablePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	name := filepath.Base(executablePath)

	processList, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	others := othersRunning(processList, name, os.Getpid())
	if len(others) == 0 {
		logger.Debugf(ctx, "No other %s instance is running", name)

		return nil
	}

	return fmt.Errorf("another %s instance is already running (pid %d)", name, others[0])
}

// othersRunning returns the pids of processes matching the executable name,
// excluding the calling process itself.
func othersRunning(processList []ps.Process, name string, selfPID int) []int {
	var pids []int

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if process.Executable() != name {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids
}
