package process

import (
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid        int
	ppid       int
	executable string
}

func (f fakeProcess) Pid() int           { return f.pid }
func (f fakeProcess) PPid() int          { return f.ppid }
func (f fakeProcess) Executable() string { return f.executable }

func TestOthersRunning(t *testing.T) {
	t.Parallel()

	processList := []ps.Process{
		fakeProcess{pid: 100, executable: "timer-hub"},
		fakeProcess{pid: 200, executable: "timer-hub"},
		fakeProcess{pid: 300, executable: "sshd"},
	}

	// The calling process itself is not a duplicate.
	require.Equal(t, []int{200}, othersRunning(processList, "timer-hub", 100))

	// Both instances count when neither is us.
	require.Equal(t, []int{100, 200}, othersRunning(processList, "timer-hub", 999))

	// No match at all.
	require.Empty(t, othersRunning(processList, "timer-daemon", 999))
}
