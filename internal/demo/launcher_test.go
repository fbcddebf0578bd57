package demo

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHelperProcess is re-executed by the launcher tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("DEMO_HELPER_PROCESS") != "1" {
		t.Skip("helper process only")
	}
	code, _ := strconv.Atoi(os.Getenv("DEMO_HELPER_EXIT"))
	os.Exit(code)
}

func helperLauncher(count int, exitCode int) *ProcessLauncher {
	return &ProcessLauncher{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$"},
		Env: []string{
			"DEMO_HELPER_PROCESS=1",
			"DEMO_HELPER_EXIT=" + strconv.Itoa(exitCode),
		},
		Count: count,
	}
}

func TestProcessLauncherWaitsForAll(t *testing.T) {
	assert.NoError(t, helperLauncher(3, 0).Launch(context.Background()))
}

func TestProcessLauncherReportsFailures(t *testing.T) {
	err := helperLauncher(2, 3).Launch(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestProcessLauncherRejectsZeroCount(t *testing.T) {
	assert.Error(t, helperLauncher(0, 0).Launch(context.Background()))
}
