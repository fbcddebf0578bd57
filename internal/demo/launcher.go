package demo

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ProcessLauncher re-executes a binary Count times and waits for all of
// them. Each child runs its own Runner, so throttle state is never shared
// across processes.
type ProcessLauncher struct {
	// Executable defaults to the running binary.
	Executable string
	Args       []string
	// Env is appended to the parent environment.
	Env    []string
	Count  int
	Stdout io.Writer
	Stderr io.Writer
	// GracePeriod is how long a child may take to exit after an interrupt.
	GracePeriod time.Duration
}

// Launch starts every child and blocks until all have exited. Cancelling
// ctx interrupts the children. The returned error joins every child
// failure.
func (l *ProcessLauncher) Launch(ctx context.Context) error {
	if l.Count <= 0 {
		return fmt.Errorf("process count must be positive, got %d", l.Count)
	}
	exe := l.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
	}
	grace := l.GracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for i := 0; i < l.Count; i++ {
		p.Go(func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, exe, l.Args...)
			cmd.Env = append(os.Environ(), l.Env...)
			cmd.Stdout = l.Stdout
			cmd.Stderr = l.Stderr
			cmd.Cancel = func() error {
				return cmd.Process.Signal(os.Interrupt)
			}
			cmd.WaitDelay = grace

			if err := cmd.Run(); err != nil {
				return fmt.Errorf("process %d: %w", i, err)
			}
			return nil
		})
	}
	return p.Wait()
}
