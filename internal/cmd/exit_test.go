package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/config"
	"github.com/namelens/ratethrottle/internal/core/store"
	"github.com/namelens/ratethrottle/internal/demo"
	"github.com/namelens/ratethrottle/internal/throttle"
)

func captureExit(t *testing.T) (*bytes.Buffer, *int) {
	t.Helper()
	var out bytes.Buffer
	code := -1
	origExit, origOut := exitFunc, exitOut
	exitFunc = func(c int) { code = c }
	exitOut = &out
	t.Cleanup(func() {
		exitFunc, exitOut = origExit, origOut
	})
	return &out, &code
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"nil", nil, foundry.ExitSuccess},
		{"invalid config", fmt.Errorf("%w: %w", config.ErrInvalid, throttle.ErrUnknownStrategy), foundry.ExitConfigInvalid},
		{"throttle config", fmt.Errorf("wrap: %w", throttle.ErrInvalidConfig), foundry.ExitConfigInvalid},
		{"run not found", fmt.Errorf("show: %w", store.ErrRunNotFound), foundry.ExitFileNotFound},
		{"no runs", demo.ErrNoRuns, foundry.ExitFileNotFound},
		{"retries", fmt.Errorf("%w after 3 attempts", throttle.ErrRetriesExhausted), foundry.ExitExternalServiceUnavailable},
		{"unexpected status", fmt.Errorf("%w: 500", demo.ErrUnexpectedStatus), foundry.ExitExternalServiceUnavailable},
		{"timeout", context.DeadlineExceeded, foundry.ExitOperationTimeout},
		{"canceled", context.Canceled, foundry.ExitSignalInt},
		{"other", stderrors.New("boom"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}

func TestExitWithError(t *testing.T) {
	out, code := captureExit(t)

	ExitWithError("Command execution failed", fmt.Errorf("%w: %w", config.ErrInvalid, throttle.ErrUnknownStrategy))

	require.Equal(t, foundry.ExitConfigInvalid, *code)
	assert.Contains(t, out.String(), "FATAL: Command execution failed: invalid configuration")
	assert.Contains(t, out.String(), fmt.Sprintf("Exit Code: %d", foundry.ExitConfigInvalid))
}

func TestExitWithCodeEnvelopeWithoutLogger(t *testing.T) {
	out, code := captureExit(t)

	envelope := errors.NewErrorEnvelope("RATE_LIMITED", "quota exhausted").
		WithOriginal(stderrors.New("429 from upstream"))
	ExitWithCode(nil, foundry.ExitExternalServiceUnavailable, "Health check failed", envelope)

	require.Equal(t, foundry.ExitExternalServiceUnavailable, *code)
	assert.Contains(t, out.String(), "[RATE_LIMITED]: quota exhausted")
	assert.Contains(t, out.String(), "Underlying error: 429 from upstream")
}

func TestExitWithCodeStderrUnknownCode(t *testing.T) {
	out, code := captureExit(t)

	ExitWithCodeStderr(foundry.ExitCode(254), "odd", nil)

	require.Equal(t, 254, *code)
	assert.Contains(t, out.String(), "FATAL: odd (exit code: 254)")
}
