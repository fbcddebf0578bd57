package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/config"
	"github.com/namelens/ratethrottle/internal/core/store"
	"github.com/namelens/ratethrottle/internal/demo"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// Replaced in tests.
var (
	exitFunc           = os.Exit
	exitOut  io.Writer = os.Stderr
)

// ExitCodeFor picks the foundry exit code that best describes err.
func ExitCodeFor(err error) foundry.ExitCode {
	switch {
	case err == nil:
		return foundry.ExitSuccess
	case stderrors.Is(err, config.ErrInvalid),
		stderrors.Is(err, throttle.ErrInvalidConfig),
		stderrors.Is(err, throttle.ErrUnknownStrategy):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, store.ErrRunNotFound),
		stderrors.Is(err, demo.ErrNoRuns):
		return foundry.ExitFileNotFound
	case stderrors.Is(err, throttle.ErrRetriesExhausted),
		stderrors.Is(err, demo.ErrUnexpectedStatus):
		return foundry.ExitExternalServiceUnavailable
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return foundry.ExitConnectionRefused
	case stderrors.Is(err, context.DeadlineExceeded):
		return foundry.ExitOperationTimeout
	case stderrors.Is(err, context.Canceled):
		return foundry.ExitSignalInt
	}
	return foundry.ExitFailure
}

// ExitWithError exits with the code ExitCodeFor picks for err.
func ExitWithError(msg string, err error) {
	ExitWithCodeStderr(ExitCodeFor(err), msg, err)
}

// ExitWithCode logs err with the exit code metadata and exits. A nil logger
// falls back to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fatal(exitCode, msg, err)
		return
	}
	if logger == nil {
		writeFailure(info, msg, err)
		exitFunc(info.Code)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
			zap.String("trace_id", envelope.TraceID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		err = unwrapEnvelope(envelope, err)
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	exitFunc(info.Code)
}

// ExitWithCodeStderr is for failures before a logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fatal(exitCode, msg, err)
		return
	}
	writeFailure(info, msg, err)
	exitFunc(info.Code)
}

func writeFailure(info foundry.ExitCodeInfo, msg string, err error) {
	switch envelope, isEnvelope := err.(*errors.ErrorEnvelope); {
	case err == nil:
		_, _ = fmt.Fprintf(exitOut, "FATAL: %s\n", msg)
	case isEnvelope:
		_, _ = fmt.Fprintf(exitOut, "FATAL: %s [%s]: %v (correlation: %s, trace: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID, envelope.TraceID)
		if original := unwrapEnvelope(envelope, nil); original != nil {
			_, _ = fmt.Fprintf(exitOut, "Underlying error: %v\n", original)
		}
	default:
		_, _ = fmt.Fprintf(exitOut, "FATAL: %s: %v\n", msg, err)
	}
	_, _ = fmt.Fprintf(exitOut, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
}

// fatal handles codes missing from the foundry catalog.
func fatal(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(exitOut, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
	} else {
		_, _ = fmt.Fprintf(exitOut, "FATAL: %s (exit code: %d)\n", msg, exitCode)
	}
	exitFunc(int(exitCode))
}

// unwrapEnvelope returns the error recorded by WithOriginal, which stores
// it as a string.
func unwrapEnvelope(envelope *errors.ErrorEnvelope, fallback error) error {
	switch original := envelope.Original.(type) {
	case error:
		return original
	case string:
		if original != "" {
			return stderrors.New(original)
		}
	}
	return fallback
}
