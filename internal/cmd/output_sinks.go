package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/ratethrottle/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openCommandSink opens --out, falling back to the command's stdout.
func openCommandSink(cmd *cobra.Command) (*outputSink, error) {
	path, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" || strings.TrimSpace(path) == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}
	return openSink(path)
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// writeRendered writes rendered to the command's sink with a trailing
// newline.
func writeRendered(cmd *cobra.Command, rendered string) error {
	sink, err := openCommandSink(cmd)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n")); err != nil {
		_ = sink.close()
		return err
	}
	return sink.close()
}
