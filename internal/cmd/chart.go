package cmd

import (
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/ratethrottle/internal/chart"
	"github.com/namelens/ratethrottle/internal/demo"
)

var (
	chartWidth  int
	chartHeight int
	chartThumb  int
	chartTitle  string
)

var chartCmd = &cobra.Command{
	Use:   "chart [log-dir]",
	Short: "Render the sleep values of a run as a PNG chart",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveRunDir(cmd, args)
		if err != nil {
			return err
		}

		scale := timeScale
		manifest, err := demo.ReadManifest(dir)
		switch {
		case err == nil:
			if !cmd.Flags().Changed("time-scale") {
				scale = manifest.TimeScale
			}
		case !errors.Is(err, os.ErrNotExist):
			return err
		}

		opts := chart.Options{Width: chartWidth, Height: chartHeight, TimeScale: scale, Title: chartTitle}
		path, err := chart.WriteFile(dir, opts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)

		if chartThumb > 0 {
			thumbPath, err := writeChartThumbnail(dir, opts, chartThumb)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), thumbPath)
		}
		return nil
	},
}

func writeChartThumbnail(dir string, opts chart.Options, maxSize int) (string, error) {
	series, err := chart.LoadSeries(dir)
	if err != nil {
		return "", err
	}
	thumb := chart.Thumbnail(chart.Render(series, opts), maxSize)

	path := filepath.Join(dir, strings.TrimSuffix(chart.FileName, ".png")+"-thumb.png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create thumbnail: %w", err)
	}
	if err := png.Encode(f, thumb); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close thumbnail: %w", err)
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.Flags().IntVar(&chartWidth, "width", 1200, "image width in pixels")
	chartCmd.Flags().IntVar(&chartHeight, "height", 700, "image height in pixels")
	chartCmd.Flags().IntVar(&chartThumb, "thumb", 0, "also write a thumbnail with this maximum side")
	chartCmd.Flags().StringVar(&chartTitle, "title", "", "chart title")
}
