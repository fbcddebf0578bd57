package chart

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeries(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+DataSuffix), []byte(body), 0o644))
}

func TestLoadSeries(t *testing.T) {
	dir := t.TempDir()
	writeSeries(t, dir, "2:b", "0\n1.6\n3.2\n")
	writeSeries(t, dir, "1:a", "0.8\n\n0.4\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1:a.json"), []byte("{}"), 0o644))

	series, err := LoadSeries(dir)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "1:a", series[0].Name)
	assert.Equal(t, []float64{0.8, 0.4}, series[0].Values)
	assert.Equal(t, []float64{0, 1.6, 3.2}, series[1].Values)
}

func TestLoadSeriesErrors(t *testing.T) {
	_, err := LoadSeries(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSeries)

	dir := t.TempDir()
	writeSeries(t, dir, "x", "1.0\nnot-a-number\n")
	_, err = LoadSeries(dir)
	assert.ErrorContains(t, err, ":2:")
}

func TestHourLabels(t *testing.T) {
	// 120 samples at scale 60 cover two simulated hours.
	labels := HourLabels(120, 60)
	assert.Equal(t, []Label{
		{Index: 0, Text: "0"},
		{Index: 60, Text: "1"},
		{Index: 119, Text: "2.00"},
	}, labels)

	assert.Nil(t, HourLabels(0, 60))
	assert.Equal(t, []Label{{Index: 0, Text: "0"}}, HourLabels(1, 1))
	assert.InDelta(t, 0.5, Hours(30, 60), 1e-9)
}

func TestWriteFileProducesPNG(t *testing.T) {
	dir := t.TempDir()
	writeSeries(t, dir, "1:a", "1.6\n3.2\n6.4\n3.0\n1.0\n")
	writeSeries(t, dir, "1:b", "1.6\n1.6\n")

	path, err := WriteFile(dir, Options{Width: 400, Height: 300, TimeScale: 3600})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestThumbnail(t *testing.T) {
	img := Render([]Series{{Name: "a", Values: []float64{1, 2}}}, Options{Width: 800, Height: 400})
	thumb := Thumbnail(img, 200)
	assert.Equal(t, 200, thumb.Bounds().Dx())
	assert.Equal(t, 100, thumb.Bounds().Dy())

	assert.Equal(t, img, Thumbnail(img, 0))
}

func TestLine(t *testing.T) {
	img := Render(nil, Options{Width: 100, Height: 100})
	line(img, 10, 10, 20, 15, foreground)
	assert.Equal(t, foreground, img.RGBAAt(10, 10))
	assert.Equal(t, foreground, img.RGBAAt(20, 15))
}
