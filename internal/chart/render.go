package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FileName is the chart written into a run directory.
const FileName = "chart.png"

// Options controls rendering.
type Options struct {
	Width     int
	Height    int
	TimeScale float64
	Title     string
}

func (o Options) withDefaults(series []Series) Options {
	if o.Width <= 0 {
		o.Width = 1200
	}
	if o.Height <= 0 {
		o.Height = 700
	}
	if o.TimeScale <= 0 {
		o.TimeScale = 1
	}
	if o.Title == "" {
		o.Title = fmt.Sprintf("API Client Rate Limit Throttling Sleep Values Over Time for %d Workers", len(series))
	}
	return o
}

const (
	marginLeft   = 70
	marginRight  = 30
	marginTop    = 50
	marginBottom = 60
	legendRow    = 15
)

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	foreground = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	gridColor  = color.RGBA{R: 225, G: 225, B: 225, A: 255}
	palette    = []color.RGBA{
		{R: 31, G: 119, B: 180, A: 255},
		{R: 255, G: 127, B: 14, A: 255},
		{R: 44, G: 160, B: 44, A: 255},
		{R: 214, G: 39, B: 40, A: 255},
		{R: 148, G: 103, B: 189, A: 255},
		{R: 140, G: 86, B: 75, A: 255},
		{R: 227, G: 119, B: 194, A: 255},
		{R: 127, G: 127, B: 127, A: 255},
		{R: 188, G: 189, B: 34, A: 255},
		{R: 23, G: 190, B: 207, A: 255},
	}
)

// Render draws every series as a line over a shared time axis.
func Render(series []Series, opts Options) *image.RGBA {
	opts = opts.withDefaults(series)
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	samples, maxValue := extent(series)
	if maxValue <= 0 {
		maxValue = 1
	}
	plot := image.Rect(marginLeft, marginTop, opts.Width-marginRight, opts.Height-marginBottom)

	drawText(img, opts.Title, marginLeft, 20, foreground)
	drawText(img, "Sleep time in seconds", 5, marginTop-10, foreground)
	drawText(img, "Time duration in hours", plot.Min.X+plot.Dx()/2-70, opts.Height-15, foreground)

	// Horizontal grid with five value ticks.
	for i := 0; i <= 5; i++ {
		v := maxValue * float64(i) / 5
		y := plot.Max.Y - int(math.Round(float64(plot.Dy())*float64(i)/5))
		hline(img, plot.Min.X, plot.Max.X, y, gridColor)
		drawText(img, strconv.FormatFloat(v, 'f', 1, 64), 10, y+4, foreground)
	}

	xFor := func(idx int) int {
		if samples <= 1 {
			return plot.Min.X
		}
		return plot.Min.X + int(math.Round(float64(plot.Dx())*float64(idx)/float64(samples-1)))
	}
	yFor := func(v float64) int {
		return plot.Max.Y - int(math.Round(float64(plot.Dy())*v/maxValue))
	}

	for _, label := range HourLabels(samples, opts.TimeScale) {
		x := xFor(label.Index)
		line(img, x, plot.Max.Y, x, plot.Max.Y+5, foreground)
		drawText(img, label.Text, x-3*len(label.Text), plot.Max.Y+20, foreground)
	}

	hline(img, plot.Min.X, plot.Max.X, plot.Max.Y, foreground)
	line(img, plot.Min.X, plot.Min.Y, plot.Min.X, plot.Max.Y, foreground)

	for i, s := range series {
		c := palette[i%len(palette)]
		for j := 1; j < len(s.Values); j++ {
			line(img, xFor(j-1), yFor(s.Values[j-1]), xFor(j), yFor(s.Values[j]), c)
		}
		if len(s.Values) == 1 {
			img.Set(xFor(0), yFor(s.Values[0]), c)
		}
	}

	// Legend in the top right corner of the plot.
	for i, s := range series {
		c := palette[i%len(palette)]
		y := plot.Min.Y + 10 + i*legendRow
		if y > plot.Max.Y-legendRow {
			drawText(img, fmt.Sprintf("... %d more", len(series)-i), plot.Max.X-200, y, foreground)
			break
		}
		hline(img, plot.Max.X-220, plot.Max.X-205, y-4, c)
		drawText(img, s.Name, plot.Max.X-200, y, foreground)
	}

	return img
}

// Encode renders series as a PNG.
func Encode(w io.Writer, series []Series, opts Options) error {
	return png.Encode(w, Render(series, opts))
}

// WriteFile loads the series of dir and writes dir/chart.png. It returns the
// path written.
func WriteFile(dir string, opts Options) (string, error) {
	series, err := LoadSeries(dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create chart: %w", err)
	}
	if err := Encode(f, series, opts); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close chart: %w", err)
	}
	return path, nil
}

// Thumbnail scales img so its longest side is at most maxSize.
func Thumbnail(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxSize <= 0 || width <= 0 || height <= 0 {
		return img
	}
	scale := math.Min(1, float64(maxSize)/float64(max(width, height)))
	newW := max(1, int(float64(width)*scale))
	newH := max(1, int(float64(height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func extent(series []Series) (samples int, maxValue float64) {
	for _, s := range series {
		samples = max(samples, len(s.Values))
		for _, v := range s.Values {
			if v > maxValue && !math.IsInf(v, 0) {
				maxValue = v
			}
		}
	}
	return samples, maxValue
}

func drawText(img *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, c)
	}
}

// line draws with Bresenham's algorithm.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
