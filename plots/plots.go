// Package plots renders sample images and training curves to image files using gonum/plot.
package plots

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Layout of the sample image grid
var (
	GridRows  = 5
	GridCols  = 5
	TileSize  = vg.Points(100)
	CurveSize = [2]vg.Length{6 * vg.Inch, 4 * vg.Inch}
)

// Images draws the first GridRows x GridCols images from the data set in a grid with the class
// name above each one. The file is written as SVG if it has a .svg extension, else as PNG.
// Does nothing if d is nil or empty.
func Images(d nnet.Data, file string) error {
	if isNil(d) || d.Len() == 0 {
		return nil
	}
	classes := d.Classes()
	label := make([]int32, 1)
	plots := make([][]*plot.Plot, GridRows)
	for row := range plots {
		plots[row] = make([]*plot.Plot, GridCols)
		for col := range plots[row] {
			i := row*GridCols + col
			if i >= d.Len() {
				continue
			}
			m := d.Image(i)
			if m == nil {
				continue
			}
			p := plot.New()
			b := m.Bounds()
			p.Add(plotter.NewImage(m, 0, 0, float64(b.Dx()), float64(b.Dy())))
			p.HideAxes()
			d.Label([]int{i}, label)
			if label[0] >= 0 && int(label[0]) < len(classes) {
				p.Title.Text = classes[label[0]]
			}
			plots[row][col] = p
		}
	}
	w, h := TileSize*vg.Length(GridCols), TileSize*vg.Length(GridRows)
	var c interface {
		vg.CanvasSizer
		io.WriterTo
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".svg":
		c = vgsvg.New(w, h)
	default:
		c = vgimg.PngCanvas{Canvas: vgimg.New(w, h)}
	}
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows: GridRows,
		Cols: GridCols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		for col, p := range plots[row] {
			if p != nil {
				p.Draw(canvases[row][col])
			}
		}
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if _, err = c.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Accuracy plots the train and validation accuracy against epoch. The format is taken from the
// file extension. Does nothing if the history is empty.
func Accuracy(h nnet.History, file string) error {
	if len(h) == 0 {
		return nil
	}
	p := newPlot()
	p.Title.Text = "model accuracy"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "accuracy"
	for i, name := range []string{"train", "valid"} {
		line, ok := newLinePlot(h, name, i)
		if !ok {
			continue
		}
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return p.Save(CurveSize[0], CurveSize[1], file)
}

func newPlot() *plot.Plot {
	p := plot.New()
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.TextStyle.Font.Size = vg.Points(12)
	p.Add(plotter.NewGrid())
	return p
}

func newLinePlot(h nnet.History, name string, ix int) (linePlot, bool) {
	var pts plotter.XYs
	xmax := 1.0
	for _, s := range h {
		m, ok := s.Get(name)
		if !ok {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(s.Epoch), Y: m.Accuracy})
		if float64(s.Epoch) > xmax {
			xmax = float64(s.Epoch)
		}
	}
	if len(pts) == 0 {
		return linePlot{}, false
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return linePlot{}, false
	}
	l.Width = 2
	l.Color = plotutil.Color(ix)
	return linePlot{Line: l, xmin: 1, xmax: xmax, ymin: 0, ymax: 1}, true
}

// modified plotter.Line with a fixed scale
type linePlot struct {
	*plotter.Line
	xmin, xmax, ymin, ymax float64
}

func (l linePlot) DataRange() (xmin, xmax, ymin, ymax float64) {
	return l.xmin, l.xmax, l.ymin, l.ymax
}

func isNil(d nnet.Data) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
