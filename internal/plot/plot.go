// Package plot draws deconvolution results as PNG images: the input
// spectrum with the fit, and the mass spectrum with its peaks.
package plot

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/524D/mzdecon/internal/deconv"
)

// Image size
var (
	Width  = 10 * vg.Inch
	Height = 4 * vg.Inch
)

var (
	dataColor = color.RGBA{A: 255}
	fitColor  = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	massColor = color.RGBA{B: 200, A: 255}
	peakColor = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	badColor  = color.Gray{Y: 150}
)

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}

func line(p *plot.Plot, name string, x, y []float64, c color.Color) error {
	l, err := plotter.NewLine(xys(x, y))
	if err != nil {
		return err
	}
	l.Color = c
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

// Fit plots the input data and the fitted spectrum against m/z
func Fit(r *deconv.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  R² %.4f", r.ID, r.RSquared)
	p.X.Label.Text = "m/z"
	p.Y.Label.Text = "Intensity"
	if err := line(p, "data", r.MZ, r.Data, dataColor); err != nil {
		return nil, err
	}
	if len(r.Fit) == len(r.MZ) {
		if err := line(p, "fit", r.MZ, r.Fit, fitColor); err != nil {
			return nil, err
		}
	}
	p.Legend.Top = true
	return p, nil
}

// Mass plots the mass spectrum and marks the peaks; bad peaks are grey
func Mass(r *deconv.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  %d peaks", r.ID, len(r.Peaks))
	p.X.Label.Text = "Mass (Da)"
	p.Y.Label.Text = "Intensity"
	p.Add(plotter.NewGrid())
	if err := line(p, "mass spectrum", r.Axis.Mass, r.Axis.Intensity, massColor); err != nil {
		return nil, err
	}
	var good, bad plotter.XYs
	for _, pk := range r.Peaks {
		// Peak intensities may be normalized, mark the apex on the axis
		xy := plotter.XY{X: pk.Mass, Y: r.Axis.Intensity[min(max(pk.Index, 0), r.Axis.Len()-1)]}
		if pk.Bad {
			bad = append(bad, xy)
		} else {
			good = append(good, xy)
		}
	}
	for _, set := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{{"peak", good, peakColor}, {"bad peak", bad, badColor}} {
		if len(set.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(set.pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = set.c
		s.GlyphStyle.Shape = draw.TriangleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(set.name, s)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePNG renders p as PNG
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// FileName turns a scan id into a file name
func FileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, id)
}

// Save writes <id>-mz.png and <id>-mass.png to dir and returns the paths
func Save(dir string, r *deconv.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir: %w", err)
	}
	var paths []string
	for _, f := range []struct {
		suffix string
		make   func(*deconv.Result) (*plot.Plot, error)
	}{{"mz", Fit}, {"mass", Mass}} {
		p, err := f.make(r)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, FileName(r.ID)+"-"+f.suffix+".png")
		if err := p.Save(Width, Height, path); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
