// Package plot rasterises a cell hierarchy and its violations to an image.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// Options controls rendering.
type Options struct {
	// Scale is pixels per layout unit. Zero fits the cell into MaxSize.
	Scale float64
	// MaxSize bounds the longer image side when Scale is zero.
	MaxSize int
	// Margin is the blank border in pixels.
	Margin int
	// Depth limits how many instance levels are drawn. Negative draws all.
	Depth int
	// Labels writes the rule name next to each violation marker.
	Labels bool
}

// DefaultOptions returns the options used by the plot command.
func DefaultOptions() Options {
	return Options{MaxSize: 1024, Margin: 16, Depth: -1, Labels: true}
}

var (
	background = color.RGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xff}
	marker     = color.RGBA{R: 0xff, G: 0x20, B: 0x20, A: 0xff}
	warnMarker = color.RGBA{R: 0xff, G: 0xc0, B: 0x20, A: 0xff}
	palette    = []color.NRGBA{
		{R: 0x30, G: 0x80, B: 0xff, A: 0x80},
		{R: 0xff, G: 0x40, B: 0xa0, A: 0x80},
		{R: 0x40, G: 0xd0, B: 0x60, A: 0x80},
		{R: 0xc0, G: 0x80, B: 0x30, A: 0x80},
		{R: 0x90, G: 0x60, B: 0xf0, A: 0x80},
		{R: 0x30, G: 0xd0, B: 0xd0, A: 0x80},
		{R: 0xd0, G: 0xd0, B: 0x40, A: 0x80},
		{R: 0xa0, G: 0xa0, B: 0xa0, A: 0x80},
	}
)

// canvas maps layout coordinates of the plotted cell to pixels. Layout y
// grows upwards, image y downwards.
type canvas struct {
	img    *image.RGBA
	scale  float64
	origin geom.Point
	height int
	margin int
}

func (c *canvas) px(p geom.Point) (float32, float32) {
	x := float64(c.margin) + (p.X-c.origin.X)*c.scale
	y := float64(c.height-c.margin) - (p.Y-c.origin.Y)*c.scale
	return float32(x), float32(y)
}

// fill rasterises the outline pts with src composited over the image.
func (c *canvas) fill(pts []geom.Point, src color.Color) {
	if len(pts) < 3 {
		return
	}
	b := c.img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	x, y := c.px(pts[0])
	z.MoveTo(x, y)
	for _, p := range pts[1:] {
		x, y = c.px(p)
		z.LineTo(x, y)
	}
	z.ClosePath()
	z.Draw(c.img, b, image.NewUniform(src), image.Point{})
}

// outline strokes the border of r with a line of width w pixels.
func (c *canvas) outline(r geom.Rect, w float64, src color.Color) {
	d := w / c.scale
	outer := r.Expand(d)
	c.fill([]geom.Point{
		{X: outer.MinX, Y: outer.MinY}, {X: outer.MaxX, Y: outer.MinY},
		{X: outer.MaxX, Y: r.MinY}, {X: outer.MinX, Y: r.MinY},
	}, src)
	c.fill([]geom.Point{
		{X: outer.MinX, Y: r.MaxY}, {X: outer.MaxX, Y: r.MaxY},
		{X: outer.MaxX, Y: outer.MaxY}, {X: outer.MinX, Y: outer.MaxY},
	}, src)
	c.fill([]geom.Point{
		{X: outer.MinX, Y: r.MinY}, {X: r.MinX, Y: r.MinY},
		{X: r.MinX, Y: r.MaxY}, {X: outer.MinX, Y: r.MaxY},
	}, src)
	c.fill([]geom.Point{
		{X: r.MaxX, Y: r.MinY}, {X: outer.MaxX, Y: r.MinY},
		{X: outer.MaxX, Y: r.MaxY}, {X: r.MaxX, Y: r.MaxY},
	}, src)
}

func (c *canvas) label(at geom.Point, s string, src color.Color) {
	x, y := c.px(at)
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(src),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(x)+2, int(y)-2),
	}
	d.DrawString(s)
}

// Render draws the cell named top with every sub-cell flattened into its
// coordinates, then marks the violations found in top. Violations of other
// cells are skipped: their shapes are in those cells' coordinates.
func Render(lib *layout.Library, top string, vs []drc.Violation, opts Options) (*image.RGBA, error) {
	if err := lib.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize layout: %w", err)
	}
	cell, ok := lib.Lookup(top)
	if !ok {
		return nil, fmt.Errorf("no cell named %q", top)
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultOptions().MaxSize
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}

	bounds := cell.Bounds()
	for _, v := range vs {
		if v.Cell == top {
			bounds = bounds.Union(v.Bounds())
		}
	}
	if bounds.IsEmpty() {
		bounds = geom.R(0, 0, 1, 1)
	}
	span := math.Max(bounds.MaxDim(), 1e-9)
	scale := opts.Scale
	if scale <= 0 {
		scale = float64(opts.MaxSize-2*opts.Margin) / span
		if scale <= 0 {
			scale = 1
		}
	}
	w := int(math.Ceil(bounds.Width()*scale)) + 2*opts.Margin
	h := int(math.Ceil(bounds.Height()*scale)) + 2*opts.Margin
	w, h = max(w, 1), max(h, 1)

	c := &canvas{
		img:    image.NewRGBA(image.Rect(0, 0, w, h)),
		scale:  scale,
		origin: geom.Pt(bounds.MinX, bounds.MinY),
		height: h,
		margin: opts.Margin,
	}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	colors := make(map[string]color.NRGBA)
	for i, l := range lib.Layers() {
		colors[l] = palette[i%len(palette)]
	}
	drawCell(c, lib, cell, geom.Identity(), opts.Depth, colors, make(map[layout.CellID]bool))

	for _, v := range vs {
		if v.Cell != top {
			continue
		}
		m := marker
		if v.Severity == tech.SeverityWarning {
			m = warnMarker
		}
		b := v.Bounds()
		c.outline(b, 2, m)
		if opts.Labels {
			c.label(geom.Pt(b.MaxX, b.MaxY), v.Rule, m)
		}
	}
	return c.img, nil
}

func drawCell(c *canvas, lib *layout.Library, cell *layout.Cell, xf geom.Transform, depth int,
	colors map[string]color.NRGBA, onPath map[layout.CellID]bool) {
	if onPath[cell.ID] {
		return
	}
	onPath[cell.ID] = true
	defer delete(onPath, cell.ID)

	for _, p := range cell.Prims {
		if p.Shape.Degenerate() {
			continue
		}
		s := p.Shape.Transform(xf)
		c.fill(s.Points(), colors[p.Layer])
	}
	if depth == 0 {
		c.outline(xf.ApplyRect(cell.Bounds()), 1, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
		return
	}
	for _, inst := range cell.Insts {
		child := lib.Cell(inst.Cell)
		if inst.Icon || child == nil || child.Icon {
			continue
		}
		drawCell(c, lib, child, xf.Compose(inst.Xf), depth-1, colors, onPath)
	}
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
