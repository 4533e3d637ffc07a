// Package geometry подбирает размер кадра по позе рига и центрирует риг в нём.
package geometry

import (
	"math"

	"github.com/ivlev/rig2video/internal/pose"
)

// Bounds рамка всех видимых вершин. Width/Height имеют смысл только при HasGeometry.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64

	HasGeometry bool
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Canvas размер всех кадров сессии, обе стороны чётные.
type Canvas struct {
	Width  int
	Height int
}

type Options struct {
	MinOutputSize int
	// Если заданы, заменяют подобранный размер.
	Width  *int
	Height *int
}

type Fittable interface {
	pose.Drawable
	pose.Positioner
	ResolveWorldTransforms()
}

func ComputeBounds(groups []pose.VertexGroup) Bounds {
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, g := range groups {
		for i := 0; i+1 < len(g.Vertices); i += 2 {
			x, y := g.Vertices[i], g.Vertices[i+1]
			b.MinX = math.Min(b.MinX, x)
			b.MaxX = math.Max(b.MaxX, x)
			b.MinY = math.Min(b.MinY, y)
			b.MaxY = math.Max(b.MaxY, y)
			b.HasGeometry = true
		}
	}
	if !b.HasGeometry {
		return Bounds{}
	}
	return b
}

// CanvasFor: переопределения, округление, минимальный размер, затем чётность.
func CanvasFor(b Bounds, opts Options) Canvas {
	floor := opts.MinOutputSize
	if floor < 1 {
		floor = 1
	}
	w, h := float64(floor), float64(floor)
	if b.HasGeometry {
		w, h = b.Width(), b.Height()
	}
	if opts.Width != nil {
		w = float64(*opts.Width)
	}
	if opts.Height != nil {
		h = float64(*opts.Height)
	}
	return Canvas{Width: dimension(w, floor), Height: dimension(h, floor)}
}

func dimension(v float64, floor int) int {
	n := int(math.Round(v))
	if n < floor {
		n = floor
	}
	if n%2 != 0 {
		n++
	}
	return n
}

// Fit измеряет риг, фиксирует кадр и сдвигает риг в его центр.
// Риг без геометрии остаётся на месте.
func Fit(e Fittable, opts Options) (Canvas, Bounds) {
	b := ComputeBounds(e.DrawableGeometry())
	c := CanvasFor(b, opts)
	if !b.HasGeometry {
		return c, b
	}
	x, y := e.Position()
	x += -b.MinX + (float64(c.Width)-b.Width())/2
	y += -b.MinY + (float64(c.Height)-b.Height())/2
	e.SetPosition(x, y)
	e.ResolveWorldTransforms()
	return c, b
}
