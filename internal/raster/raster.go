// Package raster программная offscreen-цель для отрисовки рига.
//
// Строка r цели хранит мировой y = r, поэтому сырой буфер идёт снизу вверх,
// как при чтении из GPU.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/ivlev/rig2video/internal/pose"
)

var (
	ErrNotBegun       = errors.New("raster: no offscreen target is active")
	ErrPendingDraws   = errors.New("raster: draw commands are pending, call Finish first")
	ErrSizeMismatch   = errors.New("raster: size does not match the active target")
	ErrInvalidSize    = errors.New("raster: target size must be positive")
	ErrAlreadyStarted = errors.New("raster: offscreen target already active")
)

type Rasterizer struct {
	background color.NRGBA

	img     *image.RGBA
	z       *vector.Rasterizer
	pending []pose.VertexGroup
	active  bool
}

// New: нулевой фон становится непрозрачным чёрным.
func New(background color.NRGBA) *Rasterizer {
	if background == (color.NRGBA{}) {
		background = color.NRGBA{A: 255}
	}
	return &Rasterizer{background: background, z: vector.NewRasterizer(1, 1)}
}

// Begin включает цель w x h, залитую фоном. Изображение того же размера переиспользуется.
func (r *Rasterizer) Begin(w, h int) error {
	if r.active {
		return ErrAlreadyStarted
	}
	if w < 1 || h < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if r.img == nil || r.img.Rect.Dx() != w || r.img.Rect.Dy() != h {
		r.img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.Draw(r.img, r.img.Rect, image.NewUniform(r.background), image.Point{}, draw.Src)
	r.pending = r.pending[:0]
	r.active = true
	return nil
}

// Draw ставит геометрию p в очередь, рисует только Finish.
func (r *Rasterizer) Draw(p pose.Drawable) error {
	if !r.active {
		return ErrNotBegun
	}
	r.pending = append(r.pending, p.DrawableGeometry()...)
	return nil
}

func (r *Rasterizer) Finish() error {
	if !r.active {
		return ErrNotBegun
	}
	for _, g := range r.pending {
		src := image.NewUniform(g.Color)
		for i := 0; i+2 < len(g.Triangles); i += 3 {
			r.fillTriangle(g.Vertices, g.Triangles[i:i+3], src)
		}
	}
	r.pending = r.pending[:0]
	return nil
}

func (r *Rasterizer) fillTriangle(verts []float64, tri []int, src image.Image) {
	var px, py [3]float64
	for k, idx := range tri {
		if idx < 0 || 2*idx+1 >= len(verts) {
			return
		}
		px[k], py[k] = verts[2*idx], verts[2*idx+1]
	}
	bounds := r.img.Rect
	x0 := max(int(math.Floor(min(px[0], px[1], px[2]))), bounds.Min.X)
	y0 := max(int(math.Floor(min(py[0], py[1], py[2]))), bounds.Min.Y)
	x1 := min(int(math.Ceil(max(px[0], px[1], px[2]))), bounds.Max.X)
	y1 := min(int(math.Ceil(max(py[0], py[1], py[2]))), bounds.Max.Y)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	r.z.Reset(x1-x0, y1-y0)
	r.z.MoveTo(float32(px[0]-float64(x0)), float32(py[0]-float64(y0)))
	r.z.LineTo(float32(px[1]-float64(x0)), float32(py[1]-float64(y0)))
	r.z.LineTo(float32(px[2]-float64(x0)), float32(py[2]-float64(y0)))
	r.z.ClosePath()
	r.z.Draw(r.img, image.Rect(x0, y0, x1, y1), src, image.Point{})
}

// ReadRawPixels копия цели в RGBA8 без выравнивания, нижняя строка первой.
func (r *Rasterizer) ReadRawPixels(w, h int) ([]byte, error) {
	if !r.active {
		return nil, ErrNotBegun
	}
	if len(r.pending) > 0 {
		return nil, ErrPendingDraws
	}
	if w != r.img.Rect.Dx() || h != r.img.Rect.Dy() {
		return nil, fmt.Errorf("%w: asked %dx%d, target is %dx%d", ErrSizeMismatch, w, h, r.img.Rect.Dx(), r.img.Rect.Dy())
	}
	out := make([]byte, len(r.img.Pix))
	copy(out, r.img.Pix)
	return out, nil
}

func (r *Rasterizer) End() error {
	if !r.active {
		return ErrNotBegun
	}
	r.active = false
	r.pending = r.pending[:0]
	return nil
}
