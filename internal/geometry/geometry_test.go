package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ivlev/rig2video/internal/pose"
)

type fakeRig struct {
	groups   []pose.VertexGroup
	x, y     float64
	resolved int
}

func (f *fakeRig) DrawableGeometry() []pose.VertexGroup {
	out := make([]pose.VertexGroup, len(f.groups))
	for i, g := range f.groups {
		v := make([]float64, len(g.Vertices))
		for j := 0; j < len(v); j += 2 {
			v[j] = g.Vertices[j] + f.x
			v[j+1] = g.Vertices[j+1] + f.y
		}
		out[i] = pose.VertexGroup{Vertices: v}
	}
	return out
}

func (f *fakeRig) Position() (float64, float64) { return f.x, f.y }
func (f *fakeRig) SetPosition(x, y float64)     { f.x, f.y = x, y }
func (f *fakeRig) ResolveWorldTransforms()      { f.resolved++ }

func intp(v int) *int { return &v }

func TestNoGeometryUsesMinimum(t *testing.T) {
	tests := []struct {
		min  int
		want int
	}{
		{128, 128},
		{127, 128},
		{1, 2},
		{0, 2},
	}
	for _, tt := range tests {
		r := &fakeRig{groups: []pose.VertexGroup{{}, {Vertices: nil}}}
		c, b := Fit(r, Options{MinOutputSize: tt.min})
		if b.HasGeometry {
			t.Errorf("min=%d: expected no geometry", tt.min)
		}
		if c.Width != tt.want || c.Height != tt.want {
			t.Errorf("min=%d: expected %dx%d, got %dx%d", tt.min, tt.want, tt.want, c.Width, c.Height)
		}
		if r.resolved != 0 || r.x != 0 || r.y != 0 {
			t.Errorf("min=%d: rig without geometry must not move", tt.min)
		}
	}
}

func TestFitScenario(t *testing.T) {
	r := &fakeRig{groups: []pose.VertexGroup{
		{Vertices: []float64{10, 10, 100, 50}},
		{},
		{Vertices: []float64{201, 105, 40, 60}},
	}}
	c, b := Fit(r, Options{MinOutputSize: 64})
	if b.MinX != 10 || b.MinY != 10 || b.MaxX != 201 || b.MaxY != 105 {
		t.Fatalf("Unexpected bounds %+v", b)
	}
	if b.Width() != 191 || b.Height() != 95 {
		t.Errorf("Expected fitted size 191x95, got %vx%v", b.Width(), b.Height())
	}
	if c.Width != 192 || c.Height != 96 {
		t.Errorf("Expected canvas 192x96, got %dx%d", c.Width, c.Height)
	}
	if r.resolved != 1 {
		t.Errorf("Expected one transform resolve, got %d", r.resolved)
	}

	// recentered: the new bounds sit in the middle of the canvas
	nb := ComputeBounds(r.DrawableGeometry())
	if math.Abs(nb.MinX-0.5) > 1e-9 || math.Abs(nb.MinY-0.5) > 1e-9 {
		t.Errorf("Expected bounds to start at (0.5,0.5), got (%f,%f)", nb.MinX, nb.MinY)
	}
	if math.Abs((float64(c.Width)-nb.MaxX)-nb.MinX) > 1e-9 {
		t.Errorf("Horizontal margins differ: %f vs %f", nb.MinX, float64(c.Width)-nb.MaxX)
	}
}

func TestOverrides(t *testing.T) {
	b := Bounds{MinX: 0, MinY: 0, MaxX: 300, MaxY: 301, HasGeometry: true}
	tests := []struct {
		name string
		opts Options
		want Canvas
	}{
		{"none", Options{MinOutputSize: 128}, Canvas{300, 302}},
		{"width", Options{MinOutputSize: 128, Width: intp(501)}, Canvas{502, 302}},
		{"height", Options{MinOutputSize: 128, Height: intp(64)}, Canvas{300, 128}},
		{"both", Options{MinOutputSize: 16, Width: intp(20), Height: intp(40)}, Canvas{20, 40}},
	}
	for _, tt := range tests {
		if got := CanvasFor(b, tt.opts); got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}

	none := CanvasFor(Bounds{}, Options{MinOutputSize: 128, Width: intp(320)})
	if none.Width != 320 || none.Height != 128 {
		t.Errorf("Expected override to apply without geometry, got %+v", none)
	}
}

func TestCanvasAlwaysEvenAndFloored(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		floor := 1 + rng.Intn(300)
		x0 := rng.Float64()*2000 - 1000
		y0 := rng.Float64()*2000 - 1000
		b := Bounds{MinX: x0, MinY: y0, MaxX: x0 + rng.Float64()*1200, MaxY: y0 + rng.Float64()*1200, HasGeometry: true}
		c := CanvasFor(b, Options{MinOutputSize: floor})
		if c.Width < floor || c.Height < floor || c.Width%2 != 0 || c.Height%2 != 0 {
			t.Fatalf("min=%d bounds=%+v: invalid canvas %+v", floor, b, c)
		}
	}
}
