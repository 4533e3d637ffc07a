package capture

import (
	"bytes"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/ivlev/rig2video/internal/clock"
	"github.com/ivlev/rig2video/internal/geometry"
	"github.com/ivlev/rig2video/internal/pose"
	"github.com/ivlev/rig2video/internal/raster"
	"github.com/ivlev/rig2video/internal/rig"
)

type fakeTarget struct {
	calls   []string
	raw     []byte
	readErr error
	endErr  error
}

func (f *fakeTarget) Begin(w, h int) error       { f.calls = append(f.calls, "begin"); return nil }
func (f *fakeTarget) Draw(p pose.Drawable) error { f.calls = append(f.calls, "draw"); return nil }
func (f *fakeTarget) Finish() error              { f.calls = append(f.calls, "finish"); return nil }
func (f *fakeTarget) End() error                 { f.calls = append(f.calls, "end"); return f.endErr }

func (f *fakeTarget) ReadRawPixels(w, h int) ([]byte, error) {
	f.calls = append(f.calls, "read")
	return f.raw, f.readErr
}

type nothing struct{}

func (nothing) DrawableGeometry() []pose.VertexGroup { return nil }

// rows builds a bottom-up buffer where every byte of row y equals y.
func rows(w, h int) []byte {
	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for i := 0; i < w*4; i++ {
			buf[y*w*4+i] = byte(y)
		}
	}
	return buf
}

func TestCaptureFlipsRows(t *testing.T) {
	const w, h = 3, 4
	ft := &fakeTarget{raw: rows(w, h)}
	f, err := New(ft, geometry.Canvas{Width: w, Height: h}).Capture(nothing{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()

	if got := strings.Join(ft.calls, ","); got != "begin,draw,finish,read,end" {
		t.Errorf("Unexpected call order %s", got)
	}
	if f.Width != w || f.Height != h || len(f.Pix) != w*h*4 {
		t.Fatalf("Unexpected frame %dx%d len %d", f.Width, f.Height, len(f.Pix))
	}
	for y := 0; y < h; y++ {
		if got := f.Pix[y*w*4]; got != byte(h-1-y) {
			t.Errorf("Row %d: expected source row %d, got %d", y, h-1-y, got)
		}
	}
	img := f.Image()
	if img.Bounds().Dx() != w || &img.Pix[0] != &f.Pix[0] {
		t.Error("Image must wrap Pix without copying")
	}

	// the frame must not alias the target's buffer
	for i := range ft.raw {
		ft.raw[i] = 0xff
	}
	if f.Pix[0] != byte(h-1) {
		t.Error("Frame changed when the target buffer was reused")
	}
}

func TestCaptureErrors(t *testing.T) {
	readFail := errors.New("gpu lost")
	endFail := errors.New("end failed")

	tests := []struct {
		name    string
		target  *fakeTarget
		want    []error
		wantEnd bool
	}{
		{"read fails", &fakeTarget{readErr: readFail}, []error{readFail}, true},
		{"read and end fail", &fakeTarget{readErr: readFail, endErr: endFail}, []error{readFail, endFail}, true},
		{"end fails after success", &fakeTarget{raw: rows(2, 2), endErr: endFail}, []error{endFail}, true},
		{"short buffer", &fakeTarget{raw: make([]byte, 3)}, []error{ErrBufferSize}, true},
	}
	for _, tt := range tests {
		f, err := New(tt.target, geometry.Canvas{Width: 2, Height: 2}).Capture(nothing{})
		if f != nil {
			t.Errorf("%s: expected no frame", tt.name)
		}
		for _, want := range tt.want {
			if !errors.Is(err, want) {
				t.Errorf("%s: expected %v in %v", tt.name, want, err)
			}
		}
		calls := strings.Join(tt.target.calls, ",")
		if tt.wantEnd && !strings.HasSuffix(calls, "end") {
			t.Errorf("%s: End not called (%s)", tt.name, calls)
		}
	}
}

const squareRig = `
bones:
  - name: root
    rotation: 15
slots:
  - name: body
    bone: root
    attachment: sq
    color: "#3080ff"
skins:
  - name: default
    attachments:
      body:
        sq: {width: 20, height: 10}
animations:
  - name: spin
    bones:
      root:
        rotate:
          - {time: 0, value: 0}
          - {time: 1, value: 360}
`

func TestAdvanceZeroKeepsPixels(t *testing.T) {
	d, err := rig.Parse([]byte(squareRig), 1)
	if err != nil {
		t.Fatal(err)
	}
	sk, err := rig.NewSkeleton(d, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sk.SetAnimation("spin", true); err != nil {
		t.Fatal(err)
	}
	clk := clock.New(sk)
	if err := clk.Advance(0.3); err != nil {
		t.Fatal(err)
	}
	canvas, _ := geometry.Fit(sk, geometry.Options{MinOutputSize: 16})
	c := New(raster.New(color.NRGBA{}), canvas)

	first, err := c.Capture(sk)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Release()
	second, err := c.Capture(sk)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Release()
	if err := clk.Advance(0); err != nil {
		t.Fatal(err)
	}
	third, err := c.Capture(sk)
	if err != nil {
		t.Fatal(err)
	}
	defer third.Release()

	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("Two captures without advance differ")
	}
	if !bytes.Equal(first.Pix, third.Pix) {
		t.Error("Capture after Advance(0) differs")
	}
	if bytes.Count(first.Pix, []byte{0, 0, 0, 255}) == canvas.Width*canvas.Height {
		t.Error("Expected the rig to be visible")
	}
}

func TestFlipRowsOddHeight(t *testing.T) {
	src := []byte{1, 1, 2, 2, 3, 3}
	dst := make([]byte, len(src))
	FlipRows(dst, src, 2, 3)
	if !bytes.Equal(dst, []byte{3, 3, 2, 2, 1, 1}) {
		t.Errorf("Unexpected flip %v", dst)
	}
}
