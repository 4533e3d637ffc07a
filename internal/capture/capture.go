// Package capture снимает позу рига в один RGBA-кадр сверху вниз.
package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/ivlev/rig2video/internal/geometry"
	"github.com/ivlev/rig2video/internal/pose"
	"github.com/ivlev/rig2video/internal/system"
)

var ErrBufferSize = errors.New("capture: readback buffer has the wrong size")

// Target offscreen-цель рендера. ReadRawPixels отдаёт строки снизу вверх.
type Target interface {
	Begin(w, h int) error
	Draw(p pose.Drawable) error
	// Finish блокирует до завершения всех поставленных команд рисования.
	Finish() error
	ReadRawPixels(w, h int) ([]byte, error)
	End() error
}

// Frame плотно упакованный RGBA кадр, первая строка сверху.
// Pix принадлежит пулу кадров до вызова Release.
type Frame struct {
	Width  int
	Height int
	Pix    []byte

	img *image.RGBA
}

// Image отдаёт кадр как *image.RGBA без копирования.
func (f *Frame) Image() *image.RGBA {
	return f.img
}

// Release возвращает буфер в пул. После него кадр использовать нельзя.
func (f *Frame) Release() {
	if f.img == nil {
		return
	}
	system.PutFrameBuffer(f.img)
	f.img = nil
	f.Pix = nil
}

type Capturer struct {
	target Target
	canvas geometry.Canvas
}

func New(t Target, c geometry.Canvas) *Capturer {
	return &Capturer{target: t, canvas: c}
}

func (c *Capturer) Canvas() geometry.Canvas {
	return c.canvas
}

// Capture рисует позу, синхронизирует цель, читает пиксели и переворачивает строки.
// End вызывается всегда, если Begin прошёл успешно.
func (c *Capturer) Capture(p pose.Drawable) (f *Frame, err error) {
	w, h := c.canvas.Width, c.canvas.Height
	if err := c.target.Begin(w, h); err != nil {
		return nil, fmt.Errorf("begin offscreen target %dx%d: %w", w, h, err)
	}
	defer func() {
		if endErr := c.target.End(); endErr != nil {
			endErr = fmt.Errorf("end offscreen target: %w", endErr)
			if f != nil {
				f.Release()
				f = nil
			}
			err = errors.Join(err, endErr)
		}
	}()

	if err := c.target.Draw(p); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}
	if err := c.target.Finish(); err != nil {
		return nil, fmt.Errorf("synchronize: %w", err)
	}
	raw, err := c.target.ReadRawPixels(w, h)
	if err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}
	if len(raw) != w*h*4 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(raw), w*h*4)
	}

	img := system.GetFrameBuffer(w, h)
	FlipRows(img.Pix, raw, w*4, h)
	return &Frame{Width: w, Height: h, Pix: img.Pix, img: img}, nil
}

// FlipRows копирует src в dst в обратном порядке строк. Буферы не должны пересекаться.
func FlipRows(dst, src []byte, stride, rows int) {
	for y := 0; y < rows; y++ {
		s := src[y*stride : (y+1)*stride]
		copy(dst[(rows-1-y)*stride:], s)
	}
}
