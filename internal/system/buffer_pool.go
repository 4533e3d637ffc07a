package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// FramePool переиспользует *image.RGBA одного размера между кадрами,
// чтобы не нагружать GC на длинных последовательностях.
type FramePool struct {
	mu    sync.RWMutex
	pools map[image.Point]*sync.Pool

	allocated atomic.Int64
}

func NewFramePool() *FramePool {
	return &FramePool{pools: make(map[image.Point]*sync.Pool)}
}

var framePool = NewFramePool()

// GetFrameBuffer возвращает кадр w x h из общего пула. Содержимое не очищается.
func GetFrameBuffer(w, h int) *image.RGBA {
	return framePool.Get(w, h)
}

// PutFrameBuffer возвращает кадр в общий пул.
func PutFrameBuffer(img *image.RGBA) {
	framePool.Put(img)
}

func (p *FramePool) Get(w, h int) *image.RGBA {
	size := image.Point{X: w, Y: h}
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()

	if !ok {
		p.mu.Lock()
		// Double check
		if pool, ok = p.pools[size]; !ok {
			pool = &sync.Pool{
				New: func() any {
					p.allocated.Add(1)
					return image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}
	return pool.Get().(*image.RGBA)
}

// Put принимает только кадры, выданные этим пулом (по размеру и началу координат).
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, ok := p.pools[img.Rect.Size()]
	p.mu.RUnlock()
	if ok {
		pool.Put(img)
	}
}

// Allocated сколько кадров пул создал с нуля.
func (p *FramePool) Allocated() int64 {
	return p.allocated.Load()
}
