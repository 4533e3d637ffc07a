package engine

import (
	"fmt"
	"math"

	"github.com/ivlev/rig2video/internal/config"
)

// Plan сколько кадров и с каким шагом снимает видеоэкспорт.
type Plan struct {
	FPS              int
	FrameCount       int
	StepSeconds      float64
	TotalSeconds     float64
	RequestedSeconds float64
	// LoopSeconds длина одного цикла анимации, 0 если цикл не запрашивался.
	LoopSeconds float64
}

// LoopTimer часть часов, нужная для расчёта плана.
type LoopTimer interface {
	LoopCycleSeconds() (float64, error)
}

// ResolvePlan считает план: в режиме цикла длительность = цикл x число циклов (auto = 1),
// иначе VideoSeconds. Длительность <= 0 превращается в один кадр.
func ResolvePlan(cfg *config.Config, clk LoopTimer) (Plan, error) {
	if cfg.FPS <= 0 {
		return Plan{}, fmt.Errorf("%w: fps must be greater than zero, got %d", config.ErrInvalid, cfg.FPS)
	}
	fps := float64(cfg.FPS)

	var requested, loop float64
	switch cfg.Loop.Mode {
	case config.LoopAuto, config.LoopCycles:
		secs, err := clk.LoopCycleSeconds()
		if err != nil {
			return Plan{}, fmt.Errorf("resolve loop length: %w", err)
		}
		cycles := cfg.Loop.Cycles
		if cfg.Loop.Mode == config.LoopAuto || cycles < 1 {
			cycles = 1
		}
		loop = secs
		requested = secs * float64(cycles)
	default:
		requested = math.Max(cfg.VideoSeconds, 0)
	}
	if requested <= 0 {
		requested = 1 / fps
	}

	frames := int(math.Round(requested * fps))
	if frames < 1 {
		frames = 1
	}
	return Plan{
		FPS:              cfg.FPS,
		FrameCount:       frames,
		StepSeconds:      1 / fps,
		TotalSeconds:     float64(frames) / fps,
		RequestedSeconds: requested,
		LoopSeconds:      loop,
	}, nil
}
