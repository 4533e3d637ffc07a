package clock

import (
	"errors"
	"fmt"
	"math"

	"github.com/ivlev/rig2video/internal/pose"
)

var (
	ErrNegativeDelta = errors.New("clock: delta must be a non-negative number")
	ErrNoActiveTrack = errors.New("clock: no active animation track")
	ErrZeroDuration  = errors.New("clock: active animation has no duration")
)

// Clock двигает персонажа во времени. После каждого Advance мировые трансформы
// уже пересчитаны.
type Clock struct {
	a pose.Animator
}

func New(a pose.Animator) *Clock {
	return &Clock{a: a}
}

// Advance: шаг симуляции на delta, применение дорожки, пересчёт трансформов.
// Advance(0) применяет текущее время заново.
func (c *Clock) Advance(delta float64) error {
	if delta < 0 || math.IsNaN(delta) {
		return fmt.Errorf("%w: %g", ErrNegativeDelta, delta)
	}
	if delta > 0 {
		c.a.StepSimulation(delta)
	}
	c.a.ApplyAnimationTrack(delta)
	c.a.ResolveWorldTransforms()
	return nil
}

// LoopCycleSeconds длительность одного прохода анимации: Duration / TimeScale,
// нулевой TimeScale считается за 1.
func (c *Clock) LoopCycleSeconds() (float64, error) {
	tr, ok := c.a.ActiveTrack()
	if !ok {
		return 0, ErrNoActiveTrack
	}
	scale := tr.TimeScale
	if scale == 0 {
		scale = 1
	}
	secs := tr.Duration / scale
	if !(secs > 0) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: animation %q", ErrZeroDuration, tr.Animation)
	}
	return secs, nil
}
