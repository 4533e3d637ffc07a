package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/rig2video/internal/capture"
	"github.com/ivlev/rig2video/internal/config"
	"github.com/ivlev/rig2video/internal/geometry"
	"github.com/ivlev/rig2video/internal/pose"
	"github.com/ivlev/rig2video/internal/system"
	"github.com/ivlev/rig2video/internal/video"
)

// Clock двигает позу между кадрами.
type Clock interface {
	LoopTimer
	Advance(delta float64) error
}

// FrameSource снимает кадр с текущей позы.
type FrameSource interface {
	Capture(p pose.Drawable) (*capture.Frame, error)
}

// Progress счётчик кадров; progressbar.ProgressBar подходит как есть.
// Если есть ChangeMax, ему передаётся число кадров из плана.
type Progress interface {
	Add(n int) error
	Finish() error
}

type Project struct {
	Config  *config.Config
	Canvas  geometry.Canvas
	Pose    pose.Drawable
	Clock   Clock
	Frames  FrameSource
	Encoder video.Encoder
	Log     logrus.FieldLogger

	// Необязательные.
	Progress   Progress
	WriteImage ImageWriter

	report system.Report
}

func NewProject(cfg *config.Config, canvas geometry.Canvas, p pose.Drawable, clk Clock, src FrameSource, enc video.Encoder, log logrus.FieldLogger) *Project {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Project{
		Config:     cfg,
		Canvas:     canvas,
		Pose:       p,
		Clock:      clk,
		Frames:     src,
		Encoder:    enc,
		Log:        log.WithField("scope", "export"),
		WriteImage: WritePNG,
	}
}

// Run выбирает режим один раз: видео, если заданы секунды или цикл, иначе один кадр.
func (p *Project) Run() error {
	start := time.Now()
	p.report = system.Report{
		Build:  p.Config.BuildVersion,
		Input:  p.Config.RigPath,
		Width:  p.Canvas.Width,
		Height: p.Canvas.Height,
	}

	var err error
	if p.Config.VideoMode() {
		p.report.Mode = "video"
		err = p.runVideo()
	} else {
		p.report.Mode = "still"
		err = p.runStill()
	}
	p.report.Total = time.Since(start)

	if err != nil {
		p.logFailure(err)
		return err
	}
	return nil
}

// Report тайминги последнего Run для --stats.
func (p *Project) Report() system.Report {
	return p.report
}

func (p *Project) runStill() error {
	if err := p.writeStill(p.Config.Output, "write still"); err != nil {
		return err
	}
	p.report.Frames = 1
	p.Log.WithFields(logrus.Fields{
		"path":   p.Config.Output,
		"width":  p.Canvas.Width,
		"height": p.Canvas.Height,
	}).Info("still written")
	return nil
}

// writeStill снимает текущую позу и пишет её в path, не двигая часы.
func (p *Project) writeStill(path, stage string) error {
	f, err := p.capture()
	if err != nil {
		return &StageError{Stage: "capture still", Path: path, Err: err}
	}
	defer f.Release()
	if err := p.WriteImage(path, f.Image()); err != nil {
		return &StageError{Stage: stage, Path: path, Err: err}
	}
	return nil
}

func (p *Project) runVideo() error {
	cfg := p.Config

	plan, err := ResolvePlan(cfg, p.Clock)
	if err != nil {
		return &StageError{Stage: "resolve plan", Err: err}
	}
	p.Log.WithFields(logrus.Fields{
		"frames":    plan.FrameCount,
		"fps":       plan.FPS,
		"seconds":   fmt.Sprintf("%.3f", plan.TotalSeconds),
		"loop":      cfg.Loop.String(),
		"requested": fmt.Sprintf("%.3f", plan.RequestedSeconds),
	}).Info("export plan")
	if m, ok := p.Progress.(interface{ ChangeMax(int) }); ok {
		m.ChangeMax(plan.FrameCount)
	}

	// Превью пишется до последовательности и не занимает кадр
	if cfg.Output != "" {
		if err := p.writeStill(cfg.Output, "write preview"); err != nil {
			return err
		}
		p.Log.WithField("path", cfg.Output).Info("preview written")
	}

	if err := PrepareFramesDir(cfg.FramesDir, cfg.KeepFrames); err != nil {
		return &StageError{Stage: "prepare frames", Path: cfg.FramesDir, Err: err}
	}

	if err := p.encode(plan); err != nil {
		return err
	}

	if p.Progress != nil {
		_ = p.Progress.Finish()
	}
	if !cfg.KeepFrames && cfg.FramesDir != "" {
		if err := os.RemoveAll(cfg.FramesDir); err != nil {
			p.Log.WithError(err).WithField("path", cfg.FramesDir).Warn("could not remove frames dir")
		}
	}

	p.Log.WithFields(logrus.Fields{
		"path":    cfg.VideoOutput,
		"frames":  plan.FrameCount,
		"seconds": fmt.Sprintf("%.3f", plan.TotalSeconds),
	}).Info("video written")
	if cfg.KeepFrames {
		p.Log.WithField("path", cfg.FramesDir).Info("frames kept")
	}
	return nil
}

// encode открывает кодировщик и гарантирует Stop и Release ровно по разу,
// в том числе при панике посреди последовательности.
func (p *Project) encode(plan Plan) (err error) {
	w, h := p.Canvas.Width, p.Canvas.Height
	sess, err := p.Encoder.Open(p.Config.VideoOutput, w, h, plan.FPS, video.DefaultQuality(w, h, plan.FPS))
	if err != nil {
		return &StageError{Stage: "open encoder", Path: p.Config.VideoOutput, Err: err}
	}
	defer func() {
		err = teardown(sess, err)
	}()
	return p.encodeFrames(sess, plan)
}

func (p *Project) encodeFrames(sess video.Session, plan Plan) error {
	cfg := p.Config
	for i := 0; i < plan.FrameCount; i++ {
		f, err := p.capture()
		if err != nil {
			return &StageError{Stage: fmt.Sprintf("capture frame %d", i), Err: err}
		}

		if cfg.KeepFrames {
			path := filepath.Join(cfg.FramesDir, FrameName(i))
			if err := p.WriteImage(path, f.Image()); err != nil {
				f.Release()
				return &StageError{Stage: fmt.Sprintf("write frame %d", i), Path: path, Err: err}
			}
		}

		encStart := time.Now()
		err = sess.Submit(f.Image())
		p.report.Encode += time.Since(encStart)
		f.Release()
		if err != nil {
			return &StageError{Stage: fmt.Sprintf("encode frame %d", i), Path: cfg.VideoOutput, Err: err}
		}
		p.report.Frames++

		if i < plan.FrameCount-1 {
			if err := p.Clock.Advance(plan.StepSeconds); err != nil {
				return &StageError{Stage: fmt.Sprintf("advance clock after frame %d", i), Err: err}
			}
		}
		if p.Progress != nil {
			_ = p.Progress.Add(1)
		}
	}
	return nil
}

// teardown вызывает Stop и Release ровно по разу. Первая ошибка остаётся основной,
// остальные прикрепляются как подавленные. Ошибка одного лишь Release тоже фатальна.
func teardown(sess video.Session, primary error) error {
	var suppressed []error
	steps := []struct {
		stage string
		fn    func() error
	}{
		{"stop encoder", sess.Stop},
		{"release encoder", sess.Release},
	}
	for _, s := range steps {
		err := s.fn()
		if err == nil {
			continue
		}
		err = &StageError{Stage: s.stage, Err: err}
		if primary == nil {
			primary = err
		} else {
			suppressed = append(suppressed, err)
		}
	}
	if primary == nil {
		return nil
	}
	return &EncodeError{Err: primary, Suppressed: suppressed}
}

func (p *Project) capture() (*capture.Frame, error) {
	start := time.Now()
	f, err := p.Frames.Capture(p.Pose)
	p.report.Capture += time.Since(start)
	return f, err
}

func (p *Project) logFailure(err error) {
	entry := p.Log.WithError(err)
	var se *StageError
	if errors.As(err, &se) {
		entry = entry.WithField("stage", se.Stage)
		if se.Path != "" {
			entry = entry.WithField("path", se.Path)
		}
	}
	var ee *EncodeError
	if errors.As(err, &ee) && len(ee.Suppressed) > 0 {
		entry = entry.WithField("suppressed", len(ee.Suppressed))
	}
	entry.Error("export failed")
}
