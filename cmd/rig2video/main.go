package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/ivlev/rig2video/internal/capture"
	"github.com/ivlev/rig2video/internal/clock"
	"github.com/ivlev/rig2video/internal/config"
	"github.com/ivlev/rig2video/internal/engine"
	"github.com/ivlev/rig2video/internal/geometry"
	"github.com/ivlev/rig2video/internal/logger"
	"github.com/ivlev/rig2video/internal/notify"
	"github.com/ivlev/rig2video/internal/raster"
	"github.com/ivlev/rig2video/internal/rig"
	"github.com/ivlev/rig2video/internal/system"
	"github.com/ivlev/rig2video/internal/video"
)

var version = "dev"

const benchmarkLog = "benchmark.log"

var app = cli.NewApp()

func init() {
	app.Name = "rig2video"
	app.Usage = "Кадр или видео из скелетной анимации"
	app.UsageText = "rig2video --rig hero.yaml [--video-seconds 3 | --loop auto] [options]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML с настройками; флаги важнее файла"},
		cli.StringFlag{Name: "rig, r", Usage: "Файл рига (.yaml, .yml, .json)"},
		cli.StringFlag{Name: "folder, f", Usage: "Папка, из которой берётся самый свежий риг"},
		cli.StringFlag{Name: "animation-file", Usage: "Риг, чьи анимации добавляются к основному"},
		cli.StringFlag{Name: "output, o", Usage: "PNG кадра или превью (по умолчанию <риг>-preview.png)"},
		cli.Float64Flag{Name: "scale", Value: config.DefaultScale, Usage: "Масштаб рига при загрузке"},
		cli.IntFlag{Name: "width", Usage: "Ширина кадра вместо подобранной"},
		cli.IntFlag{Name: "height", Usage: "Высота кадра вместо подобранной"},
		cli.StringFlag{Name: "skin", Usage: "Скин (по умолчанию default или первый)"},
		cli.StringFlag{Name: "animation, a", Usage: "Анимация (по умолчанию первая)"},
		cli.Float64Flag{Name: "time, t", Usage: "Начальное время анимации, сек"},
		cli.IntFlag{Name: "min-output", Value: config.DefaultMinOutputSize, Usage: "Минимальная сторона кадра, px"},
		cli.StringFlag{Name: "background, b", Value: config.DefaultBackground, Usage: "Цвет фона, hex"},
		cli.Float64Flag{Name: "video-seconds", Usage: "Длительность видео, сек (0 - только кадр)"},
		cli.StringFlag{Name: "loop", Usage: "Цикл: off, auto или число циклов"},
		cli.IntFlag{Name: "fps", Value: config.DefaultFPS, Usage: "Кадров в секунду"},
		cli.StringFlag{Name: "video-output", Usage: "Путь к MP4 (по умолчанию <output>.mp4)"},
		cli.BoolFlag{Name: "keep-frames", Usage: "Сохранить кадры в PNG"},
		cli.StringFlag{Name: "frames-dir", Usage: "Папка кадров (по умолчанию <output>_frames)"},
		cli.StringFlag{Name: "ffmpeg", Value: config.DefaultFFmpegPath, Usage: "Путь к ffmpeg"},
		cli.BoolFlag{Name: "stats", Usage: "Показать отчёт о производительности и дописать его в " + benchmarkLog},
		cli.StringFlag{Name: "notify-broker", Usage: "MQTT брокер для события о завершении, например tcp://localhost:1883"},
		cli.StringFlag{Name: "notify-topic", Value: "rig2video/export", Usage: "MQTT топик события"},
		cli.BoolFlag{Name: "debug", Usage: "Подробный лог"},
	}
	app.Action = export
	app.Commands = []cli.Command{
		{
			Name:  "probe",
			Usage: "Проверить, что ffmpeg умеет libx264 и mp4",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "ffmpeg", Value: config.DefaultFFmpegPath, Usage: "Путь к ffmpeg"},
			},
			Action: probe,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[-] %v\n", err)
		os.Exit(1)
	}
}

// loadConfig собирает конфиг: значения по умолчанию, затем файл, затем явно заданные флаги.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	str := map[string]*string{
		"rig":            &cfg.RigPath,
		"folder":         &cfg.Folder,
		"animation-file": &cfg.AnimationFile,
		"output":         &cfg.Output,
		"skin":           &cfg.Skin,
		"animation":      &cfg.Animation,
		"background":     &cfg.Background,
		"loop":           &cfg.LoopSpec,
		"video-output":   &cfg.VideoOutput,
		"frames-dir":     &cfg.FramesDir,
		"ffmpeg":         &cfg.FFmpegPath,
		"notify-broker":  &cfg.NotifyBroker,
		"notify-topic":   &cfg.NotifyTopic,
	}
	for name, dst := range str {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("scale") {
		cfg.Scale = c.Float64("scale")
	}
	if c.IsSet("time") {
		cfg.AnimationTime = c.Float64("time")
	}
	if c.IsSet("video-seconds") {
		cfg.VideoSeconds = c.Float64("video-seconds")
	}
	if c.IsSet("min-output") {
		cfg.MinOutputSize = c.Int("min-output")
	}
	if c.IsSet("fps") {
		cfg.FPS = c.Int("fps")
	}
	if c.IsSet("width") {
		w := c.Int("width")
		cfg.Width = &w
	}
	if c.IsSet("height") {
		h := c.Int("height")
		cfg.Height = &h
	}
	if c.IsSet("keep-frames") {
		cfg.KeepFrames = c.Bool("keep-frames")
	}
	if c.IsSet("stats") {
		cfg.ShowStats = c.Bool("stats")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	// Топик по умолчанию нужен только вместе с брокером из файла
	if cfg.NotifyBroker != "" && cfg.NotifyTopic == "" {
		cfg.NotifyTopic = c.String("notify-topic")
	}
	cfg.BuildVersion = version

	if cfg.RigPath == "" && cfg.AnimationFile == "" && cfg.Folder != "" {
		latest, err := system.FindLatestRig(cfg.Folder)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		cfg.RigPath = latest
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSkeleton грузит риг, добавляет анимации из второго файла и ставит начальную позу.
func loadSkeleton(cfg *config.Config, log logrus.FieldLogger) (*rig.Skeleton, *clock.Clock, error) {
	data, err := rig.Load(cfg.RigPath, cfg.Scale)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AnimationFile != "" && cfg.AnimationFile != cfg.RigPath {
		extra, err := rig.Load(cfg.AnimationFile, cfg.Scale)
		if err != nil {
			return nil, nil, err
		}
		if err := data.MergeAnimations(extra); err != nil {
			return nil, nil, fmt.Errorf("merge animations from %s: %w", cfg.AnimationFile, err)
		}
	}

	skel, err := rig.NewSkeleton(data, cfg.Skin)
	if err != nil {
		return nil, nil, err
	}
	entry, err := skel.SetAnimation(cfg.Animation, cfg.VideoMode())
	if err != nil {
		return nil, nil, err
	}
	if entry != nil {
		log.WithFields(logrus.Fields{
			"animation": entry.Animation.Name,
			"duration":  fmt.Sprintf("%.3f", entry.Animation.Duration),
			"loop":      entry.Loop,
		}).Debug("animation selected")
	} else {
		log.Debug("rig has no animations, exporting setup pose")
	}

	clk := clock.New(skel)
	if err := clk.Advance(cfg.AnimationTime); err != nil {
		return nil, nil, fmt.Errorf("initial pose: %w", err)
	}
	return skel, clk, nil
}

func newProgress(max int) engine.Progress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("frames"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func export(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, cfg.Debug)

	skel, clk, err := loadSkeleton(cfg, log)
	if err != nil {
		log.WithError(err).WithField("path", cfg.RigPath).Error("could not load rig")
		return cli.NewExitError("", 1)
	}

	canvas, bounds := geometry.Fit(skel, geometry.Options{
		MinOutputSize: cfg.MinOutputSize,
		Width:         cfg.Width,
		Height:        cfg.Height,
	})
	log.WithFields(logrus.Fields{
		"width":    canvas.Width,
		"height":   canvas.Height,
		"geometry": bounds.HasGeometry,
	}).Debug("canvas fixed")

	bg, err := cfg.BackgroundColor()
	if err != nil {
		return err
	}
	frames := capture.New(raster.New(bg), canvas)
	enc := &video.FFmpegEncoder{Path: cfg.FFmpegPath, Log: log}

	project := engine.NewProject(cfg, canvas, skel, clk, frames, enc, log)
	if cfg.VideoMode() {
		if bar := newProgress(-1); bar != nil {
			project.Progress = bar
		}
	}
	runErr := project.Run()

	report := project.Report()
	if cfg.ShowStats {
		system.CollectHost(&report)
		fmt.Print(report.String())
		if err := system.AppendBenchmark(benchmarkLog, report, time.Now()); err != nil {
			log.WithError(err).Warn("could not append benchmark log")
		}
	}
	if cfg.NotifyBroker != "" {
		pub := notify.NewPublisher(cfg.NotifyBroker, cfg.NotifyTopic, log)
		if err := pub.Publish(notify.NewEvent(cfg, report, runErr)); err != nil {
			log.WithError(err).Warn("could not publish export event")
		}
	}

	if runErr != nil {
		// Причина уже в логе
		return cli.NewExitError("", 1)
	}
	return nil
}

func probe(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caps, err := video.Probe(ctx, c.String("ffmpeg"))
	if err != nil && !errors.Is(err, video.ErrMissingCapability) {
		return err
	}
	fmt.Printf("[*] Кодировщиков: %d, контейнеров: %d\n", len(caps.Encoders), len(caps.Muxers))
	var h264 []string
	for _, e := range caps.Encoders {
		if strings.Contains(e, "264") {
			h264 = append(h264, e)
		}
	}
	fmt.Printf("[*] H.264: %s\n", strings.Join(h264, ", "))
	if err != nil {
		return err
	}
	fmt.Println("[+] ffmpeg готов к экспорту")
	return nil
}
