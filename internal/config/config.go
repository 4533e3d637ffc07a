package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMinOutputSize = 128
	DefaultFPS           = 30
	DefaultScale         = 1.0
	DefaultBackground    = "#000000"
	DefaultFFmpegPath    = "ffmpeg"
)

// ErrInvalid оборачивает все ошибки конфигурации; при ней ничего не пишется.
var ErrInvalid = errors.New("invalid configuration")

type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopAuto
	LoopCycles
)

func (m LoopMode) String() string {
	switch m {
	case LoopAuto:
		return "auto"
	case LoopCycles:
		return "cycles"
	default:
		return "off"
	}
}

// Loop разобранный --loop: "off", "auto" или число циклов.
type Loop struct {
	Mode   LoopMode
	Cycles int
}

func ParseLoop(s string) (Loop, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "off", "none", "0":
		return Loop{Mode: LoopOff}, nil
	case "auto":
		return Loop{Mode: LoopAuto, Cycles: 1}, nil
	default:
		n, err := strconv.Atoi(strings.TrimSuffix(v, "x"))
		if err != nil || n < 1 {
			return Loop{}, fmt.Errorf("%w: loop must be off, auto or a positive cycle count, got %q", ErrInvalid, s)
		}
		return Loop{Mode: LoopCycles, Cycles: n}, nil
	}
}

func (l Loop) String() string {
	if l.Mode == LoopCycles {
		return strconv.Itoa(l.Cycles)
	}
	return l.Mode.String()
}

type Config struct {
	RigPath       string  `yaml:"rig"`
	AnimationFile string  `yaml:"animation_file"`
	Folder        string  `yaml:"folder"`
	Output        string  `yaml:"output"`
	Scale         float64 `yaml:"scale"`
	Width         *int    `yaml:"width"`
	Height        *int    `yaml:"height"`
	Skin          string  `yaml:"skin"`
	Animation     string  `yaml:"animation"`
	AnimationTime float64 `yaml:"time"`
	MinOutputSize int     `yaml:"min_output"`
	Background    string  `yaml:"background"`

	VideoSeconds float64 `yaml:"video_seconds"`
	LoopSpec     string  `yaml:"loop"`
	FPS          int     `yaml:"fps"`
	VideoOutput  string  `yaml:"video_output"`
	KeepFrames   bool    `yaml:"keep_frames"`
	FramesDir    string  `yaml:"frames_dir"`
	FFmpegPath   string  `yaml:"ffmpeg"`

	ShowStats    bool   `yaml:"stats"`
	NotifyBroker string `yaml:"notify_broker"`
	NotifyTopic  string `yaml:"notify_topic"`
	Debug        bool   `yaml:"debug"`
	BuildVersion string `yaml:"-"`

	Loop Loop `yaml:"-"`
}

// Default значения, если их не задали ни файл, ни флаги.
func Default() *Config {
	return &Config{
		Scale:         DefaultScale,
		MinOutputSize: DefaultMinOutputSize,
		FPS:           DefaultFPS,
		Background:    DefaultBackground,
		FFmpegPath:    DefaultFFmpegPath,
	}
}

// Load читает YAML поверх Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return cfg, nil
}

// VideoMode: видео вместо одного кадра.
func (c *Config) VideoMode() bool {
	return c.VideoSeconds > 0 || c.Loop.Mode != LoopOff
}

// Normalize разбирает loop и выводит пути по умолчанию. Вызывать до Validate.
func (c *Config) Normalize() error {
	loop, err := ParseLoop(c.LoopSpec)
	if err != nil {
		return err
	}
	c.Loop = loop
	if c.VideoSeconds < 0 {
		c.VideoSeconds = 0
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.Background == "" {
		c.Background = DefaultBackground
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = DefaultFFmpegPath
	}

	if c.AnimationFile != "" {
		if c.AnimationFile, err = filepath.Abs(c.AnimationFile); err != nil {
			return err
		}
	}
	if c.RigPath == "" && c.AnimationFile != "" {
		c.RigPath = c.AnimationFile
	}
	if c.RigPath != "" {
		if c.RigPath, err = filepath.Abs(c.RigPath); err != nil {
			return err
		}
	}

	if c.Output == "" && c.RigPath != "" {
		c.Output = siblingPath(c.RigPath, "-preview.png")
	}
	if c.Output != "" {
		if c.Output, err = filepath.Abs(c.Output); err != nil {
			return err
		}
		if c.VideoOutput == "" {
			c.VideoOutput = siblingPath(c.Output, ".mp4")
		}
		if c.FramesDir == "" {
			c.FramesDir = siblingPath(c.Output, "_frames")
		}
	}
	if c.VideoOutput != "" {
		if c.VideoOutput, err = filepath.Abs(c.VideoOutput); err != nil {
			return err
		}
	}
	if c.FramesDir != "" {
		if c.FramesDir, err = filepath.Abs(c.FramesDir); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.RigPath == "" {
		return fmt.Errorf("%w: a rig file is required (--rig or --folder)", ErrInvalid)
	}
	if _, err := os.Stat(c.RigPath); err != nil {
		return fmt.Errorf("%w: rig not found: %s", ErrInvalid, c.RigPath)
	}
	if c.AnimationFile != "" {
		if _, err := os.Stat(c.AnimationFile); err != nil {
			return fmt.Errorf("%w: animation file not found: %s", ErrInvalid, c.AnimationFile)
		}
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be greater than zero, got %d", ErrInvalid, c.FPS)
	}
	if c.MinOutputSize < 1 {
		return fmt.Errorf("%w: min output size must be at least 1, got %d", ErrInvalid, c.MinOutputSize)
	}
	if c.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %g", ErrInvalid, c.Scale)
	}
	if c.AnimationTime < 0 {
		return fmt.Errorf("%w: time must not be negative, got %g", ErrInvalid, c.AnimationTime)
	}
	if c.Width != nil && *c.Width < 1 {
		return fmt.Errorf("%w: width must be positive, got %d", ErrInvalid, *c.Width)
	}
	if c.Height != nil && *c.Height < 1 {
		return fmt.Errorf("%w: height must be positive, got %d", ErrInvalid, *c.Height)
	}
	if _, err := c.BackgroundColor(); err != nil {
		return err
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalid)
	}
	if c.VideoMode() && c.VideoOutput == "" {
		return fmt.Errorf("%w: video output path is required", ErrInvalid)
	}
	if c.NotifyBroker != "" && c.NotifyTopic == "" {
		return fmt.Errorf("%w: notify topic is required when a broker is set", ErrInvalid)
	}
	return nil
}

func (c *Config) BackgroundColor() (color.NRGBA, error) {
	bg, err := colorful.Hex(c.Background)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: background %q: %v", ErrInvalid, c.Background, err)
	}
	r, g, b := bg.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// siblingPath меняет расширение path на suffix в той же папке.
func siblingPath(path, suffix string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), stem+suffix)
}
