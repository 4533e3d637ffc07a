package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLoop(t *testing.T) {
	tests := []struct {
		in   string
		want Loop
		err  bool
	}{
		{"", Loop{Mode: LoopOff}, false},
		{"off", Loop{Mode: LoopOff}, false},
		{"0", Loop{Mode: LoopOff}, false},
		{"Auto", Loop{Mode: LoopAuto, Cycles: 1}, false},
		{"3", Loop{Mode: LoopCycles, Cycles: 3}, false},
		{"2x", Loop{Mode: LoopCycles, Cycles: 2}, false},
		{"-1", Loop{}, true},
		{"forever", Loop{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLoop(tt.in)
		if tt.err {
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("%q: expected ErrInvalid, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %+v, got %+v", tt.in, tt.want, got)
		}
	}
}

func writeRig(t *testing.T, dir, name string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("bones:\n  - name: root\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RigPath = writeRig(t, dir, "hero.yaml")
	cfg.LoopSpec = "auto"

	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"output":       filepath.Join(dir, "hero-preview.png"),
		"video output": filepath.Join(dir, "hero-preview.mp4"),
		"frames dir":   filepath.Join(dir, "hero-preview_frames"),
	}
	got := map[string]string{
		"output":       cfg.Output,
		"video output": cfg.VideoOutput,
		"frames dir":   cfg.FramesDir,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %s, got %s", k, v, got[k])
		}
	}
	if !cfg.VideoMode() {
		t.Error("Loop auto must switch to video mode")
	}
}

func TestNormalizeKeepsExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RigPath = writeRig(t, dir, "hero.yaml")
	cfg.Output = filepath.Join(dir, "out", "still.png")
	cfg.VideoOutput = filepath.Join(dir, "clip.mp4")

	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	if cfg.VideoOutput != filepath.Join(dir, "clip.mp4") {
		t.Errorf("Video output overwritten: %s", cfg.VideoOutput)
	}
	if cfg.FramesDir != filepath.Join(dir, "out", "still_frames") {
		t.Errorf("Unexpected frames dir %s", cfg.FramesDir)
	}
	if cfg.VideoMode() {
		t.Error("No seconds and no loop must stay a still")
	}
}

func TestNormalizeAnimationFileIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	writeRig(t, dir, "hero.yaml")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg := Default()
	cfg.RigPath = "hero.yaml"
	cfg.AnimationFile = "hero.yaml"
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(cfg.AnimationFile) {
		t.Errorf("Expected an absolute animation file, got %s", cfg.AnimationFile)
	}
	if cfg.AnimationFile != cfg.RigPath {
		t.Errorf("Same file must compare equal: %s vs %s", cfg.AnimationFile, cfg.RigPath)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	rigPath := writeRig(t, dir, "hero.json")
	zero := 0

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no rig", func(c *Config) { c.RigPath = "" }},
		{"missing rig", func(c *Config) { c.RigPath = filepath.Join(dir, "nope.yaml") }},
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"negative min output", func(c *Config) { c.MinOutputSize = -1 }},
		{"negative scale", func(c *Config) { c.Scale = -2 }},
		{"negative time", func(c *Config) { c.AnimationTime = -1 }},
		{"zero width", func(c *Config) { c.Width = &zero }},
		{"bad background", func(c *Config) { c.Background = "purple" }},
		{"broker without topic", func(c *Config) { c.NotifyBroker = "tcp://localhost:1883" }},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.RigPath = rigPath
		if err := cfg.Normalize(); err != nil {
			t.Fatal(err)
		}
		tt.modify(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tt.name, err)
			continue
		}
		t.Logf("%s: %v", tt.name, err)
	}
}

func TestNormalizeBadLoop(t *testing.T) {
	cfg := Default()
	cfg.LoopSpec = "sometimes"
	if err := cfg.Normalize(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig2video.yaml")
	data := "rig: hero.yaml\nfps: 24\nloop: \"2\"\nwidth: 320\nbackground: \"#102030\"\nkeep_frames: true\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RigPath != "hero.yaml" || cfg.FPS != 24 || cfg.LoopSpec != "2" || !cfg.KeepFrames {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.Width == nil || *cfg.Width != 320 || cfg.Height != nil {
		t.Errorf("Expected width override only, got %v %v", cfg.Width, cfg.Height)
	}
	if cfg.MinOutputSize != DefaultMinOutputSize || cfg.FFmpegPath != DefaultFFmpegPath {
		t.Errorf("Defaults lost: %+v", cfg)
	}
	bg, err := cfg.BackgroundColor()
	if err != nil {
		t.Fatal(err)
	}
	if bg.R != 0x10 || bg.G != 0x20 || bg.B != 0x30 || bg.A != 255 {
		t.Errorf("Unexpected background %v", bg)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("fps: [1, 2"), 0644)
	if _, err := Load(bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for broken YAML, got %v", err)
	}
}
