package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/rig2video/internal/config"
	"github.com/ivlev/rig2video/internal/logger"
	"github.com/ivlev/rig2video/internal/system"
)

func TestNewEvent(t *testing.T) {
	cfg := &config.Config{
		RigPath:     "/assets/hero.yaml",
		Output:      "/assets/hero-preview.png",
		VideoOutput: "/assets/hero-preview.mp4",
	}
	tests := []struct {
		name   string
		report system.Report
		err    error
		want   Event
	}{
		{
			"still",
			system.Report{Mode: "still", Frames: 1, Width: 192, Height: 96, Total: 2 * time.Second},
			nil,
			Event{Rig: "hero.yaml", Mode: "still", Output: "/assets/hero-preview.png", Frames: 1, Seconds: 2, Width: 192, Height: 96},
		},
		{
			"video with failure",
			system.Report{Mode: "video", Frames: 9, Width: 64, Height: 64},
			errors.New("encode frame 9: broken pipe"),
			Event{Rig: "hero.yaml", Mode: "video", Output: "/assets/hero-preview.png", Video: "/assets/hero-preview.mp4",
				Frames: 9, Width: 64, Height: 64, Error: "encode frame 9: broken pipe"},
		},
	}
	for _, tt := range tests {
		got := NewEvent(cfg, tt.report, tt.err)
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

func TestEventPayload(t *testing.T) {
	b, err := json.Marshal(Event{Rig: "hero.yaml", Mode: "still", Frames: 1, Width: 2, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	t.Logf("payload: %s", s)
	for _, field := range []string{`"rig":"hero.yaml"`, `"mode":"still"`, `"frames":1`} {
		if !strings.Contains(s, field) {
			t.Errorf("Payload %s misses %s", s, field)
		}
	}
	for _, field := range []string{`"video"`, `"error"`} {
		if strings.Contains(s, field) {
			t.Errorf("Payload %s must omit empty %s", s, field)
		}
	}
}

func TestPublishUnreachableBroker(t *testing.T) {
	p := NewPublisher("tcp://127.0.0.1:1", "rig2video/done", logger.Discard())
	p.Timeout = 2 * time.Second

	err := p.Publish(Event{Rig: "hero.yaml"})
	if err == nil {
		t.Fatal("Expected an error for a closed port")
	}
	if !strings.Contains(err.Error(), "connect tcp://127.0.0.1:1") {
		t.Errorf("Unexpected error: %v", err)
	}
}
