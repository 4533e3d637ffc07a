// Package notify публикует событие о завершении экспорта в MQTT.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/rig2video/internal/config"
	"github.com/ivlev/rig2video/internal/system"
)

const (
	DefaultClientID = "rig2video"
	DefaultTimeout  = 5 * time.Second
)

var ErrTimeout = errors.New("notify: broker did not answer in time")

// Event тело сообщения, JSON.
type Event struct {
	Rig     string  `json:"rig"`
	Mode    string  `json:"mode"`
	Output  string  `json:"output,omitempty"`
	Video   string  `json:"video,omitempty"`
	Frames  int     `json:"frames"`
	Seconds float64 `json:"seconds"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Error   string  `json:"error,omitempty"`
}

// NewEvent собирает событие из конфига и отчёта последнего прогона.
func NewEvent(cfg *config.Config, r system.Report, runErr error) Event {
	ev := Event{
		Rig:     filepath.Base(cfg.RigPath),
		Mode:    r.Mode,
		Output:  cfg.Output,
		Frames:  r.Frames,
		Seconds: r.Total.Seconds(),
		Width:   r.Width,
		Height:  r.Height,
	}
	if r.Mode == "video" {
		ev.Video = cfg.VideoOutput
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return ev
}

type Publisher struct {
	Broker   string
	Topic    string
	ClientID string
	Timeout  time.Duration
	Log      logrus.FieldLogger
}

func NewPublisher(broker, topic string, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		Broker:   broker,
		Topic:    topic,
		ClientID: DefaultClientID,
		Timeout:  DefaultTimeout,
		Log:      log.WithField("scope", "notify"),
	}
}

// Publish подключается, отправляет одно сообщение с QoS 1 и отключается.
func (p *Publisher) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.Broker).
		SetClientID(p.ClientID).
		SetConnectTimeout(p.Timeout).
		SetAutoReconnect(false)
	client := mqtt.NewClient(opts)

	if err := wait(client.Connect(), p.Timeout); err != nil {
		return fmt.Errorf("connect %s: %w", p.Broker, err)
	}
	defer client.Disconnect(250)

	if err := wait(client.Publish(p.Topic, 1, false, payload), p.Timeout); err != nil {
		return fmt.Errorf("publish %s: %w", p.Topic, err)
	}
	p.Log.WithFields(logrus.Fields{"topic": p.Topic, "bytes": len(payload)}).Debug("event published")
	return nil
}

func wait(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return t.Error()
}
