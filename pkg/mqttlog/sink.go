// Package mqttlog publishes the attachment journal to an MQTT broker.
//
// Every journal event becomes one JSON message on
// "<prefix>/<category>/<subject>", where the subject is the device
// identifier, the driver name or the bus number, whichever the event
// concerns. The feed is diagnostics, not a system of record: publishes
// are fire and forget, and events produced while the broker is
// unreachable are dropped rather than queued. The on-disk journal is
// the durable copy.
package mqttlog

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/usbcore-project/usbcore-go/pkg/log"
)

const (
	// keepAlive is the broker ping interval.
	keepAlive = 60 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight
	// publishes, in milliseconds.
	disconnectQuiesce = 500
)

// Sink is a journal logger that publishes events to an MQTT broker.
type Sink struct {
	config Config
	client mqtt.Client
}

// Compile-time interface satisfaction check.
var _ log.Logger = (*Sink)(nil)

// Connect validates the config and establishes the broker connection.
// After the initial connection the paho client reconnects on its own;
// a dropped broker degrades the feed without disturbing attachment.
func Connect(config Config) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Sink{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.debugLog("journal feed connected", "broker", config.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.warnLog("journal feed connection lost", "broker", config.BrokerURL, "error", err)
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %v", config.BrokerURL, config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.BrokerURL, err)
	}
	return s, nil
}

// Log publishes the event. The publish token is deliberately not
// waited on; a slow broker must not stall the hotplug workers.
func (s *Sink) Log(event log.Event) {
	payload, err := json.Marshal(newPayload(event))
	if err != nil {
		s.warnLog("journal event not encodable", "category", event.Category, "error", err)
		return
	}
	s.client.Publish(s.topicFor(event), s.config.QoS, false, payload)
}

// Close flushes pending publishes briefly and disconnects.
func (s *Sink) Close() error {
	s.client.Disconnect(disconnectQuiesce)
	return nil
}

// topicFor derives the topic from the event's category and subject.
func (s *Sink) topicFor(event log.Event) string {
	subject := "-"
	switch {
	case event.DeviceID != "":
		subject = string(event.DeviceID)
	case event.Driver != "":
		subject = event.Driver
	case event.Bus != nil:
		subject = fmt.Sprintf("bus-%d", *event.Bus)
	}
	return path.Join(s.config.TopicPrefix, strings.ToLower(event.Category.String()), subject)
}

func (s *Sink) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *Sink) warnLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}
