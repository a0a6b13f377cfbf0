package mqttlog

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidConfig indicates the sink configuration is invalid.
var ErrInvalidConfig = errors.New("invalid mqtt sink configuration")

// Config holds the MQTT sink configuration.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://127.0.0.1:1883".
	BrokerURL string

	// ClientID identifies this client to the broker.
	ClientID string

	// TopicPrefix is the first segment of every published topic.
	TopicPrefix string

	// QoS is the publish quality of service (0, 1 or 2).
	QoS byte

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration

	// Logger is the optional logger for debug output. If nil, logging
	// is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a config for a local unauthenticated broker.
func DefaultConfig() Config {
	return Config{
		BrokerURL:      "tcp://127.0.0.1:1883",
		ClientID:       "usbcore-monitor",
		TopicPrefix:    "usbcore",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("%w: broker URL is empty", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client ID is empty", ErrInvalidConfig)
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("%w: topic prefix is empty", ErrInvalidConfig)
	}
	if c.QoS > 2 {
		return fmt.Errorf("%w: QoS %d out of range", ErrInvalidConfig, c.QoS)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect timeout is negative", ErrInvalidConfig)
	}
	return nil
}
