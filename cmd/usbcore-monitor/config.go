package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usbcore-project/usbcore-go/pkg/mqttlog"
)

// fileConfig mirrors the YAML configuration file layout. Every field
// is optional; absent fields keep their flag or default values.
type fileConfig struct {
	Source       string    `yaml:"source"`
	Script       string    `yaml:"script"`
	Journal      string    `yaml:"journal"`
	Workers      *int      `yaml:"workers"`
	QueueDepth   *int      `yaml:"queue_depth"`
	ProbeTimeout string    `yaml:"probe_timeout"`
	LogLevel     string    `yaml:"log_level"`
	LogFormat    string    `yaml:"log_format"`
	MQTT         *fileMQTT `yaml:"mqtt"`
}

type fileMQTT struct {
	BrokerURL      string `yaml:"broker_url"`
	ClientID       string `yaml:"client_id"`
	TopicPrefix    string `yaml:"topic_prefix"`
	QoS            *uint8 `yaml:"qos"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// applyConfigFile loads the YAML configuration file and fills in every
// setting that was not given explicitly on the command line. Flags win
// over file values.
func applyConfigFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if fc.Source != "" && !set["source"] {
		c.Source = fc.Source
	}
	if fc.Script != "" && !set["script"] {
		c.Script = fc.Script
	}
	if fc.Journal != "" && !set["journal"] {
		c.Journal = fc.Journal
	}
	if fc.Workers != nil && !set["workers"] {
		c.Workers = *fc.Workers
	}
	if fc.QueueDepth != nil && !set["queue-depth"] {
		c.QueueDepth = *fc.QueueDepth
	}
	if fc.ProbeTimeout != "" && !set["probe-timeout"] {
		d, err := time.ParseDuration(fc.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("config file %s: probe_timeout: %w", path, err)
		}
		c.ProbeTimeout = d
	}
	if fc.LogLevel != "" && !set["log-level"] {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" && !set["log-format"] {
		c.LogFormat = fc.LogFormat
	}

	if fc.MQTT != nil {
		mc, err := parseMQTT(fc.MQTT)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		c.MQTT = mc
		if !set["mqtt-broker"] {
			c.MQTTBroker = mc.BrokerURL
		}
	}

	return nil
}

// parseMQTT converts the YAML mqtt section into a sink configuration,
// starting from the package defaults.
func parseMQTT(fm *fileMQTT) (mqttlog.Config, error) {
	mc := mqttlog.DefaultConfig()
	if fm.BrokerURL != "" {
		mc.BrokerURL = fm.BrokerURL
	}
	if fm.ClientID != "" {
		mc.ClientID = fm.ClientID
	}
	if fm.TopicPrefix != "" {
		mc.TopicPrefix = fm.TopicPrefix
	}
	if fm.QoS != nil {
		mc.QoS = *fm.QoS
	}
	mc.Username = fm.Username
	mc.Password = fm.Password
	if fm.ConnectTimeout != "" {
		d, err := time.ParseDuration(fm.ConnectTimeout)
		if err != nil {
			return mqttlog.Config{}, fmt.Errorf("mqtt.connect_timeout: %w", err)
		}
		mc.ConnectTimeout = d
	}
	return mc, nil
}
