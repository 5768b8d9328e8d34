package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds the configuration for the agent2mqtt bridge
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	// Agent socket configuration
	AgentSocketPath string

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:      "localhost",
		MQTTPort:        1883,
		MQTTClientID:    "agent2mqtt",
		AgentSocketPath: "/tmp/miio_agent.socket",
		ServiceName:     "agent2mqtt",
		HealthPort:      0,
		LogLevel:        "info",
	}
}

// LoadFromFlags parses command-line arguments and overrides config values.
// Flags are applied first; an optional first positional argument replaces
// the broker host and an optional second one the agent socket path.
func (c *Config) LoadFromFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Agent socket flags
	fs.StringVar(&c.AgentSocketPath, "agent-socket", c.AgentSocketPath, "Path of the agent seqpacket socket")

	// Service flags
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port (0 disables the server)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	positional := fs.Args()
	if len(positional) > 0 && positional[0] != "" {
		c.MQTTBroker = positional[0]
	}
	if len(positional) > 1 && positional[1] != "" {
		c.AgentSocketPath = positional[1]
	}
	if len(positional) > 2 {
		return fmt.Errorf("unexpected arguments: %v", positional[2:])
	}

	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.MQTTClientID == "" {
		return fmt.Errorf("MQTT client ID is required")
	}
	if c.AgentSocketPath == "" {
		return fmt.Errorf("agent socket path is required")
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 0 and 65535")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}
