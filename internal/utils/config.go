package utils

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/pkg/file"
)

// Environment variables that override the configuration file.
const (
	EnvAPIToken   = "RACEMAP_API_TOKEN"
	EnvAPIHost    = "RACEMAP_API_HOST"
	EnvListenPort = "LISTEN_PORT"
	EnvListenMode = "LISTEN_MODE"
)

// Config represents the structure of the configuration file.
type Config struct {
	Forwarder struct {
		ListenPort            int           `yaml:"listen_port"`             // TCP port the timing clients connect to
		ListenMode            string        `yaml:"listen_mode"`             // private (loopback) or public (all interfaces)
		KeepAliveInterval     time.Duration `yaml:"keepalive_interval"`      // Interval between keep-alive pings
		StaleBufferThreshold  time.Duration `yaml:"stale_buffer_threshold"`  // Max gap before unterminated data is dropped
		MaxBufferSize         int           `yaml:"max_buffer_size"`         // Max unterminated bytes per connection
		ReceivedFramesHistory int           `yaml:"received_frames_history"` // Number of raw frames kept per connection
		TrafficLogFile        string        `yaml:"traffic_log_file"`        // Optional file receiving all raw traffic
	} `yaml:"forwarder"`

	Upstream struct {
		Host      string        `yaml:"host"`       // Racemap API base URL
		APIToken  string        `yaml:"api_token"`  // Racemap API token
		Timeout   time.Duration `yaml:"timeout"`    // Timeout per upstream request
		Workers   int           `yaml:"workers"`    // Concurrent upstream submissions
		QueueSize int           `yaml:"queue_size"` // Batches waiting for a worker

		HealthCheck struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable the availability check
			Interval time.Duration `yaml:"interval"` // Interval between checks, 0 checks once at startup
		} `yaml:"health_check"`
	} `yaml:"upstream"`

	Mirror struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the MQTT mirror of timing reads
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Optional path to the CA certificate
		Topic         string `yaml:"topic"`          // Topic the reads are published to
		QOS           int    `yaml:"qos"`            // MQTT QoS level for read messages
	} `yaml:"mirror"`

	Logging struct {
		Level  string `yaml:"level"`  // debug, info, warn or error
		Format string `yaml:"format"` // json or console
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var config Config
	config.Forwarder.ListenPort = constants.DefaultListenPort
	config.Forwarder.ListenMode = constants.ListenModePrivate
	config.Forwarder.KeepAliveInterval = constants.DefaultKeepAliveInterval
	config.Forwarder.StaleBufferThreshold = constants.DefaultStaleBufferThreshold
	config.Forwarder.MaxBufferSize = constants.DefaultMaxBufferSize
	config.Forwarder.ReceivedFramesHistory = constants.DefaultReceivedFramesHistory
	config.Upstream.Host = constants.DefaultUpstreamHost
	config.Upstream.Timeout = constants.DefaultUpstreamTimeout
	config.Upstream.Workers = constants.DefaultUpstreamWorkers
	config.Upstream.QueueSize = constants.DefaultUpstreamQueueSize
	config.Upstream.HealthCheck.Enabled = true
	config.Upstream.HealthCheck.Interval = constants.DefaultHealthCheckInterval
	config.Mirror.QOS = constants.DefaultMirrorQOS
	config.Logging.Level = "info"
	config.Logging.Format = "json"
	return &config
}

// LoadConfig loads the YAML configuration from the specified file on top of the defaults.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	err := fileClient.ReadYamlFile(filename, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides configuration values with the environment contract of the forwarder.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.Upstream.APIToken = v
	}
	if v, ok := lookup(EnvAPIHost); ok && v != "" {
		c.Upstream.Host = v
	}
	if v, ok := lookup(EnvListenPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvListenPort, v, err)
		}
		c.Forwarder.ListenPort = port
	}
	if v, ok := lookup(EnvListenMode); ok && v != "" {
		c.Forwarder.ListenMode = strings.ToLower(v)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Upstream.APIToken) == "" {
		errs = append(errs, errors.New("upstream.api_token is required"))
	}
	if c.Upstream.Host == "" {
		errs = append(errs, errors.New("upstream.host is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if c.Upstream.Workers <= 0 {
		errs = append(errs, errors.New("upstream.workers must be positive"))
	}
	if c.Upstream.QueueSize < 0 {
		errs = append(errs, errors.New("upstream.queue_size must not be negative"))
	}
	if c.Forwarder.ListenPort < 0 || c.Forwarder.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("forwarder.listen_port %d out of range", c.Forwarder.ListenPort))
	}
	if c.Forwarder.ListenMode != constants.ListenModePrivate && c.Forwarder.ListenMode != constants.ListenModePublic {
		errs = append(errs, fmt.Errorf("forwarder.listen_mode must be %q or %q", constants.ListenModePrivate, constants.ListenModePublic))
	}
	if c.Forwarder.KeepAliveInterval <= 0 {
		errs = append(errs, errors.New("forwarder.keepalive_interval must be positive"))
	}
	if c.Forwarder.StaleBufferThreshold <= 0 {
		errs = append(errs, errors.New("forwarder.stale_buffer_threshold must be positive"))
	}
	if c.Forwarder.ReceivedFramesHistory < 0 {
		errs = append(errs, errors.New("forwarder.received_frames_history must not be negative"))
	}
	if c.Mirror.Enabled {
		if c.Mirror.Broker == "" {
			errs = append(errs, errors.New("mirror.broker is required when the mirror is enabled"))
		}
		if c.Mirror.Topic == "" {
			errs = append(errs, errors.New("mirror.topic is required when the mirror is enabled"))
		}
		if c.Mirror.QOS < 0 || c.Mirror.QOS > 2 {
			errs = append(errs, fmt.Errorf("mirror.qos %d out of range", c.Mirror.QOS))
		}
	}
	return errors.Join(errs...)
}

// ListenAddress returns host:port for the configured listen mode.
func (c *Config) ListenAddress() string {
	host := "127.0.0.1"
	if c.Forwarder.ListenMode == constants.ListenModePublic {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Forwarder.ListenPort))
}
