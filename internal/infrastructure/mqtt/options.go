package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/climalink/climalink-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from ClimaLink config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - TLS configuration (if enabled)
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	// Broker URL
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)

	// Keepalive - broker sends PINGs to detect dead connections
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// ConfigForBroker derives an MQTTConfig for a specific broker URL.
//
// Device models carry broker URLs of the form mqtt://host:port or
// mqtts://host:port in their connection config. The base config supplies
// auth, QoS, and reconnect settings; the URL overrides host, port, and TLS.
// An empty brokerURL returns the base config with only the client ID changed.
func ConfigForBroker(base config.MQTTConfig, brokerURL, clientID string) (config.MQTTConfig, error) {
	cfg := base
	cfg.Broker.ClientID = clientID

	if brokerURL == "" {
		return cfg, nil
	}

	u, err := url.Parse(brokerURL)
	if err != nil {
		return cfg, fmt.Errorf("%w: %q: %w", ErrInvalidBrokerURL, brokerURL, err)
	}

	switch u.Scheme {
	case "mqtt", "tcp":
		cfg.Broker.TLS = false
	case "mqtts", "ssl", "tls":
		cfg.Broker.TLS = true
	default:
		return cfg, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}

	if u.Hostname() == "" {
		return cfg, fmt.Errorf("%w: missing host in %q", ErrInvalidBrokerURL, brokerURL)
	}
	cfg.Broker.Host = u.Hostname()

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return cfg, fmt.Errorf("%w: bad port in %q", ErrInvalidBrokerURL, brokerURL)
		}
		cfg.Broker.Port = port
	} else if cfg.Broker.TLS {
		cfg.Broker.Port = 8883
	} else {
		cfg.Broker.Port = 1883
	}

	if u.User != nil {
		cfg.Auth.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Auth.Password = pw
		}
	}

	return cfg, nil
}
