// Package mqtt provides MQTT client connectivity for ClimaLink Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the reference transport for air-conditioner adapters. Each
// adapter opens its own Client scoped to one device: it subscribes to the
// device's status topic and publishes commands to the device's command
// topic. Topic names come from the device model's connection config
// ({deviceId} templates), not from this package.
//
// # Security Considerations
//
//   - TLS is required for production deployments (mqtts:// broker URLs)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	cfg, err := mqtt.ConfigForBroker(base, "mqtt://broker:1883", "climalink-ac-dev-42")
//	client, err := mqtt.Connect(cfg)
//	defer client.Close()
//
//	err = client.Subscribe("ac/dev-42/status", 1,
//	    func(topic string, payload []byte) error {
//	        // parse status payload
//	        return nil
//	    })
//
//	client.Publish("ac/dev-42/command", []byte(`{"action":"setPower","value":true}`), 1, false)
package mqtt
