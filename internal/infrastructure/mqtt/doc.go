// Package mqtt provides MQTT connectivity for the registry event bus.
//
// It wraps paho.mqtt.golang with operator-specific patterns for
// connection management, subscription handling, and reconnection.
//
// # Reconnection
//
// Paho's built-in auto-reconnect is disabled. The client owns its retry
// policy: exponential backoff between the configured initial and
// maximum delay, giving up after the configured elapsed budget. When
// the policy is exhausted a terminal error is delivered on Fatal(); the
// receiver is expected to shut the process down so the orchestrator can
// restart it with a clean slate.
//
// # Shared Subscriptions
//
// With a group ID configured, instances subscribe through an MQTT v5
// shared subscription ($share/{group}/app/{application}) so the broker
// load-balances registry events across the fleet.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.EventSubscription(cfg.MQTT.GroupID, app)
//	client.Subscribe(topic, byte(cfg.MQTT.QoS), handleEvent)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Subscriptions are restored
// automatically after a successful reconnect.
package mqtt
