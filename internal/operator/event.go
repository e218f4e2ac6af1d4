package operator

import (
	"encoding/json"
	"fmt"
)

// RegistryEventType is the only event type that triggers reconciliation.
// Everything else on the application topic is ignored.
const RegistryEventType = "io.twinsync.registry.v1"

// Event is the structured CloudEvents envelope published by the device
// registry. Only the attributes the operator acts on are decoded; the
// device name travels as the "device" extension attribute.
type Event struct {
	SpecVersion string `json:"specversion"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`

	// Device is the extension attribute naming the affected device.
	Device string `json:"device"`
}

// decodeEvent parses a bus payload into an Event.
func decodeEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	return &event, nil
}
