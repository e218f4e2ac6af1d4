package twin

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Thing is the persisted twin representation of a device or a device
// facet in the twin service.
type Thing struct {
	Metadata       Metadata                    `json:"metadata"`
	SyntheticState map[string]SyntheticFeature `json:"syntheticState,omitempty"`
	Reconciliation Reconciliation              `json:"reconciliation"`
}

// Metadata is the identity and free-form annotation set of a Thing.
type Metadata struct {
	Application       string            `json:"application"`
	Name              string            `json:"name"`
	UID               string            `json:"uid,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
	Generation        int64             `json:"generation,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// Reconciliation holds the scripted handlers and timers attached to a
// Thing. The three registries preserve insertion order.
type Reconciliation struct {
	Changed  OrderedMap[Changed]  `json:"changed"`
	Deleting OrderedMap[Deleting] `json:"deleting"`
	Timers   OrderedMap[Timer]    `json:"timers"`
}

// SyntheticType defines how a synthetic feature's value is computed.
// Exactly one of the fields is set.
type SyntheticType struct {
	JavaScript string `json:"javaScript,omitempty"`
	Alias      string `json:"alias,omitempty"`
}

// SyntheticFeature is a computed Thing property: its definition plus the
// cached value and timestamp maintained by the twin service at runtime.
type SyntheticFeature struct {
	SyntheticType
	Value      json.RawMessage `json:"value,omitempty"`
	LastUpdate time.Time       `json:"lastUpdate"`
}

// Code is a scripted handler body.
type Code struct {
	JavaScript string `json:"javaScript"`
}

// Changed is an on-state-changed handler. LastLog is runtime-only.
type Changed struct {
	Code    Code     `json:"code"`
	LastLog []string `json:"lastLog,omitempty"`
}

// Deleting is an on-state-deleting handler.
type Deleting struct {
	Code Code `json:"code"`
}

// Timer is a periodically triggered handler. All fields other than Code
// and Period are runtime-only and owned by the twin service.
type Timer struct {
	Code         Code       `json:"code"`
	Period       Duration   `json:"period"`
	Stopped      bool       `json:"stopped,omitempty"`
	LastStarted  *time.Time `json:"lastStarted,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastLog      []string   `json:"lastLog,omitempty"`
	InitialDelay *Duration  `json:"initialDelay,omitempty"`
}

// NewThing creates an empty Thing for the given application and name.
func NewThing(application, name string) *Thing {
	return &Thing{
		Metadata: Metadata{
			Application: application,
			Name:        name,
		},
	}
}

// SensorName returns the name of the sensor facet Thing for a device.
func SensorName(device string) string {
	return device + "/sensor"
}

// SetAnnotation sets a metadata annotation, allocating the map if needed.
func (t *Thing) SetAnnotation(key, value string) {
	if t.Metadata.Annotations == nil {
		t.Metadata.Annotations = make(map[string]string)
	}
	t.Metadata.Annotations[key] = value
}

// Duration wraps time.Duration with human-readable serialization
// ("30s", "5m") in both JSON and YAML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the human-readable form.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Accepts a duration string
// or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("twin: parsing duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("twin: invalid duration value %v", raw)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("twin: parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
