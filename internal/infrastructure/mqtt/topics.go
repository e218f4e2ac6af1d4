package mqtt

import "fmt"

// Registry change events arrive on a per-application topic. With a
// group ID configured, instances join an MQTT v5 shared subscription so
// the broker load-balances events across the fleet.
const (
	// TopicPrefixApp is the base for per-application event topics.
	TopicPrefixApp = "app"

	// sharedPrefix is the MQTT shared-subscription prefix.
	sharedPrefix = "$share"
)

// Topics provides builders for the operator's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// AppEvents returns the topic carrying registry change events for one
// application.
//
// Example: app/factory-a
func (Topics) AppEvents(application string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixApp, application)
}

// SharedAppEvents returns the shared-subscription form of AppEvents.
// All subscribers naming the same group receive a partition of the
// event stream instead of a full copy.
//
// Example: $share/twin-operators/app/factory-a
func (Topics) SharedAppEvents(group, application string) string {
	return fmt.Sprintf("%s/%s/%s/%s", sharedPrefix, group, TopicPrefixApp, application)
}

// EventSubscription picks the right subscription topic for the
// configured group. An empty group means every instance sees every
// event.
func (t Topics) EventSubscription(group, application string) string {
	if group == "" {
		return t.AppEvents(application)
	}
	return t.SharedAppEvents(group, application)
}
