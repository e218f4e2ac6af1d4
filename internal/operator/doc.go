// Package operator wires the reconciler to its two work sources: the
// registry event stream on the message bus and a periodic full scan.
//
// The event adapter decodes CloudEvents structured envelopes, drops
// everything that is not a registry change event, and queues affected
// device names. The dispatcher processes one device at a time: it
// re-fetches the device record, routes to Changed or Missing, and
// repeats until the reconciler reports Complete. The scanner walks the
// full device list on a ticker as a level-triggered safety net for
// missed events.
//
// Each finished dispatch is recorded in the journal and, when
// configured, as an InfluxDB measurement.
package operator
