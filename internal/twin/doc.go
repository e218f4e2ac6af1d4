// Package twin models Things owned by the twin service and provides the
// HTTP client for managing them.
//
// Two Things exist per device: the device facet (name = device id,
// provisioned by another actor and only annotated here) and the sensor
// facet (name = "<device>/sensor", fully owned by this operator). A
// Thing carries synthetic features plus a reconciliation block of
// on-changed handlers, on-deleting handlers and timers. The handler and
// timer registries preserve insertion order, which OrderedMap provides
// across JSON and YAML round trips.
package twin
