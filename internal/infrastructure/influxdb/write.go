package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReconcileMetric records the outcome of one reconciliation
// dispatch.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Device name the dispatch targeted
//   - trigger: What started the dispatch ("event" or "scan")
//   - outcome: Terminal outcome ("complete", "retry", "error")
//   - attempts: Number of reconciliation attempts in the dispatch
//   - duration: Wall-clock time the dispatch took
//
// Example:
//
//	client.WriteReconcileMetric("dev-1", "event", "complete", 2, 340*time.Millisecond)
func (c *Client) WriteReconcileMetric(device, trigger, outcome string, attempts int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"reconcile",
		map[string]string{
			"device":  device,
			"trigger": trigger,
			"outcome": outcome,
		},
		map[string]interface{}{
			"attempts":    attempts,
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteScanMetric records the result of one periodic full scan.
//
// Parameters:
//   - devices: Number of devices the scan listed
//   - dispatched: Number of devices actually handed to the dispatcher
//   - duration: Wall-clock time the scan took
func (c *Client) WriteScanMetric(devices, dispatched int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scan",
		map[string]string{},
		map[string]interface{}{
			"devices":     devices,
			"dispatched":  dispatched,
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
