// Package influxdb provides InfluxDB connectivity for reconciliation
// metrics.
//
// It wraps the official influxdb-client-go v2 library with
// operator-specific patterns for connection management, metric writing,
// and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Per-dispatch reconciliation outcomes and durations
//   - Periodic full-scan statistics
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "twinsync",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReconcileMetric("dev-1", "event", "complete", 2, 340*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead when reconciling large
// fleets.
package influxdb
