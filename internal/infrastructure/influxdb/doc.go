// Package influxdb records show telemetry in InfluxDB 2.x.
//
// Two measurements are written:
//
//	device_state  tags: device, source       fields: state (int), states (string)
//	zone_run      tags: zone, zone_name, source, status
//	              fields: duration_ms (int), error (string, failed runs only)
//
// Writes go through the client library's non-blocking WriteAPI, which
// batches points and sends them from its own goroutine. Write failures are
// reported asynchronously through the callback set with SetOnError.
package influxdb
