package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementDeviceState = "device_state"
	measurementZoneRun     = "zone_run"

	// snapshotTag marks points written for a whole-array replace.
	snapshotTag = "all"
)

// WriteDeviceState records a state change. device is 1-based; 0 means the
// whole array was replaced and only the states field is written.
func (c *Client) WriteDeviceState(device int, states []int, source string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceStatePoint(device, states, source, at))
}

// WriteZoneRun records a finished zone run.
func (c *Client) WriteZoneRun(zone int, zoneName, source, status string, duration time.Duration, runErr string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(zoneRunPoint(zone, zoneName, source, status, duration, runErr, at))
}

func deviceStatePoint(device int, states []int, source string, at time.Time) *write.Point {
	tag := snapshotTag
	fields := map[string]any{"states": digits(states)}
	if device > 0 {
		tag = strconv.Itoa(device)
		if device <= len(states) {
			fields["state"] = int64(states[device-1])
		}
	}
	return write.NewPoint(measurementDeviceState,
		map[string]string{"device": tag, "source": source},
		fields, at)
}

func zoneRunPoint(zone int, zoneName, source, status string, duration time.Duration, runErr string, at time.Time) *write.Point {
	fields := map[string]any{"duration_ms": duration.Milliseconds()}
	if runErr != "" {
		fields["error"] = runErr
	}
	return write.NewPoint(measurementZoneRun,
		map[string]string{
			"zone":      strconv.Itoa(zone),
			"zone_name": zoneName,
			"source":    source,
			"status":    status,
		},
		fields, at)
}

func digits(states []int) string {
	var b strings.Builder
	b.Grow(len(states))
	for _, s := range states {
		b.WriteString(strconv.Itoa(s))
	}
	return b.String()
}
