package main

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/propctl/internal/device"
	"github.com/nerrad567/propctl/internal/infrastructure/logging"
	"github.com/nerrad567/propctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/propctl/internal/zone"
)

// The adapters below let the controller and the zone machine feed
// infrastructure packages without importing them. Each runs on the
// caller's goroutine and must return quickly: the MQTT side only queues
// and the InfluxDB side writes into the client's batching buffer.

// ─── MQTT ─────────────────────────────────────────────────────────

// queuePublisher is the part of mqtt.AsyncPublisher the mirror uses.
type queuePublisher interface {
	Retain(topic string, payload []byte) error
	Send(topic string, payload []byte) error
}

// mqttMirror publishes the state array as a retained message on every
// change and one event per zone run start and finish.
type mqttMirror struct {
	pub    queuePublisher
	topics mqtt.Topics
	log    *logging.Logger
}

func newMQTTMirror(pub queuePublisher, topics mqtt.Topics, log *logging.Logger) *mqttMirror {
	return &mqttMirror{pub: pub, topics: topics, log: log}
}

type statePayload struct {
	States    []int     `json:"states"`
	Device    int       `json:"device,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// StateChanged implements controller.StateObserver.
func (m *mqttMirror) StateChanged(change device.StateChange) {
	payload, err := json.Marshal(statePayload{
		States:    change.States,
		Device:    change.Device,
		Source:    change.Source,
		Timestamp: change.At.UTC(),
	})
	if err != nil {
		m.log.Error("encoding MQTT state", "error", err)
		return
	}
	if err := m.pub.Retain(m.topics.State(), payload); err != nil {
		m.log.Debug("MQTT state not queued", "error", err)
	}
}

// ZoneStarted implements zone.Observer.
func (m *mqttMirror) ZoneStarted(run zone.Run) { m.zoneEvent(run) }

// ZoneFinished implements zone.Observer.
func (m *mqttMirror) ZoneFinished(run zone.Run) { m.zoneEvent(run) }

func (m *mqttMirror) zoneEvent(run zone.Run) {
	payload, err := json.Marshal(run)
	if err != nil {
		m.log.Error("encoding MQTT zone event", "zone", run.Zone, "error", err)
		return
	}
	if err := m.pub.Send(m.topics.ZoneStatus(run.Zone), payload); err != nil {
		m.log.Debug("MQTT zone event not queued", "zone", run.Zone, "error", err)
	}
}

// ─── InfluxDB ─────────────────────────────────────────────────────

// telemetryWriter is the part of influxdb.Client the telemetry adapter uses.
type telemetryWriter interface {
	WriteDeviceState(device int, states []int, source string, at time.Time)
	WriteZoneRun(zone int, zoneName, source, status string, duration time.Duration, runErr string, at time.Time)
}

// influxTelemetry writes one point per state change and one per finished
// zone run.
type influxTelemetry struct {
	writer telemetryWriter
}

// StateChanged implements controller.StateObserver.
func (t *influxTelemetry) StateChanged(change device.StateChange) {
	t.writer.WriteDeviceState(change.Device, change.States, change.Source, change.At)
}

// ZoneStarted implements zone.Observer. Only finished runs are written.
func (t *influxTelemetry) ZoneStarted(zone.Run) {}

// ZoneFinished implements zone.Observer.
func (t *influxTelemetry) ZoneFinished(run zone.Run) {
	var duration time.Duration
	if run.DurationMS != nil {
		duration = time.Duration(*run.DurationMS) * time.Millisecond
	}
	at := run.StartedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	t.writer.WriteZoneRun(run.Zone, run.ZoneName, run.Source, string(run.Status), duration, run.Error, at)
}
