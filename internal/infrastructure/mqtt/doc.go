// Package mqtt connects propctl to an MQTT broker.
//
// The broker is an optional side channel. propctl mirrors the device state
// array to a retained topic, publishes zone run events, and accepts zone
// triggers from home automation or show control software:
//
//	{prefix}/state                    retained JSON snapshot, every change
//	{prefix}/zone/{id}/status         zone started / finished events
//	{prefix}/command/zone/{id}        any payload triggers zone {id}
//	{prefix}/system/status            online/offline (LWT), retained
//
// Publish blocks until the broker acknowledges. Code on the dispatch path
// must go through AsyncPublisher instead, which never blocks its caller.
package mqtt
