// Package controller is the dispatch loop that ties the serial link,
// the display clients and the zone machine together.
//
// One goroutine runs Step repeatedly. Each step accepts at most one new
// client, sends a heartbeat snapshot if none has gone out recently, reads
// and dispatches whatever the microcontroller sent, then does the same
// for every client. None of these operations block.
//
// Device actuation always happens in the same order: update the store,
// broadcast the new snapshot to clients, then send the actuation frame
// to the microcontroller. Zone sequences actuate through TriggerDevice
// from their own goroutines and follow the same order.
//
// A serial failure is fatal. Run returns it whether it surfaced in the
// loop itself or in a zone goroutine.
package controller
