// Package session owns the set of connected display clients.
//
// Every client, whether a raw TCP socket or a browser WebSocket, is a Conn:
// a duplex channel with a transport-assigned ID. A read pump goroutine per
// connection feeds a buffered inbox so that Poll never blocks, which lets
// the controller's dispatch loop service every client from one goroutine.
//
// New connections arrive through a Backlog. The TCP accept loop (Serve)
// and the WebSocket upgrade handler both Offer into it, and the dispatch
// loop takes at most one per cycle with Registry.AcceptNew.
//
// The Registry is the only authority over membership. A client whose read
// or write fails is closed and removed on the spot; nothing else is told.
//
// Thread Safety: Registry, Backlog and all Conn implementations are safe
// for concurrent use. Broadcasts are serialised so frames never interleave
// on a connection.
package session
