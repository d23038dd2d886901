// Package api serves propctl's HTTP status API and the WebSocket endpoint
// for browser display clients.
//
// Routes:
//
//	GET  /api/v1/health                 liveness plus optional component checks
//	GET  /api/v1/state                  current device state array
//	GET  /api/v1/history?limit=N        recent state changes (journal)
//	GET  /api/v1/zones                  zone status
//	GET  /api/v1/zones/{id}             one zone
//	POST /api/v1/zones/{id}/trigger     start a zone sequence
//	GET  /api/v1/zones/{id}/runs        run journal for one zone
//	GET  /api/v1/runs/{runID}           one run
//	GET  {websocket.path}               display client, same wire protocol as TCP
//	GET  /panel/                        browser display page (see package panel)
//
// A WebSocket client is handed to the session backlog exactly like a TCP
// client; the dispatch loop cannot tell them apart.
package api
