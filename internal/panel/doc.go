// Package panel serves the browser display page.
//
// The page is a plain HTML and JavaScript client that joins the controller
// over WebSocket like any other display client: it renders every "@HDP"
// state frame it receives and sends "@ZSA<n>?" when a zone button is
// pressed. Zone buttons are built from GET /api/v1/zones.
//
// Assets are embedded with go:embed. During prop development a directory
// can be served instead so the page can be edited without a rebuild.
package panel
