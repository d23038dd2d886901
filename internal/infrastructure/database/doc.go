// Package database opens the SQLite file that holds propctl's journals:
// the zone run log and the device state history.
//
// Nothing in it is read back into the live device state on startup; the
// controller always boots with all devices at zero. The journals exist for
// the status API and for after-the-fact inspection of a show.
//
// Schema changes live in the top-level migrations package as paired
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql files, embedded into the binary
// and applied by Migrate.
package database
