// Package effect plays named media and display effects.
//
// An effect is either a local command (an audio player, a projector
// script) or a URL on a remote display that starts playback when fetched.
// PlayEffect returns at once; the effect runs in its own goroutine and
// its outcome is only logged. Nothing an effect does can reach the zone
// sequence that asked for it.
package effect
