// Package protocol implements the compact text protocol spoken on both the
// display client sockets and the serial link to the microcontroller.
//
// Frames are ASCII, shaped "@<TAG><body>", with body fields separated by
// "?". A frame ends at the next "@" or at the end of the read chunk.
//
//	serial -> core   @PDS<deviceID>?<state>?   device report
//	serial -> core   @HHS<digits>?             full state snapshot
//	client -> core   @ZSA<zone>?               zone trigger request
//	core -> client   @HDP<digits>?%            device state broadcast
//	core -> serial   @HAL<deviceID>?<state>?   actuate device
//
// Decoding is tolerant: anything that does not parse becomes NoOp and the
// caller drops it. Device IDs are 1-based on the wire and 0-based indexes
// once decoded.
package protocol
