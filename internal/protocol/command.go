package protocol

// Frame tags.
const (
	TagDeviceState       = "PDS"
	TagHeartbeatSnapshot = "HHS"
	TagZoneTrigger       = "ZSA"
	TagStateBroadcast    = "HDP"
	TagActuate           = "HAL"
)

// Command is a decoded frame. The concrete types below are the only
// implementations.
type Command interface {
	// Tag returns the three-letter frame tag, or "" for NoOp.
	Tag() string
}

// ReportDeviceState is a single device report from the serial link. The
// controller treats it as a trigger request for that device.
type ReportDeviceState struct {
	Index int // 0-based device index
	State int
}

// ReportHeartbeatSnapshot carries the microcontroller's full state array.
type ReportHeartbeatSnapshot struct {
	States []int
}

// ZoneTriggerRequest asks for a zone's effect sequence to fire.
type ZoneTriggerRequest struct {
	Zone int
}

// StateBroadcast is the frame the core sends to display clients. It is
// decoded only by peers (and tests); the controller ignores it.
type StateBroadcast struct {
	States []int
}

// ActuateDevice is the frame the core writes to the serial link. Like
// StateBroadcast it is decoded only by peers.
type ActuateDevice struct {
	Index int // 0-based device index
	State int
}

// NoOp is the result of decoding anything unrecognised or malformed.
type NoOp struct{}

func (ReportDeviceState) Tag() string       { return TagDeviceState }
func (ReportHeartbeatSnapshot) Tag() string { return TagHeartbeatSnapshot }
func (ZoneTriggerRequest) Tag() string      { return TagZoneTrigger }
func (StateBroadcast) Tag() string          { return TagStateBroadcast }
func (ActuateDevice) Tag() string           { return TagActuate }
func (NoOp) Tag() string                    { return "" }
