package protocol

import (
	"strconv"
	"strings"
)

const (
	frameStart     = '@'
	fieldSeparator = "?"
	frameTrailer   = "%"
	tagLength      = 3

	// maxDecimalDigits keeps parsed fields well inside int range.
	maxDecimalDigits = 9

	// maxStateDigit is the largest state that fits the digit-per-device
	// encoding.
	maxStateDigit = 9
)

// Decode parses a single frame. NUL padding and surrounding whitespace
// are stripped first. It never fails: malformed input yields NoOp.
func Decode(raw []byte) Command {
	frame := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", ""))
	if len(frame) < 1+tagLength || frame[0] != frameStart {
		return NoOp{}
	}

	tag := frame[1 : 1+tagLength]
	fields := strings.Split(frame[1+tagLength:], fieldSeparator)

	switch tag {
	case TagDeviceState:
		id, state, ok := deviceFields(fields)
		if !ok {
			return NoOp{}
		}
		return ReportDeviceState{Index: id - 1, State: state}

	case TagActuate:
		id, state, ok := deviceFields(fields)
		if !ok {
			return NoOp{}
		}
		return ActuateDevice{Index: id - 1, State: state}

	case TagHeartbeatSnapshot:
		states, ok := parseDigits(fields[0])
		if !ok {
			return NoOp{}
		}
		return ReportHeartbeatSnapshot{States: states}

	case TagStateBroadcast:
		states, ok := parseDigits(fields[0])
		if !ok {
			return NoOp{}
		}
		return StateBroadcast{States: states}

	case TagZoneTrigger:
		zone, ok := parseDecimal(fields[0])
		if !ok {
			return NoOp{}
		}
		return ZoneTriggerRequest{Zone: zone}
	}

	return NoOp{}
}

// DecodeAll decodes every complete frame in a single chunk. Bytes before
// the first "@" are discarded, as are frames that decode to NoOp and an
// unterminated frame at the end. Readers that see frames split across
// reads use an Assembler instead.
func DecodeAll(raw []byte) []Command {
	var a Assembler
	return a.Feed(raw)
}

// EncodeStateFrame builds "@HDP<digits>?%" with one digit per device.
// Values outside 0-9 are clamped; the device store never holds them.
func EncodeStateFrame(states []int) []byte {
	buf := make([]byte, 0, 1+tagLength+len(states)+2)
	buf = append(buf, frameStart)
	buf = append(buf, TagStateBroadcast...)
	for _, s := range states {
		buf = append(buf, byte('0'+clampDigit(s)))
	}
	buf = append(buf, fieldSeparator...)
	buf = append(buf, frameTrailer...)
	return buf
}

// EncodeTriggerFrame builds "@HAL<deviceID>?<state>?" for the serial link.
// deviceID is 1-based.
func EncodeTriggerFrame(deviceID, state int) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, frameStart)
	buf = append(buf, TagActuate...)
	buf = strconv.AppendInt(buf, int64(deviceID), 10)
	buf = append(buf, fieldSeparator...)
	buf = strconv.AppendInt(buf, int64(state), 10)
	buf = append(buf, fieldSeparator...)
	return buf
}

// deviceFields reads the "<deviceID>?<state>" pair shared by PDS and HAL.
func deviceFields(fields []string) (id, state int, ok bool) {
	if len(fields) < 2 {
		return 0, 0, false
	}
	id, ok = parseDecimal(fields[0])
	if !ok {
		return 0, 0, false
	}
	state, ok = parseDecimal(fields[1])
	if !ok {
		return 0, 0, false
	}
	return id, state, true
}

// parseDecimal accepts unsigned decimal integers only; strconv.Atoi would
// also take signs.
func parseDecimal(s string) (int, bool) {
	if s == "" || len(s) > maxDecimalDigits {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func parseDigits(s string) ([]int, bool) {
	if s == "" {
		return nil, false
	}
	states := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return nil, false
		}
		states[i] = int(c - '0')
	}
	return states, true
}

func clampDigit(v int) int {
	switch {
	case v < 0:
		return 0
	case v > maxStateDigit:
		return maxStateDigit
	default:
		return v
	}
}
