package protocol

import "bytes"

// MaxPendingFrame bounds the bytes an Assembler holds while waiting for
// the rest of a frame. A longer partial frame is garbage and is dropped.
const MaxPendingFrame = 256

// Assembler reassembles frames that arrive split across reads.
//
// A frame is complete once it carries its terminator ("?" after the last
// field, "?%" for a state broadcast) or once the next "@" arrives. An
// unterminated tail is carried into the next Feed.
//
// Thread Safety: an Assembler belongs to one reader and is not safe for
// concurrent use.
type Assembler struct {
	buf     []byte
	dropped uint64
}

// Feed appends chunk to the pending bytes and returns the commands of
// every frame completed by it. NUL padding is removed and frames that
// decode to NoOp are skipped.
func (a *Assembler) Feed(chunk []byte) []Command {
	for _, b := range chunk {
		if b != 0 {
			a.buf = append(a.buf, b)
		}
	}

	var cmds []Command
	for {
		start := bytes.IndexByte(a.buf, frameStart)
		if start < 0 {
			a.buf = a.buf[:0]
			break
		}
		a.buf = a.buf[start:]

		segment := a.buf
		next := bytes.IndexByte(a.buf[1:], frameStart)
		if next >= 0 {
			segment = a.buf[:next+1]
		}

		n := frameLength(segment)
		if n == 0 {
			if next < 0 {
				break
			}
			n = len(segment)
		}

		if cmd := Decode(segment[:n]); cmd.Tag() != "" {
			cmds = append(cmds, cmd)
		}
		a.buf = a.buf[n:]
	}

	if len(a.buf) > MaxPendingFrame {
		a.dropped += uint64(len(a.buf))
		a.buf = a.buf[:0]
	}
	if len(a.buf) == 0 {
		a.buf = nil
	} else {
		a.buf = append([]byte(nil), a.buf...)
	}
	return cmds
}

// Pending returns the number of bytes held for an incomplete frame.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Dropped returns how many bytes were discarded for exceeding
// MaxPendingFrame.
func (a *Assembler) Dropped() uint64 {
	return a.dropped
}

// frameLength returns the length of the terminated frame at the start of
// buf, or 0 if its terminator has not arrived. Unknown tags are complete
// as soon as the tag is.
func frameLength(buf []byte) int {
	if len(buf) < 1+tagLength {
		return 0
	}
	head := 1 + tagLength
	body := buf[head:]

	switch string(buf[1:head]) {
	case TagDeviceState, TagActuate:
		return afterSeparators(body, 2, head)
	case TagHeartbeatSnapshot, TagZoneTrigger:
		return afterSeparators(body, 1, head)
	case TagStateBroadcast:
		i := bytes.Index(body, []byte(fieldSeparator+frameTrailer))
		if i < 0 {
			return 0
		}
		return head + i + 2
	default:
		return head
	}
}

// afterSeparators returns the offset just past the nth field separator in
// body, shifted by head, or 0 if body holds fewer than n.
func afterSeparators(body []byte, n, head int) int {
	seen := 0
	for i, b := range body {
		if b == fieldSeparator[0] {
			seen++
			if seen == n {
				return head + i + 1
			}
		}
	}
	return 0
}
