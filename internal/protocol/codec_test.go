package protocol

import (
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "device report",
			raw:  "@PDS3?1?",
			want: ReportDeviceState{Index: 2, State: 1},
		},
		{
			name: "device report without trailing separator",
			raw:  "@PDS10?0",
			want: ReportDeviceState{Index: 9, State: 0},
		},
		{
			name: "device id zero decodes to a negative index",
			raw:  "@PDS0?1?",
			want: ReportDeviceState{Index: -1, State: 1},
		},
		{
			name: "heartbeat snapshot",
			raw:  "@HHS0123456789?",
			want: ReportHeartbeatSnapshot{States: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		},
		{
			name: "zone trigger",
			raw:  "@ZSA2?",
			want: ZoneTriggerRequest{Zone: 2},
		},
		{
			name: "state broadcast",
			raw:  "@HDP0010000000?%",
			want: StateBroadcast{States: []int{0, 0, 1, 0, 0, 0, 0, 0, 0, 0}},
		},
		{
			name: "actuate",
			raw:  "@HAL3?1?",
			want: ActuateDevice{Index: 2, State: 1},
		},
		{
			name: "null padding is stripped",
			raw:  "@ZSA1?\x00\x00\x00\x00",
			want: ZoneTriggerRequest{Zone: 1},
		},
		{
			name: "line terminator is stripped",
			raw:  "@ZSA3?\r\n",
			want: ZoneTriggerRequest{Zone: 3},
		},
		{name: "empty", raw: "", want: NoOp{}},
		{name: "only nulls", raw: "\x00\x00", want: NoOp{}},
		{name: "missing start marker", raw: "PDS3?1?", want: NoOp{}},
		{name: "short tag", raw: "@PD", want: NoOp{}},
		{name: "unknown tag", raw: "@XYZ1?", want: NoOp{}},
		{name: "device report missing state", raw: "@PDS3?", want: NoOp{}},
		{name: "device report non numeric", raw: "@PDSa?1?", want: NoOp{}},
		{name: "signed number rejected", raw: "@PDS-3?1?", want: NoOp{}},
		{name: "snapshot with letters", raw: "@HHS01x?", want: NoOp{}},
		{name: "empty snapshot", raw: "@HHS?", want: NoOp{}},
		{name: "zone missing", raw: "@ZSA?", want: NoOp{}},
		{name: "oversized number", raw: "@ZSA12345678901?", want: NoOp{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode([]byte(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeAll(t *testing.T) {
	raw := []byte("junk@ZSA1?@PDS3?1?@BAD@HHS0000000000?\x00\x00")

	got := DecodeAll(raw)
	want := []Command{
		ZoneTriggerRequest{Zone: 1},
		ReportDeviceState{Index: 2, State: 1},
		ReportHeartbeatSnapshot{States: make([]int, 10)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeAll() = %#v, want %#v", got, want)
	}
}

func TestDecodeAll_UnterminatedTailDiscarded(t *testing.T) {
	got := DecodeAll([]byte("@ZSA1?@PDS3?1"))
	want := []Command{ZoneTriggerRequest{Zone: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeAll() = %#v, want %#v", got, want)
	}
}

func TestDecodeAll_NoFrames(t *testing.T) {
	if got := DecodeAll([]byte("no frames here")); len(got) != 0 {
		t.Errorf("DecodeAll() = %v, want empty", got)
	}
	if got := DecodeAll(nil); len(got) != 0 {
		t.Errorf("DecodeAll(nil) = %v, want empty", got)
	}
}

func TestEncodeStateFrame(t *testing.T) {
	got := string(EncodeStateFrame([]int{0, 0, 1, 0, 0, 0, 0, 0, 0, 9}))
	if got != "@HDP0010000009?%" {
		t.Errorf("EncodeStateFrame() = %q", got)
	}
}

func TestEncodeStateFrame_ClampsOutOfRange(t *testing.T) {
	got := string(EncodeStateFrame([]int{-1, 12, 5}))
	if got != "@HDP095?%" {
		t.Errorf("EncodeStateFrame() = %q, want %q", got, "@HDP095?%")
	}
}

func TestEncodeTriggerFrame(t *testing.T) {
	got := string(EncodeTriggerFrame(3, 1))
	if got != "@HAL3?1?" {
		t.Errorf("EncodeTriggerFrame() = %q, want %q", got, "@HAL3?1?")
	}
}

func TestStateFrame_RoundTrip(t *testing.T) {
	snapshots := [][]int{
		{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{9, 9, 9},
		{1},
	}

	for _, states := range snapshots {
		cmd := Decode(EncodeStateFrame(states))
		got, ok := cmd.(StateBroadcast)
		if !ok {
			t.Fatalf("decoded %T, want StateBroadcast", cmd)
		}
		if !reflect.DeepEqual(got.States, states) {
			t.Errorf("round trip = %v, want %v", got.States, states)
		}
	}
}

func TestTriggerFrame_RoundTrip(t *testing.T) {
	for id := 1; id <= 10; id++ {
		cmd := Decode(EncodeTriggerFrame(id, 1))
		got, ok := cmd.(ActuateDevice)
		if !ok {
			t.Fatalf("decoded %T, want ActuateDevice", cmd)
		}
		if got.Index != id-1 || got.State != 1 {
			t.Errorf("round trip for device %d = %+v", id, got)
		}
	}
}
