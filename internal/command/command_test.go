package command

import (
	"bytes"
	"encoding/hex"
	"math"
	"testing"

	"github.com/ewest/midea/internal/crypto"
)

func TestDehumidifierStatus_KnownBytes(t *testing.T) {
	seq := &Sequence{}
	seq.Reset(0)
	got := NewDehumidifierStatus(seq).Finalize()

	want, _ := hex.DecodeString(
		"aa20a100000000000003418100ff03ff000000000000000000000000000001294f")
	if !bytes.Equal(got, want) {
		t.Errorf("Finalize() = %s, want %s", hex.EncodeToString(got), hex.EncodeToString(want))
	}
}

func TestSequencedFinalize(t *testing.T) {
	seq := &Sequence{}
	cmd := NewDehumidifierStatus(seq)

	first := cmd.Finalize()
	second := cmd.Finalize()

	if first[30] == second[30] {
		t.Error("consecutive Finalize() calls should produce distinct command ids")
	}
	if second[30] != first[30]+1 {
		t.Errorf("command id = %d, want %d", second[30], first[30]+1)
	}

	// CRC and checksum are pure functions of the rest of the command.
	for _, data := range [][]byte{first, second} {
		n := len(data)
		if data[n-2] != crypto.CRC8(data[10:n-2]) {
			t.Error("CRC byte does not match payload")
		}
		if data[n-1] != crypto.FrameChecksum(data[1:n-1]) {
			t.Error("checksum byte does not match frame")
		}
	}
}

func TestSequence_Wraps(t *testing.T) {
	seq := &Sequence{}
	seq.Reset(255)
	if got := seq.Next(); got != 0 {
		t.Errorf("Next() after 255 = %d, want 0", got)
	}
	if got := seq.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
}

func TestDehumidifierSet_Bits(t *testing.T) {
	tests := []struct {
		name   string
		apply  func(c *DehumidifierSet)
		index  int
		want   byte
		masked byte
	}{
		{
			name:  "running",
			apply: func(c *DehumidifierSet) { c.SetRunning(true) },
			index: 11, masked: 0x01, want: 0x01,
		},
		{
			name:  "beep",
			apply: func(c *DehumidifierSet) { c.SetBeepPrompt(true) },
			index: 11, masked: 0x40, want: 0x40,
		},
		{
			name:  "mode replaces default",
			apply: func(c *DehumidifierSet) { c.SetMode(3) },
			index: 12, masked: 0x0F, want: 0x03,
		},
		{
			name:  "fan speed replaces default",
			apply: func(c *DehumidifierSet) { c.SetFanSpeed(60) },
			index: 13, masked: 0x7F, want: 60,
		},
		{
			name:  "fan speed truncated to 7 bits",
			apply: func(c *DehumidifierSet) { c.SetFanSpeed(0x85) },
			index: 13, masked: 0x7F, want: 0x05,
		},
		{
			name:  "humidity",
			apply: func(c *DehumidifierSet) { c.SetTargetHumidity(45) },
			index: 17, masked: 0x7F, want: 45,
		},
		{
			name:  "pump and sleep and ion share a byte",
			apply: func(c *DehumidifierSet) { c.SetPump(true); c.SetSleep(true); c.SetIon(true) },
			index: 19, masked: 0x68, want: 0x68,
		},
		{
			name:  "vertical swing",
			apply: func(c *DehumidifierSet) { c.SetVerticalSwing(true) },
			index: 20, masked: 0x20, want: 0x20,
		},
		{
			name:  "tank warning level",
			apply: func(c *DehumidifierSet) { c.SetTankWarningLevel(65) },
			index: 23, masked: 0xFF, want: 65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewDehumidifierSet(&Sequence{})
			tt.apply(cmd)
			data := cmd.Finalize()
			if got := data[tt.index] & tt.masked; got != tt.want {
				t.Errorf("byte %d & 0x%02x = 0x%02x, want 0x%02x", tt.index, tt.masked, got, tt.want)
			}
		})
	}
}

func TestAirConditionerSet_Temperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		wantByte    byte
	}{
		{name: "whole degrees", temperature: 24, wantByte: 24 - 16},
		{name: "half degree", temperature: 21.5, wantByte: (21 - 16) | 0x10},
		{name: "below range clears", temperature: 10, wantByte: 0},
		{name: "above range clears", temperature: 35, wantByte: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewAirConditionerSet(&Sequence{})
			cmd.SetTemperature(tt.temperature)
			data := cmd.Finalize()
			if got := data[12] & 0x1F; got != tt.wantByte {
				t.Errorf("temperature bits = 0x%02x, want 0x%02x", got, tt.wantByte)
			}
		})
	}
}

func TestAirConditionerSet_Layout(t *testing.T) {
	cmd := NewAirConditionerSet(&Sequence{})
	cmd.SetMode(4)
	cmd.SetFrostProtect(true)
	cmd.SetComfortMode(true)
	data := cmd.Finalize()

	if len(data) != 36 {
		t.Fatalf("command length = %d, want 36", len(data))
	}
	// Declared length counts every byte after the sync byte, so a 0x23
	// length requires a 36-byte frame.
	if data[1] != 0x23 {
		t.Errorf("declared length = 0x%02x, want 0x23", data[1])
	}
	if int(data[1]) != len(data)-1 {
		t.Errorf("declared length %d does not match frame length %d", data[1], len(data))
	}
	if got := data[12] >> 5; got != 4 {
		t.Errorf("mode = %d, want 4", got)
	}
	if data[31]&0x80 == 0 {
		t.Error("frost protect bit not set")
	}
	if data[32]&0x01 == 0 {
		t.Error("comfort mode bit not set")
	}
	if data[33] != 0 {
		t.Errorf("reserved byte = 0x%02x, want 0x00", data[33])
	}
}

func TestAirConditionerSet_KnownBytes(t *testing.T) {
	cmd := NewAirConditionerSet(&Sequence{})
	data := cmd.Finalize()

	want := "aa23ac0000000000000240000000000000000000000000000000000000000100000027c7"
	if got := hex.EncodeToString(data); got != want {
		t.Errorf("finalized command = %s, want %s", got, want)
	}
}

func TestNewDehumidifierResponse(t *testing.T) {
	data := make([]byte, 22)
	data[1] = 0x81  // fault + running
	data[2] = 0x23  // mode 3, mode_fc 2
	data[3] = 0x7F  // fan speed 127
	data[7] = 110   // humidity above 100, clamps
	data[9] = 0x48  // ion + pump
	data[10] = 0xE4 // defrosting + tank level 100
	data[13] = 0x10 // pm2.5 low byte
	data[14] = 0x01 // pm2.5 high byte
	data[16] = 47   // current humidity
	data[17] = 80   // (80-50)/2 = 15 degrees
	data[18] = 0x05 // +0.5 degrees
	data[19] = 0x20 // vertical swing
	data[21] = 38   // bucket full error

	r, err := NewDehumidifierResponse(data)
	if err != nil {
		t.Fatalf("NewDehumidifierResponse() error = %v", err)
	}

	if !r.Fault || !r.Running {
		t.Error("fault and running flags should be set")
	}
	if r.Mode != 3 || r.ModeFC != 2 {
		t.Errorf("mode = %d/%d, want 3/2", r.Mode, r.ModeFC)
	}
	if r.FanSpeed != 127 {
		t.Errorf("fan speed = %d, want 127", r.FanSpeed)
	}
	if r.TargetHumidity != 100 {
		t.Errorf("target humidity = %v, want clamped 100", r.TargetHumidity)
	}
	if !r.IonMode || !r.PumpSwitch {
		t.Error("ion and pump flags should be set")
	}
	if !r.Defrosting || r.TankLevel != 100 || !r.TankFull {
		t.Errorf("tank state = defrost %v level %d full %v", r.Defrosting, r.TankLevel, r.TankFull)
	}
	if r.PM25 != 272 {
		t.Errorf("pm2.5 = %d, want 272", r.PM25)
	}
	if r.CurrentHumidity != 47 {
		t.Errorf("current humidity = %d, want 47", r.CurrentHumidity)
	}
	if r.IndoorTemperature != 15.5 {
		t.Errorf("indoor temperature = %v, want 15.5", r.IndoorTemperature)
	}
	if r.VerticalSwing == nil || !*r.VerticalSwing {
		t.Error("vertical swing should be present and set")
	}
	if r.ErrorCode != 38 {
		t.Errorf("error code = %d, want 38", r.ErrorCode)
	}
}

func TestNewDehumidifierResponse_ShortPayload(t *testing.T) {
	// 19 bytes parses with the optional tail absent.
	data := make([]byte, 19)
	data[17] = 50
	r, err := NewDehumidifierResponse(data)
	if err != nil {
		t.Fatalf("NewDehumidifierResponse() error = %v", err)
	}
	if r.VerticalSwing != nil || r.LightValue != nil {
		t.Error("optional fields should be absent on short payload")
	}
	if r.ErrorCode != 0 {
		t.Errorf("error code = %d, want 0", r.ErrorCode)
	}

	if _, err := NewDehumidifierResponse(make([]byte, 10)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestNewAirConditionerResponse(t *testing.T) {
	data := make([]byte, 24)
	data[0] = 0xC0
	data[1] = 0x01 // running
	data[2] = 0xB5 // mode 5, temperature 21.5
	data[3] = 40
	data[11] = 81   // indoor (81-50)/2 = 15.5
	data[12] = 0xFF // outdoor absent
	data[14] = 0x05 // pmv bits; screen shown
	data[16] = 0
	data[21] = 0x80 // frost protect
	data[22] = 0x01 // comfort mode

	r, err := NewAirConditionerResponse(data)
	if err != nil {
		t.Fatalf("NewAirConditionerResponse() error = %v", err)
	}

	if r.Mode != 5 {
		t.Errorf("mode = %d, want 5", r.Mode)
	}
	if r.TargetTemperature != 21.5 {
		t.Errorf("target temperature = %v, want 21.5", r.TargetTemperature)
	}
	if r.OutdoorTemperature != nil {
		t.Error("outdoor temperature should be absent for 0xFF")
	}
	if r.IndoorTemperature == nil || *r.IndoorTemperature != 15.5 {
		t.Errorf("indoor temperature = %v, want 15.5", r.IndoorTemperature)
	}
	if math.Abs(r.PMV-(-1.0)) > 1e-9 {
		t.Errorf("pmv = %v, want -1.0", r.PMV)
	}
	if !r.ShowScreen {
		t.Error("show screen should be true")
	}
	if !r.FrostProtect || !r.ComfortMode {
		t.Error("frost protect and comfort mode should be set")
	}
}

func TestNewAirConditionerResponse_AbsentTemperatures(t *testing.T) {
	// A zero temperature byte means no measure, not zero degrees.
	data := make([]byte, 17)
	data[11] = 0
	data[12] = 0

	r, err := NewAirConditionerResponse(data)
	if err != nil {
		t.Fatalf("NewAirConditionerResponse() error = %v", err)
	}
	if r.IndoorTemperature != nil {
		t.Errorf("indoor temperature = %v, want absent", *r.IndoorTemperature)
	}
	if r.OutdoorTemperature != nil {
		t.Errorf("outdoor temperature = %v, want absent", *r.OutdoorTemperature)
	}
	// Short payload falls back to the turbo byte for frost protect.
	if r.FrostProtect {
		t.Error("frost protect should be unset")
	}
}

func TestCapabilitiesQuery_Finalize(t *testing.T) {
	got := NewCapabilitiesQuery(0xA1).Finalize()
	if len(got) != 15 {
		t.Fatalf("command length = %d, want 15", len(got))
	}
	if got[10] != 0xB5 {
		t.Errorf("body type = 0x%02x, want 0xb5", got[10])
	}
	if got[13] != crypto.CRC8(got[10:13]) {
		t.Error("CRC byte does not match payload")
	}
	if got[14] != crypto.FrameChecksum(got[1:14]) {
		t.Error("checksum byte does not match frame")
	}

	more := NewCapabilitiesQueryMore(0xA1).Finalize()
	if more[12] != 0x01 {
		t.Error("follow-up query should set the continuation byte")
	}
}

func TestParseCapabilities(t *testing.T) {
	table := map[CapabilityID]string{
		{0x10, 0x02}: "fan_speed",
		{0x1E, 0x02}: "ion",
	}

	caps := map[string]int{}
	data := []byte{
		0xB5, 0x03,
		0x10, 0x02, 0x01, 0x07, // fan_speed = 7
		0x99, 0x02, 0x01, 0x01, // unknown, skipped
		0x1E, 0x02, 0x01, 0x01, // ion = 1
	}
	ParseCapabilities(caps, data, table, nil)

	if caps["fan_speed"] != 7 {
		t.Errorf("fan_speed = %d, want 7", caps["fan_speed"])
	}
	if caps["ion"] != 1 {
		t.Errorf("ion = %d, want 1", caps["ion"])
	}
	if len(caps) != 2 {
		t.Errorf("capabilities = %v, want 2 entries", caps)
	}
}

func TestParseCapabilities_Intercept(t *testing.T) {
	// An intercepted entry spans extra bytes beyond the standard step.
	intercept := func(caps map[string]int, data []byte, i int) int {
		if data[i] == 0x25 && data[i+1] == 0x02 {
			for j := 0; j < 7; j++ {
				caps[string(rune('a'+j))] = int(data[i+3+j])
			}
			return 6
		}
		return -1
	}

	caps := map[string]int{}
	data := []byte{
		0xB5, 0x02,
		0x25, 0x02, 0x07, 1, 2, 3, 4, 5, 6, 7,
		0x10, 0x02, 0x01, 0x05,
	}
	table := map[CapabilityID]string{{0x10, 0x02}: "fan_speed"}
	ParseCapabilities(caps, data, table, intercept)

	if caps["a"] != 1 || caps["g"] != 7 {
		t.Errorf("intercepted values = %v", caps)
	}
	if caps["fan_speed"] != 5 {
		t.Errorf("fan_speed = %d, want 5", caps["fan_speed"])
	}
}
