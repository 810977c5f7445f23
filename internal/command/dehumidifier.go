package command

import "github.com/ewest/midea/internal/midea"

// DehumidifierStatus queries the full dehumidifier status.
type DehumidifierStatus struct {
	sequenced
}

// NewDehumidifierStatus creates a status query stamped from seq.
func NewDehumidifierStatus(seq *Sequence) *DehumidifierStatus {
	c := &DehumidifierStatus{}
	c.seq = seq
	c.data = []byte{
		// Sync header, length, appliance type.
		0xAA, 0x20, 0xA1,
		// Frame sync check, reserved, message id, protocol versions.
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// Message type: query.
		0x03,
		// Body: 0x41 requests status.
		0x41, 0x81, 0x00, 0xFF, 0x03, 0xFF,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// Command id, CRC8, checksum.
		0x00, 0x00, 0x00,
	}
	return c
}

// DehumidifierSet carries dehumidifier control flags. Zero value fields are
// written explicitly, so every setting must be populated before Finalize.
type DehumidifierSet struct {
	sequenced
}

// NewDehumidifierSet creates a control command stamped from seq.
func NewDehumidifierSet(seq *Sequence) *DehumidifierSet {
	c := &DehumidifierSet{}
	c.seq = seq
	c.data = []byte{
		// Sync header, length, appliance type.
		0xAA, 0x20, 0xA1,
		// Frame sync check, reserved, message id, protocol versions.
		0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		// Message type: control.
		0x02,
		// Body: 0x48 writes settings.
		0x48,
		// Flags (byte 11), mode (12), fan (13).
		0x00, 0x01, 0x32,
		0x00, 0x00, 0x00,
		// Humidity (byte 17).
		0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		// Command id, CRC8, checksum.
		0x00, 0x00, 0x00,
	}
	return c
}

// SetRunning turns the appliance on or off.
func (c *DehumidifierSet) SetRunning(on bool) { c.setBit(11, 0x01, on) }

// SetBeepPrompt enables the confirmation beep.
func (c *DehumidifierSet) SetBeepPrompt(on bool) { c.setBit(11, 0x40, on) }

// SetMode selects the operating mode (low nibble of byte 12).
func (c *DehumidifierSet) SetMode(mode uint8) { c.setBits(12, 0x0F, mode) }

// SetFanSpeed sets the fan speed (7 bits of byte 13).
func (c *DehumidifierSet) SetFanSpeed(speed uint8) { c.setBits(13, 0x7F, speed) }

// SetTargetHumidity sets the target relative humidity percentage.
func (c *DehumidifierSet) SetTargetHumidity(humidity uint8) { c.setBits(17, 0x7F, humidity) }

// SetPump turns the drain pump on or off.
func (c *DehumidifierSet) SetPump(on bool) { c.setBit(19, 0x08, on) }

// SetPumpFlag sets the pump disable flag.
func (c *DehumidifierSet) SetPumpFlag(on bool) { c.setBit(19, 0x10, on) }

// SetSleep turns sleep mode on or off.
func (c *DehumidifierSet) SetSleep(on bool) { c.setBit(19, 0x20, on) }

// SetIon turns anion mode on or off.
func (c *DehumidifierSet) SetIon(on bool) { c.setBit(19, 0x40, on) }

// SetVerticalSwing turns vertical fan swing on or off.
func (c *DehumidifierSet) SetVerticalSwing(on bool) { c.setBit(20, 0x20, on) }

// SetTankWarningLevel sets the tank level that triggers the full warning.
func (c *DehumidifierSet) SetTankWarningLevel(level uint8) { c.data[23] = level }

// DehumidifierResponse is the decoded dehumidifier status payload.
type DehumidifierResponse struct {
	Fault          bool
	Running        bool
	IMode          bool
	TimingMode     bool
	QuickCheck     bool
	Mode           uint8
	ModeFC         uint8
	FanSpeed       uint8
	OnTimer        bool
	OnTimerHours   uint8
	OnTimerMinutes uint8
	OffTimer       bool
	OffTimerHours  uint8
	OffTimerMinute uint8

	TargetHumidity float64

	FilterIndicator bool
	IonMode         bool
	SleepSwitch     bool
	PumpSwitchFlag  bool
	PumpSwitch      bool
	DisplayClass    uint8
	Defrosting      bool
	TankLevel       uint8
	TankFull        bool
	DustTime        int
	RareShow        uint8
	Dust            uint8
	PM25            int
	TankWarning     uint8

	CurrentHumidity   uint8
	IndoorTemperature float64

	// Fields below are absent on short payloads.
	LightClass      *uint8
	VerticalSwing   *bool
	HorizontalSwing *bool
	LightValue      *uint8
	ErrorCode       uint8
}

// NewDehumidifierResponse decodes a dehumidifier status payload. The payload
// starts at the data type byte (after the 10-byte command header).
func NewDehumidifierResponse(data []byte) (*DehumidifierResponse, error) {
	if len(data) < 19 {
		return nil, midea.NewProtocolError("dehumidifier status payload too short")
	}
	r := &DehumidifierResponse{
		Fault:           data[1]&0x80 != 0,
		Running:         data[1]&0x01 != 0,
		IMode:           data[1]&0x04 != 0,
		TimingMode:      data[1]&0x10 != 0,
		QuickCheck:      data[1]&0x20 != 0,
		Mode:            data[2] & 0x0F,
		ModeFC:          data[2] >> 4,
		FanSpeed:        data[3] & 0x7F,
		OnTimer:         data[4]&0x80 != 0,
		OnTimerHours:    (data[4] & 0x7C) >> 2,
		OnTimerMinutes:  (data[4]&0x03)*15 + (data[6] >> 4),
		OffTimer:        data[5]&0x80 != 0,
		OffTimerHours:   (data[5] & 0x7C) >> 2,
		OffTimerMinute:  (data[5]&0x03)*15 + (data[6] & 0x0F),
		FilterIndicator: data[9]&0x80 != 0,
		IonMode:         data[9]&0x40 != 0,
		SleepSwitch:     data[9]&0x20 != 0,
		PumpSwitchFlag:  data[9]&0x10 != 0,
		PumpSwitch:      data[9]&0x08 != 0,
		DisplayClass:    data[9] & 0x07,
		Defrosting:      data[10]&0x80 != 0,
		TankLevel:       data[10] & 0x7F,
		DustTime:        int(data[11]) * 2,
		RareShow:        (data[12] & 0x38) >> 3,
		Dust:            data[12] & 0x07,
		PM25:            int(data[13]) + int(data[14])*256,
		TankWarning:     data[15],
		CurrentHumidity: data[16],
	}
	r.TankFull = r.TankLevel >= 100

	humidity := float64(data[7])
	if humidity > 100 {
		humidity = 100
	}
	r.TargetHumidity = humidity + float64(data[8]&0x0F)*0.0625

	temp := (float64(data[17]) - 50) / 2
	if temp < -19 {
		temp = -20
	}
	if temp > 50 {
		temp = 50
	}
	decimal := float64(data[18]&0x0F) * 0.1
	if temp >= 0 {
		temp += decimal
	} else {
		temp -= decimal
	}
	r.IndoorTemperature = temp

	if len(data) > 19 {
		light := (data[19] & 0xC0) >> 6
		vertical := data[19]&0x20 != 0
		horizontal := data[19]&0x10 != 0
		r.LightClass = &light
		r.VerticalSwing = &vertical
		r.HorizontalSwing = &horizontal
	}
	if len(data) > 20 {
		value := data[20]
		r.LightValue = &value
	}
	if len(data) > 21 {
		r.ErrorCode = data[21]
	}
	return r, nil
}
