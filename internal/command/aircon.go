package command

import "github.com/ewest/midea/internal/midea"

// AirConditionerStatus queries the full air conditioner status.
type AirConditionerStatus struct {
	sequenced
}

// NewAirConditionerStatus creates a status query stamped from seq.
func NewAirConditionerStatus(seq *Sequence) *AirConditionerStatus {
	c := &AirConditionerStatus{}
	c.seq = seq
	c.data = []byte{
		// Sync header, length, appliance type.
		0xAA, 0x20, 0xAC,
		// Frame sync check, reserved, message id, protocol versions.
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// Message type: query.
		0x03,
		// Body: 0x41 requests status, byte 17 requests indoor temperature.
		0x41, 0x81, 0x00, 0xFF, 0x03, 0xFF,
		0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// Command id, CRC8, checksum.
		0x00, 0x00, 0x00,
	}
	return c
}

// AirConditionerSet carries air conditioner control flags.
type AirConditionerSet struct {
	sequenced
}

// NewAirConditionerSet creates a control command stamped from seq.
func NewAirConditionerSet(seq *Sequence) *AirConditionerSet {
	c := &AirConditionerSet{}
	c.seq = seq
	c.data = []byte{
		// Sync header, length, appliance type.
		0xAA, 0x23, 0xAC,
		// Frame sync check, reserved, message id, protocol versions.
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// Message type: control.
		0x02,
		// Body: 0x40 writes settings.
		0x40,
		// Flags (byte 11), mode+temperature (12), fan (13).
		0x00, 0x00, 0x00,
		0x00, 0x00, 0x00,
		// Swing (byte 17).
		0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		// Command id.
		0x00,
		// Frost protect (byte 31), comfort mode (byte 32), reserved.
		0x00, 0x00, 0x00,
		// CRC8, checksum.
		0x00, 0x00,
	}
	return c
}

// SetRunning turns the appliance on or off.
func (c *AirConditionerSet) SetRunning(on bool) { c.setBit(11, 0x01, on) }

// SetBeepPrompt enables the confirmation beep.
func (c *AirConditionerSet) SetBeepPrompt(on bool) { c.setBit(11, 0x40, on) }

// SetMode selects the operating mode (top three bits of byte 12).
func (c *AirConditionerSet) SetMode(mode uint8) { c.setBits(12, 0xE0, mode<<5) }

// SetTemperature sets the target temperature in degrees Celsius. Whole
// degrees are offset by 16 in the low nibble of byte 12; a half degree sets
// bit 4. Out-of-range values clear the temperature field.
func (c *AirConditionerSet) SetTemperature(temperature float64) {
	c.setBits(12, 0x0F, 0)
	c.setBit(12, 0x10, false)
	if temperature < midea.ACMinTemperature || temperature > midea.ACMaxTemperature {
		return
	}
	whole := int(temperature)
	c.setBits(12, 0x0F, byte(whole))
	c.setBit(12, 0x10, temperature-float64(whole) == 0.5)
}

// SetFanSpeed sets the fan speed (7 bits of byte 13).
func (c *AirConditionerSet) SetFanSpeed(speed uint8) { c.setBits(13, 0x7F, speed) }

// SetHorizontalSwing turns horizontal fan swing on or off.
func (c *AirConditionerSet) SetHorizontalSwing(on bool) {
	c.setBit(17, 0x03, false)
	if on {
		c.data[17] |= 0x73
	}
}

// SetVerticalSwing turns vertical fan swing on or off.
func (c *AirConditionerSet) SetVerticalSwing(on bool) {
	c.setBit(17, 0x0C, false)
	if on {
		c.data[17] |= 0x3C
	}
}

// SetTurboFan turns turbo fan mode on or off.
func (c *AirConditionerSet) SetTurboFan(on bool) { c.setBit(18, 0x20, on) }

// SetDryer turns dryer mode on or off.
func (c *AirConditionerSet) SetDryer(on bool) { c.setBit(19, 0x04, on) }

// SetPurifier turns the air purifier on or off.
func (c *AirConditionerSet) SetPurifier(on bool) { c.setBit(19, 0x20, on) }

// SetEco turns eco mode on or off.
func (c *AirConditionerSet) SetEco(on bool) { c.setBit(19, 0x80, on) }

// SetComfortSleep turns comfort sleep on or off; the comfort value bits in
// byte 18 follow the switch.
func (c *AirConditionerSet) SetComfortSleep(on bool) {
	c.setBit(20, 0x80, on)
	c.setBit(18, 0x03, on)
}

// SetFahrenheit selects Fahrenheit for the appliance display.
func (c *AirConditionerSet) SetFahrenheit(on bool) { c.setBit(20, 0x04, on) }

// SetTurbo turns turbo (boost) mode on or off.
func (c *AirConditionerSet) SetTurbo(on bool) { c.setBit(20, 0x02, on) }

// SetFrostProtect turns frost protection on or off.
func (c *AirConditionerSet) SetFrostProtect(on bool) { c.setBit(31, 0x80, on) }

// SetComfortMode turns comfort mode on or off.
func (c *AirConditionerSet) SetComfortMode(on bool) { c.setBit(32, 0x01, on) }

// AirConditionerResponse is the decoded air conditioner status payload.
type AirConditionerResponse struct {
	Running        bool
	IMode          bool
	TimingMode     bool
	QuickCheck     bool
	ApplianceError bool

	Mode              uint8
	TargetTemperature float64
	FanSpeed          uint8

	OnTimer         bool
	OnTimerHours    uint8
	OnTimerMinutes  uint8
	OffTimer        bool
	OffTimerHours   uint8
	OffTimerMinutes uint8

	VerticalSwing   uint8
	HorizontalSwing uint8

	ComfortSleepValue uint8
	PowerSaving       bool
	LowFrequencyFan   bool
	TurboFan          bool
	FeelOwn           bool

	ComfortSleep bool
	NaturalWind  bool
	Eco          bool
	Purifier     bool
	Dryer        bool
	PTC          uint8
	AuxHeat      bool

	Turbo      bool
	Fahrenheit bool
	PMV        float64
	ShowScreen bool

	// Temperatures are nil when the appliance reports no measure.
	OutdoorTemperature *float64
	IndoorTemperature  *float64

	ErrorCode uint8

	Humidity     *uint8
	FrostProtect bool
	ComfortMode  bool
}

// NewAirConditionerResponse decodes an air conditioner status payload. The
// payload starts at the data type byte (after the 10-byte command header).
func NewAirConditionerResponse(data []byte) (*AirConditionerResponse, error) {
	if len(data) < 17 {
		return nil, midea.NewProtocolError("air conditioner status payload too short")
	}
	r := &AirConditionerResponse{
		Running:        data[1]&0x01 != 0,
		IMode:          data[1]&0x04 != 0,
		TimingMode:     data[1]&0x10 != 0,
		QuickCheck:     data[1]&0x20 != 0,
		ApplianceError: data[1]&0x80 != 0,

		Mode:     (data[2] & 0xE0) >> 5,
		FanSpeed: data[3] & 0x7F,

		OnTimer:         data[4]&0x80 != 0,
		OnTimerHours:    (data[4] & 0x7C) >> 2,
		OnTimerMinutes:  (data[4]&0x03)*15 + (data[6] >> 4),
		OffTimer:        data[5]&0x80 != 0,
		OffTimerHours:   (data[5] & 0x7C) >> 2,
		OffTimerMinutes: (data[5]&0x03)*15 + (data[6] & 0x0F),

		VerticalSwing:   (data[7] & 0x0C) >> 2,
		HorizontalSwing: data[7] & 0x03,

		ComfortSleepValue: data[8] & 0x03,
		PowerSaving:       data[8]&0x08 != 0,
		LowFrequencyFan:   data[8]&0x10 != 0,
		TurboFan:          data[8]&0x20 != 0,
		FeelOwn:           data[8]&0x80 != 0,

		ComfortSleep: data[9]&0x40 != 0,
		NaturalWind:  data[9]&0x02 != 0,
		Eco:          data[9]&0x10 != 0,
		Purifier:     data[9]&0x20 != 0,
		Dryer:        data[9]&0x04 != 0,
		PTC:          (data[9] & 0x18) >> 3,
		AuxHeat:      data[9]&0x08 != 0,

		Turbo:      data[10]&0x02 != 0,
		Fahrenheit: data[10]&0x04 != 0,

		PMV:       float64(data[14]&0x0F)*0.5 - 3.5,
		ErrorCode: data[16],
	}
	r.TargetTemperature = float64(data[2]&0x0F) + 16
	if data[2]&0x10 != 0 {
		r.TargetTemperature += 0.5
	}
	r.ShowScreen = (data[14]>>4)&0x07 != 0x07 && r.Running

	if data[12] != 0 && data[12] != 0xFF {
		temp := (float64(data[12]) - 50) / 2
		decimal := 0.1 * float64(data[15]>>4)
		if temp < 0 {
			temp -= decimal
		} else {
			temp += decimal
		}
		r.OutdoorTemperature = &temp
	}
	if data[11] != 0 && data[11] != 0xFF {
		temp := (float64(data[11]) - 50) / 2
		decimal := 0.1 * float64(data[15]&0x0F)
		if temp < 0 {
			temp -= decimal
		} else {
			temp += decimal
		}
		r.IndoorTemperature = &temp
	}

	if len(data) > 20 {
		humidity := data[19]
		r.Humidity = &humidity
	}
	if len(data) >= 22 {
		r.FrostProtect = data[21]&0x80 != 0
	} else {
		r.FrostProtect = data[10]&0x20 != 0
	}
	if len(data) >= 23 {
		r.ComfortMode = data[22]&0x01 != 0
	}
	return r, nil
}
