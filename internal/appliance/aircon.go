package appliance

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/command"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

// airConditionerCapabilities maps B5 capability ids to names.
var airConditionerCapabilities = map[command.CapabilityID]string{
	{0x10, 0x02}: "fan_speed",
	{0x12, 0x02}: "eco",
	{0x13, 0x02}: "heat_8",
	{0x14, 0x02}: "mode",
	{0x15, 0x02}: "fan_swing",
	{0x16, 0x02}: "electricity",
	{0x17, 0x02}: "filter_reminder",
	{0x18, 0x02}: "no_fan_sense",
	{0x19, 0x02}: "ptc",
	{0x1A, 0x02}: "strong_fan",
	{0x1E, 0x02}: "anion",
	{0x1F, 0x02}: "humidity",
	{0x21, 0x02}: "filter_check",
	{0x22, 0x02}: "fahrenheit",
	{0x24, 0x02}: "screen_display",
	{0x2A, 0x02}: "strong_fan",
	{0x2C, 0x02}: "buzzer",
	{0x30, 0x02}: "energy_save_on_absence",
	{0x32, 0x02}: "fan_straight",
	{0x33, 0x02}: "fan_avoid",
	{0x39, 0x02}: "self_clean",
	{0x42, 0x02}: "prevent_direct_fan",
	{0x43, 0x02}: "fa_no_fan_sense",
	{0x09, 0x00}: "has_vertical_fan",
	{0x0A, 0x00}: "has_horizontal_fan",
	{0x15, 0x00}: "has_indoor_humidity",
	{0x18, 0x00}: "has_no_wind_feel",
}

// interceptTemperatureLimits consumes the 0x25 0x02 capability entry, which
// spans seven temperature limit bytes instead of the standard one.
func interceptTemperatureLimits(caps map[string]int, data []byte, i int) int {
	if data[i] != 0x25 || data[i+1] != 0x02 || i+10 > len(data) {
		return -1
	}
	for j := 0; j < 7; j++ {
		caps[fmt.Sprintf("temperature%d", j)] = int(data[i+3+j])
	}
	return 6
}

// AirConditioner models an air conditioner appliance.
type AirConditioner struct {
	base
	seq command.Sequence

	running           bool
	mode              int
	fanSpeed          int
	targetTemperature float64
	comfortSleep      bool
	frostProtect      bool
	comfortMode       bool
	ecoMode           bool
	turbo             bool
	turboFan          bool
	beepPrompt        bool
	purifier          bool
	dryer             bool
	fahrenheit        bool
	verticalSwing     bool
	horizontalSwing   bool
	showScreen        bool

	indoorTemperature  *float64
	outdoorTemperature *float64
}

// NewAirConditioner creates an air conditioner model with the vendor
// defaults.
func NewAirConditioner(id string) *AirConditioner {
	return &AirConditioner{
		base:       base{id: id, tag: TagAirConditioner},
		fanSpeed:   40,
		showScreen: true,
	}
}

func (a *AirConditioner) Model() string { return "Air conditioner" }

// NeedsRefresh is true: the set command response does not carry full
// status, so a query must follow every apply.
func (a *AirConditioner) NeedsRefresh() bool { return true }

func (a *AirConditioner) RefreshCommand() command.Command {
	return command.NewAirConditionerStatus(&a.seq)
}

func (a *AirConditioner) ApplyCommand() command.Command {
	cmd := command.NewAirConditionerSet(&a.seq)
	cmd.SetBeepPrompt(a.beepPrompt)
	cmd.SetComfortSleep(a.comfortSleep)
	cmd.SetFrostProtect(a.frostProtect)
	cmd.SetComfortMode(a.comfortMode)
	cmd.SetDryer(a.dryer)
	cmd.SetEco(a.ecoMode)
	cmd.SetFahrenheit(a.fahrenheit)
	cmd.SetFanSpeed(uint8(a.fanSpeed))
	cmd.SetHorizontalSwing(a.horizontalSwing)
	cmd.SetMode(uint8(a.mode))
	cmd.SetPurifier(a.purifier)
	cmd.SetRunning(a.running)
	cmd.SetTemperature(a.targetTemperature)
	cmd.SetTurbo(a.turbo)
	cmd.SetTurboFan(a.turboFan)
	cmd.SetVerticalSwing(a.verticalSwing)
	return cmd
}

func (a *AirConditioner) ProcessResponse(data []byte) {
	a.latestData = data
	if len(data) == 0 {
		a.online = false
		return
	}
	a.online = true
	if data[0] != 0xC0 {
		logging.Debug("ignoring air conditioner response",
			zap.Uint8("type", data[0]), zap.String("data", logging.HexDump(data)))
		return
	}
	r, err := command.NewAirConditionerResponse(data)
	if err != nil {
		logging.Warn("cannot parse air conditioner status",
			zap.Error(err), zap.String("data", logging.HexDump(data)))
		return
	}
	a.err = int(r.ErrorCode)
	a.comfortSleep = r.ComfortSleep
	a.frostProtect = r.FrostProtect
	a.comfortMode = r.ComfortMode
	a.fahrenheit = r.Fahrenheit
	a.fanSpeed = int(r.FanSpeed)
	a.horizontalSwing = r.HorizontalSwing != 0
	a.indoorTemperature = r.IndoorTemperature
	a.mode = int(r.Mode)
	a.outdoorTemperature = r.OutdoorTemperature
	a.purifier = r.Purifier
	a.running = r.Running
	a.targetTemperature = r.TargetTemperature
	a.turbo = r.Turbo
	a.turboFan = r.TurboFan
	a.verticalSwing = r.VerticalSwing != 0
	a.showScreen = r.ShowScreen
}

func (a *AirConditioner) ProcessResponseExt(packets [][]byte) {
	a.processResponseExt(packets, a.ProcessResponse)
}

func (a *AirConditioner) ProcessCapabilities(data []byte, sequence int) {
	a.processCapabilities(data, sequence, airConditionerCapabilities, interceptTemperatureLimits)
}

// Running reports whether the appliance is on.
func (a *AirConditioner) Running() bool { return a.running }

// SetRunning turns the appliance on or off.
func (a *AirConditioner) SetRunning(on bool) { a.running = on }

// Mode returns the operating mode.
func (a *AirConditioner) Mode() int { return a.mode }

// SetMode selects the operating mode. Values outside 0..15 are rejected.
func (a *AirConditioner) SetMode(mode int) error {
	if mode < 0 || mode > 15 {
		return midea.NewValidationError(fmt.Sprintf("invalid air conditioner mode %d", mode))
	}
	a.mode = mode
	return nil
}

// TargetTemperature returns the target temperature in degrees Celsius.
func (a *AirConditioner) TargetTemperature() float64 { return a.targetTemperature }

// SetTargetTemperature rejects temperatures outside the supported range.
func (a *AirConditioner) SetTargetTemperature(temperature float64) error {
	if temperature < midea.ACMinTemperature || temperature > midea.ACMaxTemperature {
		return midea.NewValidationError(
			fmt.Sprintf("target temperature %g out of range %d..%d",
				temperature, midea.ACMinTemperature, midea.ACMaxTemperature))
	}
	a.targetTemperature = temperature
	return nil
}

// FanSpeed returns the fan speed.
func (a *AirConditioner) FanSpeed() int { return a.fanSpeed }

// SetFanSpeed sets the fan speed.
func (a *AirConditioner) SetFanSpeed(speed int) { a.fanSpeed = speed }

// IndoorTemperature returns the measured indoor temperature, or false when
// the appliance reports no measure.
func (a *AirConditioner) IndoorTemperature() (float64, bool) {
	if a.indoorTemperature == nil {
		return 0, false
	}
	return *a.indoorTemperature, true
}

// OutdoorTemperature returns the measured outdoor temperature, or false
// when the appliance reports no measure.
func (a *AirConditioner) OutdoorTemperature() (float64, bool) {
	if a.outdoorTemperature == nil {
		return 0, false
	}
	return *a.outdoorTemperature, true
}

// EcoMode reports whether eco mode is on.
func (a *AirConditioner) EcoMode() bool { return a.ecoMode }

// SetEcoMode turns eco mode on or off.
func (a *AirConditioner) SetEcoMode(on bool) { a.ecoMode = on }

// ComfortSleep reports whether comfort sleep is on.
func (a *AirConditioner) ComfortSleep() bool { return a.comfortSleep }

// SetComfortSleep turns comfort sleep on or off.
func (a *AirConditioner) SetComfortSleep(on bool) { a.comfortSleep = on }

// FrostProtect reports whether frost protection is on.
func (a *AirConditioner) FrostProtect() bool { return a.frostProtect }

// SetFrostProtect turns frost protection on or off.
func (a *AirConditioner) SetFrostProtect(on bool) { a.frostProtect = on }

// ComfortMode reports whether comfort mode is on.
func (a *AirConditioner) ComfortMode() bool { return a.comfortMode }

// SetComfortMode turns comfort mode on or off.
func (a *AirConditioner) SetComfortMode(on bool) { a.comfortMode = on }

// Turbo reports whether turbo (boost) mode is on.
func (a *AirConditioner) Turbo() bool { return a.turbo }

// SetTurbo turns turbo mode on or off.
func (a *AirConditioner) SetTurbo(on bool) { a.turbo = on }

// TurboFan reports whether turbo fan mode is on.
func (a *AirConditioner) TurboFan() bool { return a.turboFan }

// SetTurboFan turns turbo fan mode on or off.
func (a *AirConditioner) SetTurboFan(on bool) { a.turboFan = on }

// Dryer reports whether dryer mode is on.
func (a *AirConditioner) Dryer() bool { return a.dryer }

// SetDryer turns dryer mode on or off.
func (a *AirConditioner) SetDryer(on bool) { a.dryer = on }

// Purifier reports whether the air purifier is on.
func (a *AirConditioner) Purifier() bool { return a.purifier }

// SetPurifier turns the air purifier on or off.
func (a *AirConditioner) SetPurifier(on bool) { a.purifier = on }

// BeepPrompt reports whether the confirmation beep is on.
func (a *AirConditioner) BeepPrompt() bool { return a.beepPrompt }

// SetBeepPrompt turns the confirmation beep on or off.
func (a *AirConditioner) SetBeepPrompt(on bool) { a.beepPrompt = on }

// Fahrenheit reports whether the display uses Fahrenheit.
func (a *AirConditioner) Fahrenheit() bool { return a.fahrenheit }

// SetFahrenheit selects Fahrenheit for the display.
func (a *AirConditioner) SetFahrenheit(on bool) { a.fahrenheit = on }

// VerticalSwing reports whether vertical fan swing is on.
func (a *AirConditioner) VerticalSwing() bool { return a.verticalSwing }

// SetVerticalSwing turns vertical fan swing on or off.
func (a *AirConditioner) SetVerticalSwing(on bool) { a.verticalSwing = on }

// HorizontalSwing reports whether horizontal fan swing is on.
func (a *AirConditioner) HorizontalSwing() bool { return a.horizontalSwing }

// SetHorizontalSwing turns horizontal fan swing on or off.
func (a *AirConditioner) SetHorizontalSwing(on bool) { a.horizontalSwing = on }

// ShowScreen reports whether the appliance display is on.
func (a *AirConditioner) ShowScreen() bool { return a.showScreen }

func (a *AirConditioner) Properties() []Property {
	return []Property{
		boolProperty("running", a.Running, a.SetRunning),
		{
			Name: "mode",
			Get:  func() string { return strconv.Itoa(a.Mode()) },
			Set: func(value string) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return err
				}
				return a.SetMode(v)
			},
		},
		{
			Name: "temperature",
			Get:  func() string { return strconv.FormatFloat(a.TargetTemperature(), 'f', 1, 64) },
			Set: func(value string) error {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return err
				}
				return a.SetTargetTemperature(v)
			},
		},
		{
			Name: "fan",
			Get:  func() string { return strconv.Itoa(a.FanSpeed()) },
			Set: func(value string) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return err
				}
				a.SetFanSpeed(v)
				return nil
			},
		},
		boolProperty("eco", a.EcoMode, a.SetEcoMode),
		boolProperty("turbo", a.Turbo, a.SetTurbo),
		boolProperty("turbo-fan", a.TurboFan, a.SetTurboFan),
		boolProperty("dryer", a.Dryer, a.SetDryer),
		boolProperty("purifier", a.Purifier, a.SetPurifier),
		boolProperty("comfort-sleep", a.ComfortSleep, a.SetComfortSleep),
		boolProperty("comfort-mode", a.ComfortMode, a.SetComfortMode),
		boolProperty("frost-protect", a.FrostProtect, a.SetFrostProtect),
		boolProperty("fahrenheit", a.Fahrenheit, a.SetFahrenheit),
		boolProperty("vertical-swing", a.VerticalSwing, a.SetVerticalSwing),
		boolProperty("horizontal-swing", a.HorizontalSwing, a.SetHorizontalSwing),
		boolProperty("beep", a.BeepPrompt, a.SetBeepPrompt),
		readOnlyProperty("indoor-temperature", func() string {
			if t, ok := a.IndoorTemperature(); ok {
				return strconv.FormatFloat(t, 'f', 1, 64)
			}
			return "n/a"
		}),
		readOnlyProperty("outdoor-temperature", func() string {
			if t, ok := a.OutdoorTemperature(); ok {
				return strconv.FormatFloat(t, 'f', 1, 64)
			}
			return "n/a"
		}),
		readOnlyProperty("screen", func() string {
			return strconv.FormatBool(a.ShowScreen())
		}),
		readOnlyProperty("error", func() string {
			return strconv.Itoa(a.ErrorCode())
		}),
	}
}
