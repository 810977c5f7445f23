package appliance

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/command"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
)

// dehumidifierCapabilities maps B5 capability ids to names.
var dehumidifierCapabilities = map[command.CapabilityID]string{
	{0x10, 0x02}: "fan_speed",
	{0x14, 0x02}: "mode",
	{0x17, 0x02}: "filter",
	{0x1D, 0x02}: "pump",
	{0x1E, 0x02}: "ion",
	{0x1F, 0x02}: "auto",
	{0x20, 0x02}: "dry_clothes",
	{0x24, 0x02}: "light",
	{0x2D, 0x02}: "water_level",
}

// Dehumidifier models a dehumidifier appliance.
type Dehumidifier struct {
	base
	seq command.Sequence

	running        bool
	ionMode        bool
	mode           int
	targetHumidity int
	fanSpeed       int
	sleepMode      bool
	pump           bool
	pumpSwitchFlag bool
	verticalSwing  bool
	beepPrompt     bool

	currentHumidity    int
	currentTemperature float64
	tankFull           bool
	tankLevel          int
	defrosting         bool
	filterIndicator    bool
}

// NewDehumidifier creates a dehumidifier model with the vendor defaults.
func NewDehumidifier(id string) *Dehumidifier {
	return &Dehumidifier{
		base:            base{id: id, tag: TagDehumidifier},
		targetHumidity:  50,
		currentHumidity: 45,
		fanSpeed:        40,
	}
}

func (d *Dehumidifier) Model() string { return "Dehumidifier" }

func (d *Dehumidifier) NeedsRefresh() bool { return false }

func (d *Dehumidifier) RefreshCommand() command.Command {
	return command.NewDehumidifierStatus(&d.seq)
}

func (d *Dehumidifier) ApplyCommand() command.Command {
	cmd := command.NewDehumidifierSet(&d.seq)
	cmd.SetBeepPrompt(d.beepPrompt)
	cmd.SetFanSpeed(uint8(d.fanSpeed))
	cmd.SetIon(d.ionMode)
	cmd.SetMode(uint8(d.mode))
	cmd.SetPump(d.pump)
	cmd.SetPumpFlag(d.pumpSwitchFlag)
	cmd.SetRunning(d.running)
	cmd.SetSleep(d.sleepMode)
	cmd.SetTargetHumidity(uint8(d.targetHumidity))
	cmd.SetVerticalSwing(d.verticalSwing)
	return cmd
}

func (d *Dehumidifier) ProcessResponse(data []byte) {
	d.latestData = data
	if len(data) == 0 {
		d.online = false
		return
	}
	d.online = true
	r, err := command.NewDehumidifierResponse(data)
	if err != nil {
		logging.Warn("cannot parse dehumidifier status",
			zap.Error(err), zap.String("data", logging.HexDump(data)))
		return
	}
	d.running = r.Running
	d.ionMode = r.IonMode
	d.mode = int(r.Mode)
	d.SetTargetHumidity(r.TargetHumidity)
	d.currentHumidity = int(r.CurrentHumidity)
	d.currentTemperature = r.IndoorTemperature
	d.defrosting = r.Defrosting
	d.err = int(r.ErrorCode)
	d.filterIndicator = r.FilterIndicator
	d.pump = r.PumpSwitch
	d.pumpSwitchFlag = r.PumpSwitchFlag
	if r.VerticalSwing != nil {
		d.verticalSwing = *r.VerticalSwing
	}
	d.sleepMode = r.SleepSwitch
	d.tankFull = r.TankFull
	d.tankLevel = int(r.TankLevel)
	d.SetFanSpeed(int(r.FanSpeed))
}

func (d *Dehumidifier) ProcessResponseExt(packets [][]byte) {
	d.processResponseExt(packets, d.ProcessResponse)
}

func (d *Dehumidifier) ProcessCapabilities(data []byte, sequence int) {
	d.processCapabilities(data, sequence, dehumidifierCapabilities, nil)
}

// Running reports whether the appliance is on.
func (d *Dehumidifier) Running() bool { return d.running }

// SetRunning turns the appliance on or off.
func (d *Dehumidifier) SetRunning(on bool) { d.running = on }

// Mode returns the operating mode.
func (d *Dehumidifier) Mode() int { return d.mode }

// SetMode selects the operating mode. Values outside 0..15 are rejected.
func (d *Dehumidifier) SetMode(mode int) error {
	if mode < 0 || mode > 15 {
		return midea.NewValidationError(fmt.Sprintf("invalid dehumidifier mode %d", mode))
	}
	d.mode = mode
	return nil
}

// TargetHumidity returns the target relative humidity percentage.
func (d *Dehumidifier) TargetHumidity() int { return d.targetHumidity }

// SetTargetHumidity clamps the target humidity to 0..100 and truncates
// fractions.
func (d *Dehumidifier) SetTargetHumidity(humidity float64) {
	switch {
	case humidity < 0:
		d.targetHumidity = 0
	case humidity > 100:
		d.targetHumidity = 100
	default:
		d.targetHumidity = int(humidity)
	}
}

// FanSpeed returns the fan speed.
func (d *Dehumidifier) FanSpeed() int { return d.fanSpeed }

// SetFanSpeed clamps the fan speed to 0..127.
func (d *Dehumidifier) SetFanSpeed(speed int) {
	switch {
	case speed < 0:
		logging.Warn("fan speed below range", zap.Int("speed", speed))
		d.fanSpeed = 0
	case speed > 127:
		logging.Warn("fan speed above range", zap.Int("speed", speed))
		d.fanSpeed = 127
	default:
		d.fanSpeed = speed
	}
}

// IonMode reports whether anion mode is on.
func (d *Dehumidifier) IonMode() bool { return d.ionMode }

// SetIonMode turns anion mode on or off.
func (d *Dehumidifier) SetIonMode(on bool) { d.ionMode = on }

// SleepMode reports whether sleep mode is on.
func (d *Dehumidifier) SleepMode() bool { return d.sleepMode }

// SetSleepMode turns sleep mode on or off.
func (d *Dehumidifier) SetSleepMode(on bool) { d.sleepMode = on }

// Pump reports whether the drain pump is on.
func (d *Dehumidifier) Pump() bool { return d.pump }

// SetPump turns the drain pump on or off.
func (d *Dehumidifier) SetPump(on bool) { d.pump = on }

// PumpSwitchFlag reports the pump disable flag.
func (d *Dehumidifier) PumpSwitchFlag() bool { return d.pumpSwitchFlag }

// SetPumpSwitchFlag sets the pump disable flag.
func (d *Dehumidifier) SetPumpSwitchFlag(on bool) { d.pumpSwitchFlag = on }

// VerticalSwing reports whether vertical fan swing is on.
func (d *Dehumidifier) VerticalSwing() bool { return d.verticalSwing }

// SetVerticalSwing turns vertical fan swing on or off.
func (d *Dehumidifier) SetVerticalSwing(on bool) { d.verticalSwing = on }

// BeepPrompt reports whether the confirmation beep is on.
func (d *Dehumidifier) BeepPrompt() bool { return d.beepPrompt }

// SetBeepPrompt turns the confirmation beep on or off.
func (d *Dehumidifier) SetBeepPrompt(on bool) { d.beepPrompt = on }

// CurrentHumidity returns the measured ambient humidity.
func (d *Dehumidifier) CurrentHumidity() int { return d.currentHumidity }

// CurrentTemperature returns the measured ambient temperature.
func (d *Dehumidifier) CurrentTemperature() float64 { return d.currentTemperature }

// TankFull reports whether the water tank is full.
func (d *Dehumidifier) TankFull() bool { return d.tankFull }

// TankLevel returns the water tank level percentage.
func (d *Dehumidifier) TankLevel() int { return d.tankLevel }

// Defrosting reports whether the circuit is defrosting.
func (d *Dehumidifier) Defrosting() bool { return d.defrosting }

// FilterIndicator reports whether the filter needs cleaning.
func (d *Dehumidifier) FilterIndicator() bool { return d.filterIndicator }

func (d *Dehumidifier) Properties() []Property {
	return []Property{
		boolProperty("running", d.Running, d.SetRunning),
		{
			Name: "mode",
			Get:  func() string { return strconv.Itoa(d.Mode()) },
			Set: func(value string) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return err
				}
				return d.SetMode(v)
			},
		},
		{
			Name: "humidity",
			Get:  func() string { return strconv.Itoa(d.TargetHumidity()) },
			Set: func(value string) error {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return err
				}
				d.SetTargetHumidity(v)
				return nil
			},
		},
		{
			Name: "fan",
			Get:  func() string { return strconv.Itoa(d.FanSpeed()) },
			Set: func(value string) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return err
				}
				d.SetFanSpeed(v)
				return nil
			},
		},
		boolProperty("ion", d.IonMode, d.SetIonMode),
		boolProperty("sleep", d.SleepMode, d.SetSleepMode),
		boolProperty("pump", d.Pump, d.SetPump),
		boolProperty("swing", d.VerticalSwing, d.SetVerticalSwing),
		boolProperty("beep", d.BeepPrompt, d.SetBeepPrompt),
		readOnlyProperty("current-humidity", func() string {
			return strconv.Itoa(d.CurrentHumidity())
		}),
		readOnlyProperty("temperature", func() string {
			return strconv.FormatFloat(d.CurrentTemperature(), 'f', 1, 64)
		}),
		readOnlyProperty("tank", func() string {
			return strconv.Itoa(d.TankLevel())
		}),
		readOnlyProperty("tank-full", func() string {
			return strconv.FormatBool(d.TankFull())
		}),
		readOnlyProperty("defrosting", func() string {
			return strconv.FormatBool(d.Defrosting())
		}),
		readOnlyProperty("filter", func() string {
			return strconv.FormatBool(d.FilterIndicator())
		}),
		readOnlyProperty("error", func() string {
			return strconv.Itoa(d.ErrorCode())
		}),
	}
}
