package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ewest/midea/internal/lan"
)

// RenderStatus renders the appliance identity and its property table as a
// bordered box. Used both by "mideactl status" and by the watch dashboard.
func RenderStatus(device *lan.Device, width int) string {
	var lines []string

	badge := OfflineStyle.Render("● offline")
	if device.Online() {
		badge = OnlineStyle.Render("● online")
	}
	title := TitleStyle.Render(device.State.Name()) + "  " + badge
	subtitle := SubtitleStyle.Render(fmt.Sprintf("%s · %s · id %s",
		device.State.Model(), deviceLocation(device), device.ApplianceID))

	lines = append(lines, title, subtitle, "")

	for _, prop := range device.State.Properties() {
		key := KeyStyle.Render(prop.Name)
		value := ValueStyle.Render(prop.Get())
		lines = append(lines, key+" "+value)
	}

	if code := device.State.ErrorCode(); code != 0 {
		lines = append(lines, "",
			ErrorMessageStyle.Render(fmt.Sprintf("  appliance error code %d", code)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return StatusBoxStyle(width).Render(content)
}

func deviceLocation(device *lan.Device) string {
	if device.Address == "" {
		return "cloud"
	}
	return fmt.Sprintf("%s:%d", device.Address, device.Port)
}

// FormatProperties renders the property table without styling, one
// "name: value" pair per line. Used for plain output formats.
func FormatProperties(device *lan.Device) string {
	var b strings.Builder
	for _, prop := range device.State.Properties() {
		fmt.Fprintf(&b, "%-22s %s\n", prop.Name, prop.Get())
	}
	return b.String()
}
