package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the status UI
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - online, success
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, offline
	WarningColor = lipgloss.Color("#FFA500") // Orange - warnings
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60 // Minimum supported terminal width
	MaxContentWidth  = 90 // Maximum content width before capping
)

// Shared styles
var (
	// TitleStyle is for the appliance name in the header
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	// SubtitleStyle is for the model/address line under the title
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// KeyStyle is for property names
	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(22).
			PaddingLeft(2)

	// ValueStyle is for property values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// OnlineStyle is for the "online" badge
	OnlineStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	// OfflineStyle is for the "offline" badge
	OfflineStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// ErrorMessageStyle is for error message text
	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	// FooterStyle is for the refresh/help line at the bottom
	FooterStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// SpinnerStyle colors the connect spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// StatusBoxStyle returns the border style for the status table
func StatusBoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Padding(0, 1)
}
