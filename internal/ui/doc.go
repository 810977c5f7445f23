// Package ui renders appliance state in the terminal. It provides the
// lipgloss styles shared by the CLI commands and the Bubble Tea model behind
// "mideactl watch", which polls an appliance and redraws a status table.
package ui
