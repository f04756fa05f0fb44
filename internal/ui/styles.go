package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - single amber accent.
const (
	ColorAmber    = "214" // Primary accent
	ColorAmberDim = "172" // Dimmed amber for secondary emphasis
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds all output styles.
type Styles struct {
	Header  lipgloss.Style
	Title   lipgloss.Style
	Score   lipgloss.Style
	Repo    lipgloss.Style
	Source  lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns styled components for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
		Repo:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmberDim)),
		Source:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns unstyled components for plain output.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Title:   lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Repo:    lipgloss.NewStyle(),
		Source:  lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
