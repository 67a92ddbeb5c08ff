package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
)

// OutcomeStyle returns a color-coded style for a merge outcome label,
// rendered for r. A renderer bound to a file or pipe drops the colors,
// so log files stay plain text.
func OutcomeStyle(r *lipgloss.Renderer, outcome string) lipgloss.Style {
	base := r.NewStyle().Bold(true)

	switch outcome {
	case "merged":
		return base.Foreground(ColorGreen)
	case "would_merge":
		return base.Foreground(ColorBlue)
	case "deferred":
		return base.Foreground(ColorYellow)
	case "skipped":
		return base.Foreground(ColorOrange)
	case "failed":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// SubtleStyle is used for secondary detail such as failure reasons.
func SubtleStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(ColorGray)
}

// SpinnerStyle colors the progress spinner.
func SpinnerStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(ColorBlue)
}

// DoneMark and FailMark close a progress line.
func DoneMark(r *lipgloss.Renderer) string {
	return r.NewStyle().Foreground(ColorGreen).Render("✔")
}

func FailMark(r *lipgloss.Renderer) string {
	return r.NewStyle().Foreground(ColorRed).Render("✖")
}
