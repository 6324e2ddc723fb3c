package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the startup banner with the running version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	lines := []string{
		`                   _              `,
		`  __ _  __ _ _ __ | |_ _ __ _   _ `,
		" / _` |/ _` | '_ \\| __| '__| | | |",
		`| (_| | (_| | | | | |_| |  | |_| |`,
		` \__, |\__,_|_| |_|\__|_|   \__, |`,
		` |___/                      |___/ `,
	}
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6", "#fb7185"}

	fmt.Println()
	for i, line := range lines {
		fmt.Println(termenv.String(line).Foreground(p.Color(colors[i])))
	}
	fmt.Printf("  cutover execution engine %s\n\n", version)
}

// StatusColor returns a status string colorized for the terminal.
func StatusColor(status string) string {
	p := termenv.ColorProfile()
	var color string
	switch status {
	case "COMPLETED", "PASSED":
		color = "#22c55e"
	case "FAILED":
		color = "#ef4444"
	case "BLOCKED":
		color = "#f97316"
	case "CANCELLED":
		color = "#6b7280"
	case "IN_PROGRESS":
		color = "#3b82f6"
	default:
		color = "#eab308"
	}
	return termenv.String(status).Foreground(p.Color(color)).String()
}
