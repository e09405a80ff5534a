// Package colours holds the colour scheme of the voiceclone CLI.
package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Name    = color.New(color.FgMagenta)
	Path    = color.New(color.FgHiBlack)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)
)
