// Package colors holds the palette used by fptrace output.
//
// Colors are disabled when stdout is not a terminal. Init overrides that
// from the --color flag or CLICOLOR.
package colors

import "github.com/fatih/color"

// Init overrides the auto-detected color setting; nil keeps it.
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func Bold() *color.Color        { return color.New(color.Bold) }
func BoldMagenta() *color.Color { return color.New(color.Bold, color.FgMagenta) }
func BoldHiRed() *color.Color   { return color.New(color.Bold, color.FgHiRed) }
func BoldHiGreen() *color.Color { return color.New(color.Bold, color.FgHiGreen) }
func BoldHiBlue() *color.Color  { return color.New(color.Bold, color.FgHiBlue) }

func FaintHiBlue() *color.Color  { return color.New(color.Faint, color.FgHiBlue) }
func FaintHiWhite() *color.Color { return color.New(color.Faint, color.FgHiWhite) }

func ItalicFaintWhite() *color.Color {
	return color.New(color.Italic, color.Faint, color.FgWhite)
}
