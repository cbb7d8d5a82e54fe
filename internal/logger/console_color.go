package logger

import (
	"fmt"

	"github.com/fatih/color"
)

// levelScheme defines consistent colors for level labels.
// Red: errors. Yellow: warnings. Cyan: info. White: debug/trace.
type levelScheme struct {
	errorLabel *color.Color
	warnLabel  *color.Color
	infoLabel  *color.Color
	quietLabel *color.Color
}

func newLevelScheme() *levelScheme {
	return &levelScheme{
		errorLabel: color.New(color.FgRed),
		warnLabel:  color.New(color.FgYellow),
		infoLabel:  color.New(color.FgCyan),
		quietLabel: color.New(color.FgWhite),
	}
}

// colorizeLevel renders a "[LEVEL]" label with the scheme color for the level.
// Colors are disabled globally by fatih/color when NO_COLOR is set.
func colorizeLevel(level string) string {
	scheme := newLevelScheme()
	label := fmt.Sprintf("[%s]", level)

	switch level {
	case "ERROR":
		return scheme.errorLabel.Sprint(label)
	case "WARN":
		return scheme.warnLabel.Sprint(label)
	case "INFO":
		return scheme.infoLabel.Sprint(label)
	default:
		return scheme.quietLabel.Sprint(label)
	}
}
