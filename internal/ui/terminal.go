package ui

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"arcc/internal/driver"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
}

// Width returns the terminal width of w, or fallback when it is not a
// terminal.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// RunProgress renders events on out until the channel is closed.
func RunProgress(title string, events <-chan driver.Event, out io.Writer) error {
	program := tea.NewProgram(NewProgressModel(title, nil, events), tea.WithOutput(out))
	_, err := program.Run()
	return err
}
