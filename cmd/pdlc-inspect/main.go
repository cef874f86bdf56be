// Command pdlc-inspect is an interactive TUI for browsing a PDL file's
// resolved declarations, derived chunk layout and canonical IR.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: pdlc-inspect FILE.pdl")
		os.Exit(1)
	}

	p := tea.NewProgram(newInspectModel(os.Args[1]), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
