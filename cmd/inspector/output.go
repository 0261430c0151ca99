package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/abrantes/internal/popup"
	"golang.org/x/term"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newRenderer(w io.Writer, live bool) *popup.TextRenderer {
	return popup.NewTextRenderer(w, popup.WithClearScreen(live && isTerminal(w)))
}
