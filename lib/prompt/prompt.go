// Package prompt asks the operator for interactive confirmation before
// destructive operations run.
package prompt

import (
	"context"

	"github.com/charmbracelet/huh"
)

// TerminalConfirmer renders a yes/no prompt on the controlling terminal.
type TerminalConfirmer struct{}

func (TerminalConfirmer) Confirm(ctx context.Context, summary string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(summary).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}
