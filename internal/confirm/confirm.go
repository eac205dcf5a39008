// Package confirm asks the user to accept model changes on the terminal.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/manifoldco/promptui"

	"github.com/fynovel/fyctl/internal/app/modelchange"
)

// PrompterConfig is the configuration of the terminal prompter.
type PrompterConfig struct {
	// AssumeYes accepts every change without asking.
	AssumeYes bool
	Stdin     io.ReadCloser
	Stdout    io.WriteCloser
}

// Prompter is a modelchange.Confirmer that asks on the terminal.
type Prompter struct {
	assumeYes bool
	stdin     io.ReadCloser
	stdout    io.WriteCloser
}

var _ modelchange.Confirmer = &Prompter{}

// NewPrompter returns a new terminal prompter.
func NewPrompter(cfg PrompterConfig) *Prompter {
	return &Prompter{
		assumeYes: cfg.AssumeYes,
		stdin:     cfg.Stdin,
		stdout:    cfg.Stdout,
	}
}

// Confirm satisfies modelchange.Confirmer.
func (p *Prompter) Confirm(ctx context.Context, current, target string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	prompt := promptui.Prompt{
		Label:     Label(current, target),
		IsConfirm: true,
		Stdin:     p.stdin,
		Stdout:    p.stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return false, fmt.Errorf("confirmation interrupted: %w", err)
		}
		return false, fmt.Errorf("could not prompt: %w", err)
	}

	return true, nil
}

// Label returns the question asked for a change.
func Label(current, target string) string {
	switch {
	case current == "":
		return fmt.Sprintf("Install model %s", target)
	case current == target:
		return fmt.Sprintf("Reinstall model %s", target)
	default:
		return fmt.Sprintf("Change model from %s to %s", current, target)
	}
}
