package prompt

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// ErrNonInteractive is returned when a prompt is needed but no terminal is attached.
var ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

type Prompter interface {
	// Confirm asks a yes/no question; description may be empty.
	Confirm(title, description string, defaultValue bool) (bool, error)
}

type HuhPrompter struct{}

func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{}
}

func (p *HuhPrompter) Confirm(title, description string, defaultValue bool) (bool, error) {
	result := defaultValue

	confirm := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&result)
	if description != "" {
		confirm = confirm.Description(description)
	}

	err := confirm.Run()
	return result, err
}

// NoopPrompter refuses every prompt.
type NoopPrompter struct{}

func (p *NoopPrompter) Confirm(string, string, bool) (bool, error) {
	return false, ErrNonInteractive
}
