package promptutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrInterrupted is returned when the user bails out with ctrl-c.
var ErrInterrupted = errors.New("operation interrupted")

// Prompter asks the operator before anything destructive happens.
type Prompter interface {
	PromptForSelection(label string, items []string) (string, error)
	PromptForConfirmation(prompt string) bool
}

type RealPrompter struct{}

func NewPrompt() Prompter {
	return &RealPrompter{}
}

func (p *RealPrompter) PromptForSelection(label string, items []string) (string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
	}
	_, selected, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return "", ErrInterrupted
		}
		return "", fmt.Errorf("selection failed: %w", err)
	}
	return selected, nil
}

func (p *RealPrompter) PromptForConfirmation(prompt string) bool {
	confirm := promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}
	// promptui reports "n" as an error; treat anything but an explicit
	// yes as a no.
	result, err := confirm.Run()
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(result), "y")
}
