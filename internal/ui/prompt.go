// Package ui wraps the interactive prompts. Everything the user picks
// goes through here so cancellation looks the same everywhere.
package ui

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user backs out of a prompt
// (Ctrl+C / Esc). Callers treat it as "stop quietly", not a failure.
var ErrCancelled = errors.New("selection cancelled")

// Select shows a scrollable picker and returns the chosen index.
func Select(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  12,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return 0, mapErr(err)
	}
	return idx, nil
}

// Input asks for a line of text with a pre-filled default.
func Input(label, defaultValue string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}
	value, err := prompt.Run()
	if err != nil {
		return "", mapErr(err)
	}
	return value, nil
}

func mapErr(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return ErrCancelled
	}
	return err
}
