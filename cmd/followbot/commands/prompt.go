package commands

import (
	"context"
	"strings"

	"followbot/internal/campaign"
	"followbot/internal/session"

	"github.com/pterm/pterm"
)

type ptermConfirmer struct{}

func (ptermConfirmer) Confirm(ctx context.Context, question string, defaultValue bool) bool {
	if ctx.Err() != nil {
		return false
	}
	answer, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(defaultValue).
		Show(question)
	if err != nil {
		return defaultValue
	}
	return answer
}

var _ campaign.Confirmer = ptermConfirmer{}

func promptText(label string, secret bool) (string, error) {
	input := pterm.DefaultInteractiveTextInput
	if secret {
		input = *input.WithMask("*")
	}
	value, err := input.Show(label)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// promptMissing asks for every required value the config did not supply.
func promptMissing(cfg *Config) error {
	required := []struct {
		label  string
		value  *string
		secret bool
	}{
		{label: session.CookieDogSecurity, value: &cfg.DogSecurity, secret: true},
		{label: session.CookiePekoSecurity, value: &cfg.PekoSecurity, secret: true},
		{label: "target users (e.g. 1-10,42)", value: &cfg.Targets},
	}
	for _, field := range required {
		if *field.value != "" {
			continue
		}
		value, err := promptText(field.label, field.secret)
		if err != nil {
			return err
		}
		*field.value = value
	}
	return nil
}
