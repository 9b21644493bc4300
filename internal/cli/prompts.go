package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/CortexReport/internal/models"
)

// validateSymbols accepts a comma separated list of ticker symbols.
func validateSymbols(val interface{}) error {
	str, ok := val.(string)
	if !ok {
		return fmt.Errorf("invalid input type")
	}
	if len(models.ParseSymbols(str)) == 0 {
		return models.ErrNoSymbols
	}
	return nil
}

// PromptForSymbols asks for the comma separated ticker symbols to report on
func PromptForSymbols(defaultSymbols string) (string, error) {
	var input string
	prompt := &survey.Input{
		Message: "Enter stock symbols (comma-separated):",
		Help:    "For example AAPL, MSFT, GOOGL. Each symbol costs a few market data calls.",
		Default: defaultSymbols,
	}

	if err := survey.AskOne(prompt, &input, survey.WithValidator(validateSymbols)); err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptForAPIKey asks for the Alpha Vantage API key without echoing it
func PromptForAPIKey() (string, error) {
	var key string
	prompt := &survey.Password{
		Message: "Enter your Alpha Vantage API key:",
		Help:    "Get a free key at https://www.alphavantage.co/support/#api-key, or set ALPHAVANTAGE_API_KEY.",
	}

	if err := survey.AskOne(prompt, &key, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return key, nil
}
