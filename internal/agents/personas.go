package agents

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyike/CortexReport/consts"
)

//go:embed personas.yaml
var personaFile []byte

// Persona describes one analysis role to the chat model.
type Persona struct {
	Key          string   `yaml:"-"`
	Description  string   `yaml:"description"`
	Instructions []string `yaml:"instructions"`
}

// SystemPrompt renders the persona as a system message.
func (p Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(p.Description)
	b.WriteString("\n\nInstructions:\n")
	for _, in := range p.Instructions {
		b.WriteString("- ")
		b.WriteString(in)
		b.WriteString("\n")
	}
	b.WriteString("\nFormat your answer in Markdown.")
	return b.String()
}

// LoadPersonas parses the embedded persona definitions.
func LoadPersonas() (map[string]Persona, error) {
	var personas map[string]Persona
	if err := yaml.Unmarshal(personaFile, &personas); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	for _, key := range []string{consts.MarketAnalyst, consts.CompanyResearcher, consts.StockStrategist, consts.TeamLead} {
		p, ok := personas[key]
		if !ok {
			return nil, fmt.Errorf("persona %q is not defined", key)
		}
		p.Key = key
		personas[key] = p
	}
	return personas, nil
}
