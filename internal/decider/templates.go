package decider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template describes how to draft outward communication for one cause family.
type Template struct {
	Name                string   `yaml:"name"`
	Match               []string `yaml:"match"`
	Channel             string   `yaml:"channel"`
	MessageTemplate     string   `yaml:"messageTemplate"`
	ResolutionETA       string   `yaml:"resolutionETA"`
	WorkaroundAvailable bool     `yaml:"workaroundAvailable"`
}

// TemplatePack maps root-cause keywords to communication templates. Loaded
// once at startup; lookups are read-only.
type TemplatePack struct {
	templates []Template
	fallback  Template
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
	Fallback  *Template  `yaml:"fallback"`
}

// LoadTemplates reads a template pack from a YAML file. An empty path yields
// the built-in defaults.
func LoadTemplates(path string) (*TemplatePack, error) {
	pack := defaultTemplates()
	if path == "" {
		return pack, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pack, nil
		}
		return nil, fmt.Errorf("decider: read templates: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decider: parse templates: %w", err)
	}
	if len(file.Templates) > 0 {
		pack.templates = file.Templates
	}
	if file.Fallback != nil {
		pack.fallback = *file.Fallback
	}
	return pack, nil
}

// Lookup returns the first template whose keywords appear in the cause,
// falling back to the generic template.
func (p *TemplatePack) Lookup(cause string) Template {
	lower := strings.ToLower(cause)
	for _, t := range p.templates {
		for _, kw := range t.Match {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return t
			}
		}
	}
	return p.fallback
}

func defaultTemplates() *TemplatePack {
	return &TemplatePack{
		templates: []Template{
			{
				Name:    "webhook",
				Match:   []string{"webhook"},
				Channel: "email",
				MessageTemplate: "We detected webhook delivery failures affecting your integration. " +
					"Our team is investigating and will restore delivery shortly.",
				ResolutionETA:       "2-4 hours",
				WorkaroundAvailable: true,
			},
			{
				Name:    "checkout",
				Match:   []string{"checkout", "payment"},
				Channel: "email",
				MessageTemplate: "We identified an issue affecting checkout for some storefronts. " +
					"Engineering is treating this as highest priority.",
				ResolutionETA:       "1-2 hours",
				WorkaroundAvailable: false,
			},
			{
				Name:    "auth",
				Match:   []string{"authentication", "auth"},
				Channel: "email",
				MessageTemplate: "Some API credentials issued before the migration require rotation. " +
					"Please regenerate your API keys from the dashboard.",
				ResolutionETA:       "self-serve",
				WorkaroundAvailable: true,
			},
		},
		fallback: Template{
			Name:    "generic",
			Channel: "email",
			MessageTemplate: "We detected elevated error rates related to the platform migration " +
				"and are actively investigating.",
			ResolutionETA:       "under investigation",
			WorkaroundAvailable: false,
		},
	}
}
