package provider

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProfile is returned when a command names a profile that is not configured.
var ErrUnknownProfile = errors.New("unknown provider profile")

// Profile is one named provider/model configuration.
type Profile struct {
	Name            string  `yaml:"name"              json:"name"`
	BaseURL         string  `yaml:"base_url"          json:"base_url,omitempty"`
	APIKeyEnv       string  `yaml:"api_key_env"       json:"-"`
	Model           string  `yaml:"model"             json:"model"`
	Temperature     float32 `yaml:"temperature"       json:"temperature,omitempty"`
	MaxTokens       int     `yaml:"max_tokens"        json:"max_tokens,omitempty"`
	SystemPrompt    string  `yaml:"system_prompt"     json:"-"`
	StepEveryChunks int     `yaml:"step_every_chunks" json:"-"`
}

// APIKey resolves the profile's API key from the environment.
func (p Profile) APIKey() string {
	env := p.APIKeyEnv
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Profiles is the provider configuration file.
//
//	default: fast
//	profiles:
//	  - name: fast
//	    model: gpt-4o-mini
//	  - name: local
//	    base_url: http://localhost:11434/v1
//	    model: qwen2.5-coder
type Profiles struct {
	Default  string    `yaml:"default"`
	Profiles []Profile `yaml:"profiles"`
}

// DefaultProfiles returns a single-profile configuration.
func DefaultProfiles(model, baseURL string) *Profiles {
	return &Profiles{
		Default:  "default",
		Profiles: []Profile{{Name: "default", Model: model, BaseURL: baseURL}},
	}
}

// LoadProfiles reads and validates a YAML profiles file.
func LoadProfiles(path string) (*Profiles, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider profiles: %w", err)
	}
	var p Profiles
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse provider profiles %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profiles) validate() error {
	if len(p.Profiles) == 0 {
		return errors.New("provider profiles: at least one profile is required")
	}
	seen := make(map[string]struct{}, len(p.Profiles))
	for i, pr := range p.Profiles {
		name := strings.TrimSpace(pr.Name)
		if name == "" {
			return fmt.Errorf("provider profiles: profile %d has no name", i)
		}
		if strings.TrimSpace(pr.Model) == "" {
			return fmt.Errorf("provider profiles: profile %q has no model", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("provider profiles: duplicate profile %q", name)
		}
		seen[name] = struct{}{}
		p.Profiles[i].Name = name
	}
	if p.Default == "" {
		p.Default = p.Profiles[0].Name
	}
	if _, ok := seen[p.Default]; !ok {
		return fmt.Errorf("provider profiles: default %q is not defined", p.Default)
	}
	return nil
}

// Resolve returns the named profile, or the default when name is empty.
func (p *Profiles) Resolve(name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = p.Default
	}
	for _, pr := range p.Profiles {
		if pr.Name == name {
			return pr, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}
