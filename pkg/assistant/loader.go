package assistant

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates an assistant definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assistant definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an assistant definition from YAML bytes.
func Parse(data []byte) (*Definition, error) {
	var root struct {
		Assistant Definition `yaml:"assistant"`
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse assistant definition: %w", err)
	}

	def := root.Assistant
	if def.Name == "" {
		def.Name = "assistant"
	}
	applyEnvFallbacks(&def)

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// applyEnvFallbacks fills backend credentials from the environment when
// the definition leaves them blank.
func applyEnvFallbacks(def *Definition) {
	for _, b := range []*BackendConfig{&def.NLU, &def.Predictor} {
		if b.APIKey != "" {
			continue
		}
		switch b.Provider {
		case "openai":
			b.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			b.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
}
