package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FromYamlFile loads the yaml file at path into out. Unknown keys are
// rejected so config typos fail loudly at startup.
func FromYamlFile(path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)

	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}
