package pipeline

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a pipeline definition from a YAML or JSON file. The file is
// decoded in two stages rather than through a viper instance so that env
// overlay keys keep their case; viper lowercases every key it touches, and
// environment variable names are case sensitive.
func Load(filePath string) (*Definition, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pipeline file not found: %s", filePath)
		}
		return nil, fmt.Errorf("error reading pipeline file: %w", err)
	}

	// YAML is a superset of JSON, so a single decode path covers both.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing pipeline file: %w", err)
	}

	def := &Definition{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           def,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error preparing pipeline decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("error parsing pipeline: %w", err)
	}

	return def, nil
}
