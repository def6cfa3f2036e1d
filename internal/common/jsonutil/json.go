package jsonutil

import (
	"encoding/json"
	"fmt"

	"github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/fsutil"
)

// ReadJSONFile reads a JSON file and unmarshals its contents into out
func ReadJSONFile(path string, out interface{}) error {
	if !fsutil.FileExists(path) {
		return fmt.Errorf("%w: %s", errors.ErrFileNotFound, path)
	}

	data, err := fsutil.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrConfigParseError, err.Error())
	}

	return nil
}

// WriteJSONFile writes a value to a JSON file with indentation
func WriteJSONFile(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileWriteError, err.Error())
	}

	return fsutil.WriteFile(path, append(jsonData, '\n'), 0644)
}
