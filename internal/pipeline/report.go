package pipeline

import (
	"fmt"

	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/jsonutil"
	"gopkg.in/yaml.v3"
)

// Report formats
const (
	ReportJSON = "json"
	ReportYAML = "yaml"
)

// WriteReport persists a run result for the invoking caller (e.g. a CI front
// end). The report always contains the complete result, including partial
// step results of failed and aborted runs.
func WriteReport(result *Result, path, format string) error {
	switch format {
	case ReportJSON, "":
		return jsonutil.WriteJSONFile(path, result)
	case ReportYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("%w: %s", commonerrors.ErrFileWriteError, err.Error())
		}
		return fsutil.WriteFile(path, data, 0644)
	}
	return fmt.Errorf("%w: unsupported report format %q", commonerrors.ErrInvalidArgument, format)
}
