package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrPathNotAccessible = errors.New("path is not accessible")

	// Pipeline Definition Errors
	ErrEmptyPipeline       = errors.New("pipeline contains no steps")
	ErrDuplicateStepName   = errors.New("duplicate step name")
	ErrMissingStepName     = errors.New("step name is required")
	ErrMissingCommand      = errors.New("step command is required")
	ErrUnresolvedReference = errors.New("unresolved variable reference")
	ErrConditionSyntax     = errors.New("invalid condition expression")
	ErrUnknownField        = errors.New("condition references unknown field")
	ErrInvalidTimeout      = errors.New("invalid step timeout")

	// Trigger Errors
	ErrUnknownEventKind = errors.New("unknown trigger event kind")
	ErrMissingRef       = errors.New("trigger event requires a branch or tag ref")

	// Execution Errors
	ErrStepFailed   = errors.New("step exited with non-zero status")
	ErrStepTimedOut = errors.New("step exceeded its timeout")
	ErrRunCanceled  = errors.New("pipeline run canceled")

	// Capture Errors
	ErrCaptureFailed       = errors.New("failed to persist captured output")
	ErrUnsupportedDigest   = errors.New("unsupported digest algorithm")
	ErrUnsupportedEncoding = errors.New("unsupported capture compression")

	// File & Directory Errors
	ErrFileNotFound   = errors.New("file not found")
	ErrFileReadError  = errors.New("error reading file")
	ErrFileWriteError = errors.New("error writing to file")
	ErrDirNotFound    = errors.New("directory not found")

	// Download Errors
	ErrDownloadFailed   = errors.New("failed to download file")
	ErrChecksumFailed   = errors.New("checksum mismatch after download")
	ErrInvalidURL       = errors.New("invalid download URL")
	ErrHTTPStatusFailed = errors.New("unexpected HTTP status code during download")

	// Configuration Errors
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigParseError = errors.New("error parsing configuration")
	ErrNotInitialized   = errors.New("component not initialized")
)
