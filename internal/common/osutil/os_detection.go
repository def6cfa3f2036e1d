package osutil

import (
	"os"
	"runtime"
)

// OS type constants
const (
	Windows = "windows"
	MacOS   = "darwin"
	Linux   = "linux"
)

// GetOSType returns the current operating system type
func GetOSType() string {
	return runtime.GOOS
}

// IsWindows returns true if running on Windows
func IsWindows() bool {
	return GetOSType() == Windows
}

// IsMacOS returns true if running on macOS (Darwin)
func IsMacOS() bool {
	return GetOSType() == MacOS
}

// IsLinux returns true if running on Linux
func IsLinux() bool {
	return GetOSType() == Linux
}

// IsUnix returns true if running on a Unix-like system (macOS, Linux, BSD, etc.)
func IsUnix() bool {
	return IsMacOS() || IsLinux() || GetOSType() == "freebsd" ||
		GetOSType() == "openbsd" || GetOSType() == "netbsd"
}

// IsDevEnvironment checks if the runner is executing in a development environment
// based on environment variables
func IsDevEnvironment() bool {
	return os.Getenv("PIPELINE_RUNNER_ENV") == "development" ||
		os.Getenv("PIPELINE_RUNNER_DEV") == "true" ||
		os.Getenv("DEV") == "true" ||
		os.Getenv("DEBUG") == "true"
}

// IsRunningInPipeline returns true if the process itself is executing inside a
// hosted CI environment. Used to pick config search paths and to avoid creating
// directories on ephemeral runners unless explicitly requested.
func IsRunningInPipeline() bool {
	return os.Getenv("CI") == "true" ||
		os.Getenv("PIPELINE") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("JENKINS_URL") != ""
}

// DefaultShell returns the argv prefix used to run script-style step commands.
func DefaultShell() []string {
	if IsWindows() {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}
