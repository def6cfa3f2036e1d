package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deploymenttheory/go-pipeline-runner/internal/common/fsutil"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/osutil"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "go-pipeline-runner"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "PIPELINE_RUNNER"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Runner settings
	Runner struct {
		// Directory where captured step output is persisted
		ArtifactsDir string `mapstructure:"artifacts_dir"`

		// Timeout applied to steps that declare none. Zero means unlimited.
		DefaultTimeout time.Duration `mapstructure:"default_timeout"`

		// Shell used for script-form commands ("" selects the platform default)
		Shell string `mapstructure:"shell"`

		Capture struct {
			// none, gzip, bzip2 or xz
			Compression string `mapstructure:"compression"`

			// sha256, sha512 or blake2b
			Digest string `mapstructure:"digest"`
		} `mapstructure:"capture"`
	} `mapstructure:"runner"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	// Ensure thread safety
	initOnce sync.Once
)

// Initialize sets up the configuration system
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		// Create a new viper instance
		v = viper.New()

		// Set default values
		setDefaults(v)

		// Load configuration from file if specified
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			// Set config name and type
			v.SetConfigName(AppName)
			v.SetConfigType("yaml")

			// Add default search paths
			addSearchPaths(v)
		}

		// Set up environment variables
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()

		// Read configuration file
		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				// Only capture error if the config file was found but couldn't be read
				err = fmt.Errorf("error reading config file: %w", readErr)
			}
			// Config file not found, using defaults and environment variables
			ConfigLoaded = false
			ConfigFile = ""
		} else {
			ConfigLoaded = true
			ConfigFile = v.ConfigFileUsed()
		}

		// Unmarshal config into struct
		if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
			err = fmt.Errorf("error parsing config: %w", unmarshalErr)
			return
		}

		// Ensure required directories exist
		ensureDirectories()
	})

	return err
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")

	// Set default log file based on OS
	logDir, err := fsutil.GetLogDir(AppName)
	if err == nil {
		v.SetDefault("log_file", filepath.Join(logDir, "runner.log"))
	} else {
		v.SetDefault("log_file", "logs/runner.log")
	}

	// Runner defaults
	dataDir, err := fsutil.GetDataDir(AppName)
	if err == nil {
		v.SetDefault("runner.artifacts_dir", filepath.Join(dataDir, "artifacts"))
	} else {
		v.SetDefault("runner.artifacts_dir", "artifacts")
	}

	v.SetDefault("runner.default_timeout", time.Duration(0))
	v.SetDefault("runner.shell", "")
	v.SetDefault("runner.capture.compression", "none")
	v.SetDefault("runner.capture.digest", "sha256")
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	// Always check current directory first
	v.AddConfigPath(".")

	// Check for development environment
	if osutil.IsDevEnvironment() {
		// In dev mode, only use current directory and user home
		configDir, err := fsutil.GetConfigDir(AppName)
		if err == nil {
			v.AddConfigPath(configDir)
		}
		return
	}

	// Check for CI/Pipeline environment
	if osutil.IsRunningInPipeline() {
		// In CI, only use current directory and explicit CI directories
		v.AddConfigPath("/etc/" + AppName)
		return
	}

	// Standard operation - add user config directory
	configDir, err := fsutil.GetConfigDir(AppName)
	if err == nil {
		v.AddConfigPath(configDir)
	}
}

// ensureDirectories creates necessary directories based on configuration
func ensureDirectories() {
	// Don't create directories in a pipeline environment unless explicitly requested
	if osutil.IsRunningInPipeline() && os.Getenv("CREATE_DIRS") != "true" {
		return
	}

	// Create log directory
	if Instance.LogFile != "" {
		logDir := filepath.Dir(Instance.LogFile)
		_ = fsutil.CreateDirIfNotExists(logDir)
	}

	// Create artifacts directory
	if Instance.Runner.ArtifactsDir != "" {
		_ = fsutil.CreateDirIfNotExists(Instance.Runner.ArtifactsDir)
	}
}
