// The config package holds per-user configuration: deposition defaults, file
// limits, the locations of the user's override files, and the API token
// store. Settings live in a YAML file under the user's config directory and
// are exposed as package-level variables populated by Init.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// deposition defaults applied when the command line doesn't say otherwise
type depositConfig struct {
	// target the sandbox repository instead of production
	Sandbox bool `yaml:"sandbox"`
	// publish depositions immediately after upload
	Publish bool `yaml:"publish"`
}

// limits applied to upload payloads
type limitsConfig struct {
	// largest acceptable single file, in bytes
	MaxFileSize int64 `yaml:"max_file_size"`
	// largest acceptable number of files per deposition
	MaxFiles int `yaml:"max_files"`
}

// locations of the per-user files
type pathsConfig struct {
	// directory holding settings and tokens
	ConfigDirectory string `yaml:"config_directory"`
	// directory holding the deposition journal database
	DataDirectory string `yaml:"data_directory"`
	// the user's default metadata template (may not exist)
	UserTemplate string `yaml:"user_template"`
	// the user's parameter mapping overrides (may not exist)
	MappingOverrides string `yaml:"mapping_overrides"`
}

// global config variables
var Deposit depositConfig
var Limits limitsConfig
var Paths pathsConfig

// largest file Zenodo accepts in a single upload (50 GiB)
const defaultMaxFileSize = int64(50) * 1024 * 1024 * 1024

// largest number of files Zenodo accepts per record
const defaultMaxFiles = 100

// This struct performs the unmarshalling from the YAML settings file and then
// copies its fields to the globals above.
type configFile struct {
	Deposit depositConfig `yaml:"deposit"`
	Limits  limitsConfig  `yaml:"limits"`
	Paths   pathsConfig   `yaml:"paths"`
}

// This helper reads configuration data, returning an error indicating success
// or failure. All environment variables of the form ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Limits.MaxFileSize = defaultMaxFileSize
	conf.Limits.MaxFiles = defaultMaxFiles
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	Deposit = conf.Deposit
	Limits = conf.Limits
	Paths = conf.Paths

	return err
}

// fills in any paths the settings file leaves unset, rooting them in the
// user's config directory
func applyDefaultPaths() error {
	if Paths.ConfigDirectory == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return err
		}
		Paths.ConfigDirectory = filepath.Join(base, "zedd")
	}
	if Paths.DataDirectory == "" {
		Paths.DataDirectory = Paths.ConfigDirectory
	}
	if Paths.UserTemplate == "" {
		Paths.UserTemplate = filepath.Join(Paths.ConfigDirectory, "user_template.yaml")
	}
	if Paths.MappingOverrides == "" {
		Paths.MappingOverrides = filepath.Join(Paths.ConfigDirectory, "cif_mappings.yaml")
	}
	return os.MkdirAll(Paths.ConfigDirectory, 0700)
}

// This helper validates the configuration, returning an error that indicates
// success or failure.
func validateConfig() error {
	if Limits.MaxFileSize <= 0 {
		return fmt.Errorf("Invalid max_file_size: %d (must be positive)",
			Limits.MaxFileSize)
	}
	if Limits.MaxFiles <= 0 {
		return fmt.Errorf("Invalid max_files: %d (must be positive)",
			Limits.MaxFiles)
	}
	return nil
}

// Initializes the configuration from the given YAML settings data.
func Init(yamlData []byte) error {
	err := readConfig(yamlData)
	if err != nil {
		return err
	}
	err = applyDefaultPaths()
	if err != nil {
		return err
	}
	return validateConfig()
}

// InitFromUser initializes the configuration from the user's settings file,
// falling back to defaults when the user has never written one.
func InitFromUser() error {
	base, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	settingsPath := filepath.Join(base, "zedd", "settings.yaml")
	yamlData, err := os.ReadFile(settingsPath)
	if os.IsNotExist(err) {
		return Init(nil)
	} else if err != nil {
		return err
	}
	return Init(yamlData)
}
