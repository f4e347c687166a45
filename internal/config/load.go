package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Environment variables consulted by Load.
const (
	EnvPrefix             = "CORRELATOR"
	EnvConfigPath         = "OPENLINEAGE_CONFIG"
	EnvAirflowTransport   = "AIRFLOW__OPENLINEAGE__TRANSPORT"
	EnvAirflowNamespace   = "AIRFLOW__OPENLINEAGE__NAMESPACE"
	EnvAirflowHome        = "AIRFLOW_HOME"
	DefaultConfigFileName = "openlineage.yml"
)

// Default values applied before any source is read.
const (
	DefaultNamespace      = "airflow"
	DefaultLogLevel       = "info"
	DefaultTransportType  = "correlator"
	DefaultTimeoutSeconds = 30
	DefaultHookAddr       = ":8099"
)

// ErrValidation wraps every configuration validation failure.
var ErrValidation = errors.New("configuration validation failed")

var validate = validator.New()

// Load reads configuration with the following precedence, lowest first:
// defaults, the YAML file, AIRFLOW__OPENLINEAGE__TRANSPORT, CORRELATOR_*
// environment variables. path selects the YAML file explicitly; when empty
// the file is discovered via OPENLINEAGE_CONFIG, the working directory and
// AIRFLOW_HOME. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("namespace", DefaultNamespace)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("transport.type", DefaultTransportType)
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.api_key", "")
	v.SetDefault("transport.timeout", DefaultTimeoutSeconds)
	v.SetDefault("transport.verify_ssl", true)
	v.SetDefault("hook.addr", DefaultHookAddr)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(os.Getenv(EnvAirflowTransport)); raw != "" {
		v.SetConfigType("json")
		doc := `{"transport":` + raw + `}`
		if err := v.MergeConfig(strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", EnvAirflowTransport, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs := []struct {
		key     string
		envVars []string
	}{
		{"namespace", []string{"CORRELATOR_NAMESPACE", EnvAirflowNamespace}},
		{"transport.api_key", []string{"CORRELATOR_TRANSPORT_API_KEY", "CORRELATOR_API_KEY"}},
	}
	for _, env := range bindEnvs {
		args := append([]string{env.key}, env.envVars...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("error binding environment variables for %s: %w", env.key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags plus the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.EqualFold(c.Transport.Type, DefaultTransportType) && c.Transport.URL == "" {
		return fmt.Errorf("%w: transport.url is required for the %s transport", ErrValidation, DefaultTransportType)
	}
	return nil
}

// readConfigFile loads the YAML file, expanding ${VAR} references first so
// secrets can stay in the environment.
func readConfigFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = discoverConfigFile()
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader([]byte(expandEnv(string(data))))); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv substitutes $VAR and ${VAR} with set environment variables.
// References to unset variables are left as written, so literal values
// containing '$' survive.
func expandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.Trim(ref, "${}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ref
	})
}

func discoverConfigFile() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}

	candidates := []string{DefaultConfigFileName}
	if home := os.Getenv(EnvAirflowHome); home != "" {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFileName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
