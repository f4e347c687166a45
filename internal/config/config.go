package config

import "time"

// Config holds all application configuration.
type Config struct {
	// Namespace is the job namespace stamped on every event.
	Namespace string `mapstructure:"namespace" validate:"required"`

	LogLevel  string          `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Transport TransportConfig `mapstructure:"transport" validate:"required"`
	Hook      HookConfig      `mapstructure:"hook" validate:"required"`
}

// TransportConfig selects and configures the delivery backend.
type TransportConfig struct {
	Type string `mapstructure:"type" validate:"required"`

	// URL is the backend base URL; the lineage path is appended to it.
	// Required for the correlator transport.
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	APIKey string `mapstructure:"api_key"`

	// TimeoutSeconds bounds one delivery attempt.
	TimeoutSeconds int  `mapstructure:"timeout" validate:"gt=0"`
	VerifySSL      bool `mapstructure:"verify_ssl"`
}

// HookConfig configures the HTTP hook receiver.
type HookConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// Timeout returns TimeoutSeconds as a duration.
func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}
