// internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/frameval/internal/evaluator"
	"github.com/SyedDaiam9101/frameval/internal/tensor"
)

// OutputConfig describes one declared network output layer
type OutputConfig struct {
	Name  string `mapstructure:"name"`
	Elems int    `mapstructure:"elems"`
	DType string `mapstructure:"dtype"`
}

// Config holds all configuration for the daemon
type Config struct {
	// Backend selection: "onnx", "onnx-cuda[:devices=N]" or "mock"
	Backend string `mapstructure:"backend"`

	// Network descriptor
	Model       string         `mapstructure:"model"`
	Weights     string         `mapstructure:"weights"`
	InputLayer  string         `mapstructure:"input_layer"`
	NetChannels int            `mapstructure:"net_channels"`
	NetHeight   int            `mapstructure:"net_height"`
	NetWidth    int            `mapstructure:"net_width"`
	Mean        []float32      `mapstructure:"mean"`
	Scale       float32        `mapstructure:"scale"`
	Outputs     []OutputConfig `mapstructure:"outputs"`

	// Evaluator resource limits
	MaxBatchSize   int `mapstructure:"max_batch_size"`
	MaxFrameWidth  int `mapstructure:"max_frame_width"`
	MaxFrameHeight int `mapstructure:"max_frame_height"`
	DeviceID       int `mapstructure:"device_id"`

	// Server configuration
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	Redis       string `mapstructure:"redis"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "onnx")
	v.SetDefault("model", "net.onnx")
	v.SetDefault("input_layer", "data")
	v.SetDefault("net_channels", 3)
	v.SetDefault("net_height", 224)
	v.SetDefault("net_width", 224)
	v.SetDefault("scale", 1.0)
	v.SetDefault("max_batch_size", 16)
	v.SetDefault("max_frame_width", 1920)
	v.SetDefault("max_frame_height", 1080)
	v.SetDefault("device_id", 0)
	v.SetDefault("port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("redis", "")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
}

// Load loads configuration from environment variables and an optional
// config file. Priority (highest to lowest): env vars > config file > defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("FRAMEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/frameval/")

	// Read config file if present (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; ignore
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FRAMEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if err := c.EvaluatorConfig().Validate(); err != nil {
		return err
	}
	desc, err := c.NetDescriptor()
	if err != nil {
		return err
	}
	return desc.Validate()
}

// EvaluatorConfig builds the resource-limit config the evaluator layer
// consumes
func (c *Config) EvaluatorConfig() evaluator.Config {
	return evaluator.Config{
		MaxBatchSize:   c.MaxBatchSize,
		MaxFrameWidth:  c.MaxFrameWidth,
		MaxFrameHeight: c.MaxFrameHeight,
		DeviceID:       c.DeviceID,
	}
}

// NetDescriptor builds the net descriptor from the configured model
// paths, geometry and output layers
func (c *Config) NetDescriptor() (evaluator.NetDescriptor, error) {
	desc := evaluator.NetDescriptor{
		ModelPath:   c.Model,
		WeightsPath: c.Weights,
		InputLayer:  c.InputLayer,
		Channels:    c.NetChannels,
		InputHeight: c.NetHeight,
		InputWidth:  c.NetWidth,
		Scale:       c.Scale,
	}
	if len(c.Mean) > 3 {
		return desc, fmt.Errorf("mean takes at most 3 values, got %d", len(c.Mean))
	}
	copy(desc.Mean[:], c.Mean)
	for _, out := range c.Outputs {
		dtype, err := tensor.ParseDType(out.DType)
		if err != nil {
			return desc, fmt.Errorf("output %q: %w", out.Name, err)
		}
		desc.Outputs = append(desc.Outputs, evaluator.OutputLayer{
			Name:          out.Name,
			ElemsPerFrame: out.Elems,
			DType:         dtype,
		})
	}
	return desc, nil
}
