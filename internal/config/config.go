package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge    Bridge    `json:"bridge"`
	Reconnect Reconnect `json:"reconnect"`
	Timeouts  Timeouts  `json:"timeouts"`
	Relay     Relay     `json:"relay"`
	LogLevel  string    `json:"log_level" yaml:"log_level"`
}

type Bridge struct {
	Host   string `json:"host"`
	Port   uint16 `json:"port"`
	Secure bool   `json:"secure"`
}

type Reconnect struct {
	Enabled               bool `json:"enabled"`
	InitialBackoffSeconds uint `json:"initial_backoff_seconds" yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     uint `json:"max_backoff_seconds" yaml:"max_backoff_seconds"`
}

type Timeouts struct {
	ConnectSeconds uint `json:"connect_seconds" yaml:"connect_seconds"`
	ServiceSeconds uint `json:"service_seconds" yaml:"service_seconds"`
	RosapiSeconds  uint `json:"rosapi_seconds" yaml:"rosapi_seconds"`
}

type Relay struct {
	NATSURL       string   `json:"nats_url" yaml:"nats_url"`
	SubjectPrefix string   `json:"subject_prefix" yaml:"subject_prefix"`
	Topics        []string `json:"topics"`
}

//nolint:golint,gochecknoglobals
var (
	ConfigFileKey              = "config"
	BridgeHostKey              = "bridge.host"
	BridgePortKey              = "bridge.port"
	BridgeSecureKey            = "bridge.secure"
	ReconnectEnabledKey        = "reconnect.enabled"
	ReconnectInitialBackoffKey = "reconnect.initial_backoff_seconds"
	ReconnectMaxBackoffKey     = "reconnect.max_backoff_seconds"
	TimeoutsConnectKey         = "timeouts.connect_seconds"
	TimeoutsServiceKey         = "timeouts.service_seconds"
	TimeoutsRosapiKey          = "timeouts.rosapi_seconds"
	RelayNATSURLKey            = "relay.nats_url"
	RelaySubjectPrefixKey      = "relay.subject_prefix"
	RelayTopicsKey             = "relay.topics"
	LogLevelKey                = "log_level"
)

const (
	DefaultConfigPath              = "config.yaml"
	DefaultBridgeHost              = "127.0.0.1"
	DefaultBridgePort              = 9090
	DefaultReconnectEnabled        = true
	DefaultReconnectInitialBackoff = 1
	DefaultReconnectMaxBackoff     = 30
	DefaultTimeoutConnect          = 10
	DefaultTimeoutService          = 30
	DefaultTimeoutRosapi           = 3
	DefaultRelaySubjectPrefix      = "ros"
	DefaultLogLevel                = "info"
)

func RegisterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP(ConfigFileKey, "c", DefaultConfigPath, "Config file path")
	cmd.PersistentFlags().String(BridgeHostKey, DefaultBridgeHost, "rosbridge server host")
	cmd.PersistentFlags().Uint16(BridgePortKey, DefaultBridgePort, "rosbridge server port")
	cmd.PersistentFlags().Bool(BridgeSecureKey, false, "Use a secure websocket connection (wss)")
	cmd.PersistentFlags().Bool(ReconnectEnabledKey, DefaultReconnectEnabled, "Reconnect automatically on connection loss")
	cmd.PersistentFlags().Uint(ReconnectInitialBackoffKey, DefaultReconnectInitialBackoff, "Initial reconnect backoff in seconds")
	cmd.PersistentFlags().Uint(ReconnectMaxBackoffKey, DefaultReconnectMaxBackoff, "Maximum reconnect backoff in seconds")
	cmd.PersistentFlags().Uint(TimeoutsConnectKey, DefaultTimeoutConnect, "Connection timeout in seconds")
	cmd.PersistentFlags().Uint(TimeoutsServiceKey, DefaultTimeoutService, "Blocking service call timeout in seconds")
	cmd.PersistentFlags().Uint(TimeoutsRosapiKey, DefaultTimeoutRosapi, "rosapi call timeout in seconds")
	cmd.PersistentFlags().String(RelayNATSURLKey, "", "NATS server URL for the relay")
	cmd.PersistentFlags().String(RelaySubjectPrefixKey, DefaultRelaySubjectPrefix, "NATS subject prefix for relayed topics")
	cmd.PersistentFlags().StringSlice(RelayTopicsKey, []string{}, "Comma-separated list of topics to relay")
	cmd.PersistentFlags().String(LogLevelKey, DefaultLogLevel, "Log level (debug, info, warn, error)")
}

var (
	ErrBridgeHostRequired = errors.New("Bridge host is required")
	ErrInvalidLogLevel    = errors.New("Log level must be one of debug, info, warn, error")
	ErrRelayURLRequired   = errors.New("NATS URL is required when relay topics are configured")
	ErrInvalidBackoff     = errors.New("Initial reconnect backoff cannot exceed the maximum backoff")
)

func (c *Config) Validate() error {
	if c.Bridge.Host == "" {
		return ErrBridgeHostRequired
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if len(c.Relay.Topics) > 0 && c.Relay.NATSURL == "" {
		return ErrRelayURLRequired
	}
	if c.Reconnect.InitialBackoffSeconds > c.Reconnect.MaxBackoffSeconds {
		return ErrInvalidBackoff
	}
	return nil
}

// URL builds the websocket endpoint for the configured bridge.
func (c *Config) URL() string {
	scheme := "ws"
	if c.Bridge.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Bridge.Host, c.Bridge.Port)
}

func LoadConfig(cmd *cobra.Command) (*Config, error) {
	var config Config
	config.Reconnect.Enabled = DefaultReconnectEnabled

	// Load flags from envs
	ctx, cancel := context.WithCancelCause(cmd.Context())
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if ctx.Err() != nil {
			return
		}
		optName := strings.ReplaceAll(strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"), ".", "__")
		if val, ok := os.LookupEnv(optName); !f.Changed && ok {
			if err := f.Value.Set(val); err != nil {
				cancel(err)
			}
			f.Changed = true
		}
	})
	if ctx.Err() != nil {
		return &config, fmt.Errorf("failed to load env: %w", context.Cause(ctx))
	}

	configPath, err := cmd.Flags().GetString(ConfigFileKey)
	if err != nil {
		return &config, fmt.Errorf("failed to get config path: %w", err)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return &config, fmt.Errorf("failed to read config: %w", err)
		} else if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return &config, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	err = overrideFlags(&config, cmd)
	if err != nil {
		return &config, fmt.Errorf("failed to override flags: %w", err)
	}

	// Defaults
	if config.Bridge.Host == "" {
		config.Bridge.Host = DefaultBridgeHost
	}
	if config.Bridge.Port == 0 {
		config.Bridge.Port = DefaultBridgePort
	}
	if config.Reconnect.InitialBackoffSeconds == 0 {
		config.Reconnect.InitialBackoffSeconds = DefaultReconnectInitialBackoff
	}
	if config.Reconnect.MaxBackoffSeconds == 0 {
		config.Reconnect.MaxBackoffSeconds = DefaultReconnectMaxBackoff
	}
	if config.Timeouts.ConnectSeconds == 0 {
		config.Timeouts.ConnectSeconds = DefaultTimeoutConnect
	}
	if config.Timeouts.ServiceSeconds == 0 {
		config.Timeouts.ServiceSeconds = DefaultTimeoutService
	}
	if config.Timeouts.RosapiSeconds == 0 {
		config.Timeouts.RosapiSeconds = DefaultTimeoutRosapi
	}
	if config.Relay.SubjectPrefix == "" {
		config.Relay.SubjectPrefix = DefaultRelaySubjectPrefix
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	return &config, nil
}

func overrideFlags(config *Config, cmd *cobra.Command) error {
	var err error
	if cmd.Flags().Changed(BridgeHostKey) {
		config.Bridge.Host, err = cmd.Flags().GetString(BridgeHostKey)
		if err != nil {
			return fmt.Errorf("failed to get bridge host: %w", err)
		}
	}

	if cmd.Flags().Changed(BridgePortKey) {
		config.Bridge.Port, err = cmd.Flags().GetUint16(BridgePortKey)
		if err != nil {
			return fmt.Errorf("failed to get bridge port: %w", err)
		}
	}

	if cmd.Flags().Changed(BridgeSecureKey) {
		config.Bridge.Secure, err = cmd.Flags().GetBool(BridgeSecureKey)
		if err != nil {
			return fmt.Errorf("failed to get bridge secure: %w", err)
		}
	}

	if cmd.Flags().Changed(ReconnectEnabledKey) {
		config.Reconnect.Enabled, err = cmd.Flags().GetBool(ReconnectEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get reconnect enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(ReconnectInitialBackoffKey) {
		config.Reconnect.InitialBackoffSeconds, err = cmd.Flags().GetUint(ReconnectInitialBackoffKey)
		if err != nil {
			return fmt.Errorf("failed to get initial backoff: %w", err)
		}
	}

	if cmd.Flags().Changed(ReconnectMaxBackoffKey) {
		config.Reconnect.MaxBackoffSeconds, err = cmd.Flags().GetUint(ReconnectMaxBackoffKey)
		if err != nil {
			return fmt.Errorf("failed to get max backoff: %w", err)
		}
	}

	if cmd.Flags().Changed(TimeoutsConnectKey) {
		config.Timeouts.ConnectSeconds, err = cmd.Flags().GetUint(TimeoutsConnectKey)
		if err != nil {
			return fmt.Errorf("failed to get connect timeout: %w", err)
		}
	}

	if cmd.Flags().Changed(TimeoutsServiceKey) {
		config.Timeouts.ServiceSeconds, err = cmd.Flags().GetUint(TimeoutsServiceKey)
		if err != nil {
			return fmt.Errorf("failed to get service timeout: %w", err)
		}
	}

	if cmd.Flags().Changed(TimeoutsRosapiKey) {
		config.Timeouts.RosapiSeconds, err = cmd.Flags().GetUint(TimeoutsRosapiKey)
		if err != nil {
			return fmt.Errorf("failed to get rosapi timeout: %w", err)
		}
	}

	if cmd.Flags().Changed(RelayNATSURLKey) {
		config.Relay.NATSURL, err = cmd.Flags().GetString(RelayNATSURLKey)
		if err != nil {
			return fmt.Errorf("failed to get NATS URL: %w", err)
		}
	}

	if cmd.Flags().Changed(RelaySubjectPrefixKey) {
		config.Relay.SubjectPrefix, err = cmd.Flags().GetString(RelaySubjectPrefixKey)
		if err != nil {
			return fmt.Errorf("failed to get relay subject prefix: %w", err)
		}
	}

	if cmd.Flags().Changed(RelayTopicsKey) {
		config.Relay.Topics, err = cmd.Flags().GetStringSlice(RelayTopicsKey)
		if err != nil {
			return fmt.Errorf("failed to get relay topics: %w", err)
		}
	}

	if cmd.Flags().Changed(LogLevelKey) {
		config.LogLevel, err = cmd.Flags().GetString(LogLevelKey)
		if err != nil {
			return fmt.Errorf("failed to get log level: %w", err)
		}
	}

	return nil
}
