package cmd

import (
	"fmt"
	"log/slog"
	"time"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
	"github.com/USA-RedDragon/rosbridge-client/internal/config"
	"github.com/spf13/cobra"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rosbridge-client",
		Short:   "Interact with a rosbridge server over a websocket",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd)
	cmd.AddCommand(newTopicCommand())
	cmd.AddCommand(newServiceCommand())
	cmd.AddCommand(newParamCommand())
	cmd.AddCommand(newRelayCommand())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config, err := config.LoadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	var level slog.Level
	switch config.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetLogLoggerLevel(level)

	return config, nil
}

func connect(config *config.Config) (*rosbridge.Ros, error) {
	ros := rosbridge.NewRos(rosbridge.Options{
		Host:             config.Bridge.Host,
		Port:             config.Bridge.Port,
		Secure:           config.Bridge.Secure,
		DisableReconnect: !config.Reconnect.Enabled,
		InitialBackoff:   time.Duration(config.Reconnect.InitialBackoffSeconds) * time.Second,
		MaxBackoff:       time.Duration(config.Reconnect.MaxBackoffSeconds) * time.Second,
		EnableMetrics:    false,
	})
	if err := ros.Run(time.Duration(config.Timeouts.ConnectSeconds) * time.Second); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.URL(), err)
	}
	return ros, nil
}

func serviceTimeout(config *config.Config) time.Duration {
	return time.Duration(config.Timeouts.ServiceSeconds) * time.Second
}

func rosapiTimeout(config *config.Config) time.Duration {
	return time.Duration(config.Timeouts.RosapiSeconds) * time.Second
}
