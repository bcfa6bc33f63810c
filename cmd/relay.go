package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/USA-RedDragon/rosbridge-client/internal/relay"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"golang.org/x/sync/errgroup"
)

func newRelayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward configured ROS topics to a NATS server",
		Args:  cobra.NoArgs,
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(config.Relay.Topics) == 0 {
		return fmt.Errorf("no relay topics configured")
	}

	slog.Info("rosbridge-relay", "version", cmd.Root().Annotations["version"], "commit", cmd.Root().Annotations["commit"])

	ros, err := connect(config)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(config.Relay.NATSURL, nats.Name("rosbridge-relay"))
	if err != nil {
		ros.Close()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("Connected to NATS", "url", config.Relay.NATSURL)

	forwarder := relay.New(ros, nc, relay.Options{
		SubjectPrefix: config.Relay.SubjectPrefix,
		Topics:        config.Relay.Topics,
		RosapiTimeout: rosapiTimeout(config),
	})
	if err := forwarder.Start(); err != nil {
		nc.Close()
		ros.Close()
		return err
	}

	stop := func(_ os.Signal) {
		slog.Info("Shutting down")

		errGrp := errgroup.Group{}
		errGrp.Go(func() error {
			forwarder.Stop()
			return nil
		})
		errGrp.Go(func() error {
			return nc.Drain()
		})

		if err := errGrp.Wait(); err != nil {
			slog.Error("Shutdown error", "error", err.Error())
		}
		ros.Close()
		slog.Info("Shutdown complete")
	}

	shutdown.AddWithParam(stop)
	shutdown.Listen(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	return nil
}
