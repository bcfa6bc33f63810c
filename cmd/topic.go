package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
)

func newTopicCommand() *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Interact with ROS topics",
	}
	topicCmd.AddCommand(&cobra.Command{
		Use:   "echo <topic> [type]",
		Short: "Print every message published on a topic",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runTopicEcho,
	})
	topicCmd.AddCommand(&cobra.Command{
		Use:   "pub <topic> <type> <json-message>",
		Short: "Publish one message on a topic",
		Args:  cobra.ExactArgs(3),
		RunE:  runTopicPub,
	})
	topicCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the topics known to the ROS master",
		Args:  cobra.NoArgs,
		RunE:  runTopicList,
	})
	return topicCmd
}

func runTopicEcho(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}

	name := args[0]
	messageType := ""
	if len(args) > 1 {
		messageType = args[1]
	} else {
		messageType, err = ros.GetTopicType(name, rosapiTimeout(config))
		if err != nil {
			ros.Close()
			return fmt.Errorf("failed to resolve the type of %s: %w", name, err)
		}
	}

	topic, err := rosbridge.NewTopic(ros, name, messageType, nil)
	if err != nil {
		ros.Close()
		return err
	}
	out := cmd.OutOrStdout()
	topic.Subscribe(func(msg rosbridge.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(data))
	})

	shutdown.AddWithParam(func(_ os.Signal) {
		topic.Unsubscribe()
		ros.Close()
	})
	shutdown.Listen(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return nil
}

func runTopicPub(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var msg rosbridge.Message
	if err := json.Unmarshal([]byte(args[2]), &msg); err != nil {
		return fmt.Errorf("failed to parse the message: %w", err)
	}

	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	topic, err := rosbridge.NewTopic(ros, args[0], args[1], nil)
	if err != nil {
		return err
	}
	topic.Publish(msg)

	// Give the writer a moment to flush before the close handshake.
	time.Sleep(100 * time.Millisecond)
	return nil
}

func runTopicList(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	topics, err := ros.GetTopics(rosapiTimeout(config))
	if err != nil {
		return err
	}
	for _, topic := range topics {
		fmt.Fprintln(cmd.OutOrStdout(), topic)
	}
	return nil
}
