package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newParamCommand() *cobra.Command {
	paramCmd := &cobra.Command{
		Use:   "param",
		Short: "Interact with the ROS parameter server",
	}
	paramCmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print a parameter value",
		Args:  cobra.ExactArgs(1),
		RunE:  runParamGet,
	})
	paramCmd.AddCommand(&cobra.Command{
		Use:   "set <name> <json-value>",
		Short: "Set a parameter value",
		Args:  cobra.ExactArgs(2),
		RunE:  runParamSet,
	})
	paramCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runParamDelete,
	})
	paramCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the parameter names",
		Args:  cobra.NoArgs,
		RunE:  runParamList,
	})
	return paramCmd
}

func runParamGet(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	value, err := ros.GetParam(args[0], rosapiTimeout(config))
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runParamSet(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		return fmt.Errorf("failed to parse the value: %w", err)
	}

	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	return ros.SetParam(args[0], value, rosapiTimeout(config))
}

func runParamDelete(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	return ros.DeleteParam(args[0], rosapiTimeout(config))
}

func runParamList(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	names, err := ros.GetParams(rosapiTimeout(config))
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
