package cmd

import (
	"encoding/json"
	"fmt"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
	"github.com/spf13/cobra"
)

func newServiceCommand() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Interact with ROS services",
	}
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "call <service> [json-args]",
		Short: "Call a service and print its response",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runServiceCall,
	})
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the services currently advertised",
		Args:  cobra.NoArgs,
		RunE:  runServiceList,
	})
	return serviceCmd
}

func runServiceCall(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	request := rosbridge.ServiceRequest{}
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &request); err != nil {
			return fmt.Errorf("failed to parse the arguments: %w", err)
		}
	}

	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	name := args[0]
	serviceType, err := ros.GetServiceType(name, rosapiTimeout(config))
	if err != nil {
		return fmt.Errorf("failed to resolve the type of %s: %w", name, err)
	}

	service := rosbridge.NewService(ros, name, serviceType, nil)
	response, err := service.Call(request, serviceTimeout(config))
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runServiceList(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ros, err := connect(config)
	if err != nil {
		return err
	}
	defer ros.Close()

	services, err := ros.GetServices(rosapiTimeout(config))
	if err != nil {
		return err
	}
	for _, service := range services {
		fmt.Fprintln(cmd.OutOrStdout(), service)
	}
	return nil
}
