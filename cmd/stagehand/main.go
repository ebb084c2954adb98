package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultListenAddr is where the serve command binds its control API.
const defaultListenAddr = "127.0.0.1:9788"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "Local desktop host supervising the live-avatar backend",
		Long: "stagehand supervises the live-avatar control API process, hosts the\n" +
			"studio UI assets, and aggregates environment health for the embedded UI.",
		SilenceUsage: true,
	}

	serveFlags := &ServeFlags{}
	stopFlags := &StopFlags{}
	logsFlags := &LogsFlags{}
	setFlags := &SettingsSetFlags{}
	statusClient := &ClientFlags{}
	startClient := &ClientFlags{}
	restartClient := &ClientFlags{}
	checksClient := &ClientFlags{}
	getClient := &ClientFlags{}
	pickClient := &ClientFlags{}

	root.AddCommand(
		createServeCommand(serveFlags),
		createStatusCommand(statusClient),
		createStartCommand(startClient),
		createStopCommand(stopFlags),
		createRestartCommand(restartClient),
		createChecksCommand(checksClient),
		createLogsCommand(logsFlags),
		createSettingsCommand(getClient, setFlags),
		createPickRootCommand(pickClient),
	)
	return root
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "base URL of a running host (default http://"+defaultListenAddr+"/api/v1)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "request timeout")
}
