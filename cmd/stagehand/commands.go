package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func createStatusCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the full status snapshot of a running host",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			snap, err := client.GetStatus()
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStartCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the supervised backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			snap, err := client.StartAPI()
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStopCommand(f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the supervised backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			snap, err := client.StopAPI(f.Force)
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "kill immediately without a grace period")
	addClientFlags(cmd, &f.ClientFlags)
	return cmd
}

func createRestartCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the supervised backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			snap, err := client.RestartAPI()
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createChecksCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Run the environment health checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			sum, err := client.RunChecks()
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createLogsCommand(f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent backend output",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			if f.Clear {
				if err := client.ClearLogs(); err != nil {
					return err
				}
				fmt.Println("logs cleared")
				return nil
			}
			lines, err := client.GetLogs(f.Tail)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Tail, "tail", 200, "number of lines to show")
	cmd.Flags().BoolVar(&f.Clear, "clear", false, "clear the in-memory log buffer instead")
	addClientFlags(cmd, &f.ClientFlags)
	return cmd
}

func createSettingsCommand(getFlags *ClientFlags, setFlags *SettingsSetFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Get or update host settings",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(getFlags.APIUrl, getFlags.APITimeout)
			snap, err := client.GetStatus()
			if err != nil {
				return err
			}
			return printJSON(snap["settings"])
		},
	}
	addClientFlags(get, getFlags)

	set := &cobra.Command{
		Use:   "set",
		Short: "Update settings from flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := buildPatch(cmd, setFlags)
			if len(patch) == 0 {
				return fmt.Errorf("no settings flags provided")
			}
			client := NewAPIClient(setFlags.APIUrl, setFlags.APITimeout)
			next, err := client.UpdateSettings(patch)
			if err != nil {
				return err
			}
			return printJSON(next)
		},
	}
	set.Flags().StringVar(&setFlags.RuntimeMode, "runtime-mode", "", "local or cloud")
	set.Flags().StringVar(&setFlags.RepoRoot, "repo-root", "", "backend repository root")
	set.Flags().StringVar(&setFlags.RemoteAPIBase, "remote-api-base", "", "remote API base URL for cloud mode")
	set.Flags().StringVar(&setFlags.AutoStart, "auto-start", "", "true or false")
	set.Flags().StringVar(&setFlags.AutoRestart, "auto-restart", "", "true or false")
	set.Flags().IntVar(&setFlags.LivePort, "live-port", 0, "live stream listen port")
	set.Flags().StringVar(&setFlags.TTSServer, "tts-server", "", "TTS server URL")
	addClientFlags(set, &setFlags.ClientFlags)

	cmd.AddCommand(get, set)
	return cmd
}

func createPickRootCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pick-root <path>",
		Short: "Validate and apply a backend repository root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			res, err := client.PickRepoRoot(args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

// buildPatch assembles a sparse settings patch from the flags the user
// actually set.
func buildPatch(cmd *cobra.Command, f *SettingsSetFlags) map[string]any {
	patch := map[string]any{}
	if cmd.Flags().Changed("runtime-mode") {
		patch["runtime_mode"] = f.RuntimeMode
	}
	if cmd.Flags().Changed("repo-root") {
		patch["repo_root"] = f.RepoRoot
	}
	if cmd.Flags().Changed("remote-api-base") {
		patch["remote_api_base"] = f.RemoteAPIBase
	}
	if cmd.Flags().Changed("auto-start") {
		patch["auto_start_api"] = f.AutoStart == "true"
	}
	if cmd.Flags().Changed("auto-restart") {
		patch["auto_restart_api"] = f.AutoRestart == "true"
	}
	if cmd.Flags().Changed("live-port") {
		patch["live_port"] = f.LivePort
	}
	if cmd.Flags().Changed("tts-server") {
		patch["tts_server"] = f.TTSServer
	}
	return patch
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
