package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/client"
	"github.com/alfredjeanlab/cmevents/internal/ui"
)

var (
	serverURL   string
	serverToken string
	jsonOutput  bool

	serverClient *client.ServerClient
)

func defaultServerURL() string {
	if s := os.Getenv("CMEV_SERVER"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServerToken() string {
	if s := os.Getenv("CMEV_SERVER_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:           "cmev <command>",
	Short:         "Poll, serve, and watch the cloud account event feed",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		serverClient = client.NewServerClient(serverURL, serverToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if serverClient != nil {
			serverClient.Close()
		}
	},
}

// skipServerClient is the PersistentPreRunE for commands that never talk to
// a cmev server.
func skipServerClient(*cobra.Command, []string) error { return nil }

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "cmev server URL")
	rootCmd.PersistentFlags().StringVar(&serverToken, "token", defaultServerToken(), "bearer token for the cmev server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Events
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(seenCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
