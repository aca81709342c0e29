package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
)

var (
	// Global flags
	serverURL string
	clientID  string
	token     string
	timeout   time.Duration

	// Global client instance
	client *httpclient.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "brainmesh-cli",
		Short: "BrainMesh node command line interface",
		Long: `brainmesh-cli talks to a running BrainMesh node over its HTTP API.
It provides commands for inspecting the node and its peers, browsing synced
memories, and managing hot records (goals, journal entries, tasks).`,
		PersistentPreRunE: initializeClient,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:7777", "BrainMesh node URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "cli", "Client ID for authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT token (if already authenticated)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// Add subcommands
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newPeersCommand())
	rootCmd.AddCommand(newMemoriesCommand())
	rootCmd.AddCommand(newHotCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	config := httpclient.Config{
		ServerURL: serverURL,
		ClientID:  clientID,
		Timeout:   timeout,
	}

	var err error
	client, err = httpclient.NewForServer(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return nil
}

// ensureAuthenticated logs in lazily before the first authenticated call.
// The node accepts any client id; the token just scopes the session.
func ensureAuthenticated(cmd *cobra.Command) error {
	if token != "" {
		return nil
	}
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed (is the node running with --no-auth or a matching secret?): %w", err)
	}
	return nil
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
