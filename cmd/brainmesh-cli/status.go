package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node status",
		Long:  "Show the node's identity, uptime, peer counts, and memory store totals",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	fmt.Printf("Node:         %s\n", status.NodeID)
	fmt.Printf("Persona:      %s\n", status.Persona)
	fmt.Printf("Hostname:     %s\n", status.Hostname)
	fmt.Printf("Address:      %s\n", status.Address)
	if len(status.Capabilities) > 0 {
		fmt.Printf("Capabilities: %s\n", strings.Join(status.Capabilities, ", "))
	}
	fmt.Printf("Uptime:       %s\n", (time.Duration(status.UptimeSec) * time.Second).String())

	total := 0
	for _, n := range status.Peers {
		total += n
	}
	fmt.Printf("Peers:        %d total (alive %d, suspected %d, dead %d)\n",
		total, status.Peers["alive"], status.Peers["suspected"], status.Peers["dead"])
	fmt.Printf("Memories:     %d active, %d archived (%d bytes)\n",
		status.ActiveFiles, status.ArchiveFiles, status.TotalBytes)
	return nil
}
