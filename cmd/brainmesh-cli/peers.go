package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newPeersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List known peers",
		Long:  "List every peer the node knows about, with liveness state and last contact time",
		RunE:  runPeers,
	}
}

func runPeers(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	peers, err := client.Peers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}
	if len(peers) == 0 {
		fmt.Println("No peers known yet.")
		return nil
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].NodeID < peers[j].NodeID
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tPERSONA\tADDRESS\tSTATE\tLAST SEEN\tMISSED")
	for _, p := range peers {
		id := p.NodeID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			id, p.Persona, p.Address, p.State,
			time.Since(p.LastSeen).Round(time.Second), p.MissedHeartbeats)
	}
	return w.Flush()
}
